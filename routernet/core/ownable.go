package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Ownable is an access gate fixed to a single owner at construction.
type Ownable struct {
	owner common.Address
}

// NewOwnable creates a gate that only admits owner.
func NewOwnable(owner common.Address) Ownable {
	return Ownable{owner: owner}
}

// Owner returns the admitted identity.
func (o Ownable) Owner() common.Address {
	return o.owner
}

// OnlyOwner fails with ErrNotOwner unless caller is the owner.
func (o Ownable) OnlyOwner(caller common.Address) error {
	if caller != o.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	return nil
}
