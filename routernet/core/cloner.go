package core

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

// InstanceCloner produces fresh, uninitialized routing units, each at its
// own address.
type InstanceCloner interface {
	Clone() (*RoutingUnit, error)
}

// DeterministicCloner derives unit addresses from its creator and a running
// nonce, the way contract creation does.
type DeterministicCloner struct {
	creator common.Address
	nonce   uint64
	mu      sync.Mutex
}

// NewDeterministicCloner creates a cloner for creator. Nonces start at 1.
func NewDeterministicCloner(creator common.Address) *DeterministicCloner {
	return &DeterministicCloner{
		creator: creator,
		nonce:   1,
	}
}

// Clone returns an uninitialized unit at the next derived address.
func (c *DeterministicCloner) Clone() (*RoutingUnit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	addr := ledger.CreateAddress(c.creator, c.nonce)
	c.nonce++
	return NewRoutingUnit(addr), nil
}

// Nonce returns the nonce the next clone will use.
func (c *DeterministicCloner) Nonce() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce
}
