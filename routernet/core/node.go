package core

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

// RoutingUnit is a node of the routing network. It starts uninitialized,
// is configured exactly once as an aggregator or a disgregator, and from then
// on forwards every amount it receives before the delivering send returns.
type RoutingUnit struct {
	address common.Address
	owner   common.Address
	outputs []common.Address
	mu      sync.RWMutex
}

// NewRoutingUnit creates an uninitialized unit living at address.
func NewRoutingUnit(address common.Address) *RoutingUnit {
	return &RoutingUnit{address: address}
}

// InitAsAggregator configures the unit to forward everything to output.
func (u *RoutingUnit) InitAsAggregator(caller, output common.Address) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.outputs) != 0 {
		return ErrAlreadyInitialized
	}
	if err := validateOutput(output); err != nil {
		return err
	}

	u.owner = caller
	u.outputs = []common.Address{output}
	return nil
}

// InitAsDisgregator configures the unit to split everything across outputs.
// The slice is copied; order is preserved.
func (u *RoutingUnit) InitAsDisgregator(caller common.Address, outputs []common.Address) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.outputs) != 0 {
		return ErrAlreadyInitialized
	}
	if err := validateOutputs(outputs); err != nil {
		return err
	}

	u.owner = caller
	u.outputs = append([]common.Address(nil), outputs...)
	return nil
}

// OnReceive forwards amount according to the unit's role. It implements
// ledger.Receiver and runs whenever value is credited to the unit.
func (u *RoutingUnit) OnReceive(tx ledger.Transferer, _ common.Address, amount *big.Int) error {
	outputs := u.snapshot()

	switch roleOf(len(outputs)) {
	case RoleUninitialized:
		return ErrEmptyOutputAddresses
	case RoleAggregator:
		return tx.Transfer(outputs[0], amount)
	}

	// Index 0 goes first and carries the remainder.
	for i, share := range SplitAmount(amount, len(outputs)) {
		if err := tx.Transfer(outputs[i], share); err != nil {
			return err
		}
	}
	return nil
}

// SplitAmount divides amount into n shares: every share is amount div n and
// the first additionally carries amount mod n. The shares always sum to
// amount. It returns nil when n < 1.
func SplitAmount(amount *big.Int, n int) []*big.Int {
	if n < 1 || amount == nil {
		return nil
	}

	split, rem := new(big.Int).QuoRem(amount, big.NewInt(int64(n)), new(big.Int))

	shares := make([]*big.Int, n)
	shares[0] = new(big.Int).Add(split, rem)
	for i := 1; i < n; i++ {
		shares[i] = new(big.Int).Set(split)
	}
	return shares
}

// Address returns where the unit is deployed.
func (u *RoutingUnit) Address() common.Address {
	return u.address
}

// Owner returns the identity that initialized the unit, or the null address.
func (u *RoutingUnit) Owner() common.Address {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.owner
}

// OutputCount returns the number of configured outputs.
func (u *RoutingUnit) OutputCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.outputs)
}

// OutputAt returns the output stored at index.
func (u *RoutingUnit) OutputAt(index int) (common.Address, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if index < 0 || index >= len(u.outputs) {
		return common.Address{}, fmt.Errorf("%w: %d of %d", ErrOutputIndexOutOfRange, index, len(u.outputs))
	}
	return u.outputs[index], nil
}

// Outputs returns a copy of the configured outputs.
func (u *RoutingUnit) Outputs() []common.Address {
	return append([]common.Address(nil), u.snapshot()...)
}

// Role returns the role derived from the number of outputs.
func (u *RoutingUnit) Role() Role {
	return roleOf(u.OutputCount())
}

// IsAggregator reports whether the unit has exactly one output.
func (u *RoutingUnit) IsAggregator() bool {
	return u.Role() == RoleAggregator
}

// IsDisgregator reports whether the unit has more than one output.
func (u *RoutingUnit) IsDisgregator() bool {
	return u.Role() == RoleDisgregator
}

// snapshot returns the outputs slice. Outputs never change once set, so the
// slice can be read without holding the lock.
func (u *RoutingUnit) snapshot() []common.Address {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.outputs
}
