package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransferStatus is the outcome of a top-level send.
type TransferStatus int

const (
	StatusReverted TransferStatus = iota
	StatusSucceeded
)

func (s TransferStatus) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusReverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// Leg is a single value movement inside a send, in execution order.
type Leg struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
	Depth  int            `json:"depth"`
}

// Receipt describes a top-level send and every leg of its cascade.
type Receipt struct {
	ID       string         `json:"id"`
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Amount   *big.Int       `json:"amount"`
	Status   TransferStatus `json:"status"`
	Legs     []Leg          `json:"legs,omitempty"`
	Duration time.Duration  `json:"duration"`
	Err      error          `json:"-"`
}

// Succeeded reports whether the send settled.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == StatusSucceeded
}

// Received sums what addr was credited across all legs.
func (r *Receipt) Received(addr common.Address) *big.Int {
	total := new(big.Int)
	if r == nil {
		return total
	}
	for _, leg := range r.Legs {
		if leg.To == addr {
			total.Add(total, leg.Amount)
		}
	}
	return total
}

// MaxDepth returns the deepest call depth reached by the cascade.
func (r *Receipt) MaxDepth() int {
	depth := 0
	if r == nil {
		return depth
	}
	for _, leg := range r.Legs {
		if leg.Depth > depth {
			depth = leg.Depth
		}
	}
	return depth
}
