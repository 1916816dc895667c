// Package ledger provides the in-memory value ledger that routing units move
// funds through.
//
// This package implements:
//   - Account balances with uint256 bounds
//   - Contract accounts that run a Receiver hook on incoming value
//   - Journaled, all-or-nothing top-level sends with a call depth limit
//   - CREATE-style address derivation and amount parsing helpers
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Common errors for ledger operations
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeAmount      = errors.New("negative or missing amount")
	ErrAmountOverflow      = errors.New("amount exceeds uint256 range")
	ErrTransferRejected    = errors.New("recipient rejected transfer")
	ErrCallDepthExceeded   = errors.New("max call depth exceeded")
	ErrAddressInUse        = errors.New("address already in use")
	ErrNullAddress         = errors.New("null address")
	ErrContractAccount     = errors.New("contract accounts cannot be funded directly")
)

// MaxCallDepth bounds how many nested receiver hooks a single send may run.
const MaxCallDepth = 1024

// MaxUint256 is the largest balance or amount the ledger accepts.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Transferer moves value out of the account whose receiver hook is running.
type Transferer interface {
	Transfer(to common.Address, amount *big.Int) error
}

// Receiver is implemented by contract accounts that act on incoming value.
// Hooks run while the ledger lock is held and must not call back into Send.
type Receiver interface {
	OnReceive(tx Transferer, sender common.Address, amount *big.Int) error
}

// ReceiverFunc adapts a plain function to the Receiver interface.
type ReceiverFunc func(tx Transferer, sender common.Address, amount *big.Int) error

// OnReceive calls f.
func (f ReceiverFunc) OnReceive(tx Transferer, sender common.Address, amount *big.Int) error {
	return f(tx, sender, amount)
}

// Contract pairs an address with the receiver deployed at it.
type Contract struct {
	Address  common.Address
	Receiver Receiver
}

// Ledger holds balances and contract code. All sends are serialized.
type Ledger struct {
	balances  map[common.Address]*big.Int
	contracts map[common.Address]Receiver
	rejecting map[common.Address]bool
	supply    *big.Int
	logger    *slog.Logger
	mu        sync.RWMutex
}

// New creates an empty ledger. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		balances:  make(map[common.Address]*big.Int),
		contracts: make(map[common.Address]Receiver),
		rejecting: make(map[common.Address]bool),
		supply:    new(big.Int),
		logger:    logger.With(slog.String("component", "ledger")),
	}
}

// Fund mints amount into addr. It is used to seed external accounts;
// contract accounts only receive value through Send.
func (l *Ledger) Fund(addr common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return ErrNullAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.contracts[addr]; ok {
		return fmt.Errorf("%w: %s", ErrContractAccount, addr.Hex())
	}

	next := new(big.Int).Add(l.balanceLocked(addr), amount)
	if next.Cmp(MaxUint256) > 0 {
		return fmt.Errorf("%w: balance of %s", ErrAmountOverflow, addr.Hex())
	}
	l.balances[addr] = next
	l.supply.Add(l.supply, amount)
	return nil
}

// Deploy registers contract receivers. Either every contract is deployed or,
// on the first collision, none is. An address that already holds a balance
// counts as a collision.
func (l *Ledger) Deploy(contracts ...Contract) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[common.Address]bool, len(contracts))
	for _, c := range contracts {
		if c.Address == (common.Address{}) {
			return ErrNullAddress
		}
		if _, exists := l.contracts[c.Address]; exists || seen[c.Address] || l.balanceLocked(c.Address).Sign() != 0 {
			return fmt.Errorf("%w: %s", ErrAddressInUse, c.Address.Hex())
		}
		seen[c.Address] = true
	}

	for _, c := range contracts {
		l.contracts[c.Address] = c.Receiver
	}
	return nil
}

// MarkRejecting makes addr refuse every incoming transfer.
func (l *Ledger) MarkRejecting(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejecting[addr] = true
}

// BalanceOf returns a copy of the balance held by addr.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balanceLocked(addr))
}

// IsContract reports whether a receiver is deployed at addr.
func (l *Ledger) IsContract(addr common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.contracts[addr]
	return ok
}

// TotalSupply returns the sum of everything ever funded.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply)
}

// Send performs a top-level transfer and runs the full forwarding cascade it
// triggers. On any failure every balance change of the cascade is reverted
// and the returned receipt has StatusReverted.
func (l *Ledger) Send(ctx context.Context, from, to common.Address, amount *big.Int) (*Receipt, error) {
	receipt := &Receipt{
		ID:     uuid.NewString(),
		From:   from,
		To:     to,
		Amount: copyAmount(amount),
		Status: StatusReverted,
	}

	if ctx != nil {
		if err := ctx.Err(); err != nil {
			receipt.Err = err
			return receipt, err
		}
	}

	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	t := &txn{l: l}
	if err := t.transfer(from, to, amount); err != nil {
		t.revert()
		receipt.Err = err
		l.logger.Debug("transfer reverted",
			slog.String("id", receipt.ID),
			slog.String("from", from.Hex()),
			slog.String("to", to.Hex()),
			slog.String("error", err.Error()))
		return receipt, fmt.Errorf("transfer %s -> %s reverted: %w", from.Hex(), to.Hex(), err)
	}

	receipt.Status = StatusSucceeded
	receipt.Legs = t.legs
	receipt.Duration = time.Since(start)

	l.logger.Debug("transfer settled",
		slog.String("id", receipt.ID),
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()),
		slog.Int("legs", len(t.legs)))

	return receipt, nil
}

// balanceLocked returns the stored balance pointer or zero (called with lock held).
func (l *Ledger) balanceLocked(addr common.Address) *big.Int {
	if bal, ok := l.balances[addr]; ok {
		return bal
	}
	return new(big.Int)
}

// journalEntry records the balance an account had before a txn touched it.
type journalEntry struct {
	addr    common.Address
	prev    *big.Int
	existed bool
}

// txn is the state of one top-level Send.
type txn struct {
	l       *Ledger
	journal []journalEntry
	legs    []Leg
	depth   int
}

// frame scopes a Transferer to the contract whose hook is running.
type frame struct {
	t    *txn
	self common.Address
}

func (f frame) Transfer(to common.Address, amount *big.Int) error {
	return f.t.transfer(f.self, to, amount)
}

func (t *txn) transfer(from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: recipient", ErrNullAddress)
	}
	if t.depth > MaxCallDepth {
		return ErrCallDepthExceeded
	}

	bal := t.l.balanceLocked(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	if t.l.rejecting[to] {
		return fmt.Errorf("%w: %s", ErrTransferRejected, to.Hex())
	}

	t.set(from, new(big.Int).Sub(bal, amount))
	t.set(to, new(big.Int).Add(t.l.balanceLocked(to), amount))
	t.legs = append(t.legs, Leg{
		From:   from,
		To:     to,
		Amount: new(big.Int).Set(amount),
		Depth:  t.depth,
	})

	receiver, ok := t.l.contracts[to]
	if !ok {
		return nil
	}

	t.depth++
	defer func() { t.depth-- }()
	return receiver.OnReceive(frame{t: t, self: to}, from, amount)
}

// set journals the previous balance of addr and stores bal.
func (t *txn) set(addr common.Address, bal *big.Int) {
	prev, existed := t.l.balances[addr]
	t.journal = append(t.journal, journalEntry{addr: addr, prev: prev, existed: existed})
	t.l.balances[addr] = bal
}

// revert undoes every journaled change in reverse order.
func (t *txn) revert() {
	for i := len(t.journal) - 1; i >= 0; i-- {
		e := t.journal[i]
		if e.existed {
			t.l.balances[e.addr] = e.prev
		} else {
			delete(t.l.balances, e.addr)
		}
	}
	t.journal = nil
	t.legs = nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if amount.Cmp(MaxUint256) > 0 {
		return ErrAmountOverflow
	}
	return nil
}

func copyAmount(amount *big.Int) *big.Int {
	if amount == nil {
		return nil
	}
	return new(big.Int).Set(amount)
}
