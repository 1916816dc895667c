package network

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Common errors for replay protection
var (
	ErrMissingNonce = errors.New("missing nonce")
	ErrReplay       = errors.New("replayed request")
	ErrStale        = errors.New("request timestamp outside tolerance")
)

// ReplayGuard remembers recently seen nonces and rejects requests whose
// timestamp drifts more than the tolerance from the local clock.
type ReplayGuard struct {
	seen      map[string]time.Time
	tolerance time.Duration
	now       func() time.Time
	mu        sync.Mutex
}

// NewReplayGuard creates a guard with the given tolerance.
func NewReplayGuard(tolerance time.Duration) *ReplayGuard {
	return &ReplayGuard{
		seen:      make(map[string]time.Time),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Check admits a nonce once. Admitted nonces are remembered until Clean
// drops them.
func (g *ReplayGuard) Check(nonce string, ts time.Time) error {
	if nonce == "" {
		return ErrMissingNonce
	}

	now := g.now()
	if drift := now.Sub(ts); drift > g.tolerance || drift < -g.tolerance {
		return fmt.Errorf("%w: %s", ErrStale, drift.Round(time.Millisecond))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[nonce]; ok {
		return fmt.Errorf("%w: nonce %q", ErrReplay, nonce)
	}
	g.seen[nonce] = now
	return nil
}

// Clean forgets nonces seen more than twice the tolerance ago. A forgotten nonce cannot
// be replayed because its timestamp is already stale.
func (g *ReplayGuard) Clean() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-2 * g.tolerance)
	removed := 0
	for nonce, seenAt := range g.seen {
		if seenAt.Before(cutoff) {
			delete(g.seen, nonce)
			removed++
		}
	}
	return removed
}

// Size returns the number of remembered nonces.
func (g *ReplayGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
