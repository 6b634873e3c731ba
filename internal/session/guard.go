package session

import (
	"context"
	"fmt"
	"sync"
)

// GuardState is the lifecycle of one dedupe key: absent → pending → consumed → absent.
type GuardState int

const (
	GuardAbsent GuardState = iota
	GuardPending
	GuardConsumed
)

func (s GuardState) String() string {
	switch s {
	case GuardPending:
		return "pending"
	case GuardConsumed:
		return "consumed"
	default:
		return "absent"
	}
}

// ParseGuardState is the inverse of [GuardState.String].
func ParseGuardState(s string) (GuardState, error) {
	switch s {
	case "pending":
		return GuardPending, nil
	case "consumed":
		return GuardConsumed, nil
	case "absent", "":
		return GuardAbsent, nil
	}
	return GuardAbsent, fmt.Errorf("unknown guard state %q", s)
}

// Guard records in-flight authorization exchanges so each redirect is exchanged at most once.
type Guard interface {
	// Acquire atomically moves key from absent to pending. It reports false when the key
	// is already held, in which case the caller must not exchange.
	Acquire(ctx context.Context, key DedupeKey) (bool, error)
	// Mark moves a held key to state; only pending → consumed is allowed.
	Mark(ctx context.Context, key DedupeKey, state GuardState) error
	// Release clears key, whatever its state.
	Release(ctx context.Context, key DedupeKey) error
	State(ctx context.Context, key DedupeKey) (GuardState, error)
	// Reset clears every key.
	Reset(ctx context.Context) error
}

// CheckTransition validates a guard state change.
func CheckTransition(from, to GuardState) error {
	if from == GuardPending && to == GuardConsumed {
		return nil
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
}

// MemoryGuard is a process-local [Guard].
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[DedupeKey]GuardState
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{entries: make(map[DedupeKey]GuardState)}
}

func (g *MemoryGuard) Acquire(_ context.Context, key DedupeKey) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.entries[key]; held {
		return false, nil
	}
	g.entries[key] = GuardPending
	return true, nil
}

func (g *MemoryGuard) Mark(_ context.Context, key DedupeKey, state GuardState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := CheckTransition(g.entries[key], state); err != nil {
		return err
	}
	g.entries[key] = state
	return nil
}

func (g *MemoryGuard) Release(_ context.Context, key DedupeKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
	return nil
}

func (g *MemoryGuard) State(_ context.Context, key DedupeKey) (GuardState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entries[key], nil
}

func (g *MemoryGuard) Reset(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.entries)
	return nil
}
