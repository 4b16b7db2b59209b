package revocation

import (
	"context"
	"sync"
	"time"
)

// InMemoryTRL is a process-local revocation list.
type InMemoryTRL struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	clock   Clock
}

// InMemoryTRLOption configures an InMemoryTRL.
type InMemoryTRLOption func(*InMemoryTRL)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) InMemoryTRLOption {
	return func(t *InMemoryTRL) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// NewInMemoryTRL constructs an empty in-memory revocation list.
func NewInMemoryTRL(opts ...InMemoryTRLOption) *InMemoryTRL {
	t := &InMemoryTRL{revoked: make(map[string]time.Time), clock: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *InMemoryTRL) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return nil
	}
	if err := validateTTL(ttl); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.revoked[jti] = t.clock().Add(ttl)
	return nil
}

func (t *InMemoryTRL) IsRevoked(_ context.Context, jti string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	until, ok := t.revoked[jti]
	return ok && t.clock().Before(until), nil
}

// Sweep drops entries whose token has expired. It satisfies sweeper.Job.
func (t *InMemoryTRL) Sweep(_ context.Context, now time.Time) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for jti, until := range t.revoked {
		if !now.Before(until) {
			delete(t.revoked, jti)
			n++
		}
	}
	return n, nil
}
