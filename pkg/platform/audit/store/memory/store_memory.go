package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	audit "shareledger/pkg/platform/audit"
)

// InMemoryStore keeps entries in insertion order. Entries are copied on the
// way in and out so callers cannot mutate stored records.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Query scans newest first, applying scope before filter.
func (s *InMemoryStore) Query(_ context.Context, scope audit.Scope, filter audit.Filter, page audit.Page) ([]audit.Entry, int, error) {
	page = page.Normalize()
	if scope.Deny {
		return []audit.Entry{}, 0, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []audit.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := &s.entries[i]
		if !scope.Allows(e) || !filter.Matches(e) {
			continue
		}
		matched = append(matched, *e)
	}
	slices.SortStableFunc(matched, func(a, b audit.Entry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	total := len(matched)
	if page.Offset >= total {
		return []audit.Entry{}, total, nil
	}
	end := min(page.Offset+page.Limit, total)
	return matched[page.Offset:end], total, nil
}

func (s *InMemoryStore) Since(_ context.Context, since time.Time, filter audit.Filter) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Entry
	for i := range s.entries {
		e := &s.entries[i]
		if e.Timestamp.Before(since) || !filter.Matches(e) {
			continue
		}
		out = append(out, *e)
	}
	slices.SortStableFunc(out, func(a, b audit.Entry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, cutoff, retainedCutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	deleted := 0
	for _, e := range s.entries {
		if audit.Expired(&e, cutoff, retainedCutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// ListAll returns every entry in insertion order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries...), nil
}
