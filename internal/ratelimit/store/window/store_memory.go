package window

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

type shard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// InMemoryStore keeps attempt logs in process. Keys hash onto a fixed set
// of shards so unrelated keys do not contend on one lock.
type InMemoryStore struct {
	shards [shardCount]*shard
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{windows: make(map[string][]time.Time)}
	}
	return s
}

func (s *InMemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Hit prunes attempts at or before now-window and records now when fewer
// than max remain. The prune, count and append happen under the shard lock.
func (s *InMemoryStore) Hit(_ context.Context, key string, now time.Time, max int, window time.Duration) (Hit, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	attempts := prune(sh.windows[key], cutoff(now, window))
	hit := Hit{Count: len(attempts)}
	if len(attempts) < max {
		attempts = append(attempts, now)
		hit.Allowed = true
		hit.Count++
	}
	if len(attempts) > 0 {
		hit.Oldest = attempts[0]
		sh.windows[key] = attempts
	} else {
		delete(sh.windows, key)
	}
	return hit, nil
}

// Reset clears the log for key.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.windows, key)
	return nil
}

// Sweep drops keys whose newest attempt is older than maxWindow and returns
// how many were removed.
func (s *InMemoryStore) Sweep(_ context.Context, now time.Time, maxWindow time.Duration) (int, error) {
	limit := cutoff(now, maxWindow)
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, attempts := range sh.windows {
			if len(attempts) == 0 || !attempts[len(attempts)-1].After(limit) {
				delete(sh.windows, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// prune drops the leading attempts at or before limit. Attempts are kept in
// arrival order.
func prune(attempts []time.Time, limit time.Time) []time.Time {
	i := 0
	for ; i < len(attempts); i++ {
		if attempts[i].After(limit) {
			break
		}
	}
	return attempts[i:]
}
