// Package store persists deleted-account tombstones.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"shareledger/internal/users/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
)

// InMemoryStore keeps tombstones in a map guarded by one mutex.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[id.TombstoneID]*models.DeletedUser
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[id.TombstoneID]*models.DeletedUser)}
}

func (s *InMemoryStore) Create(_ context.Context, d *models.DeletedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[d.ID]; ok {
		return fmt.Errorf("tombstone %s: %w", d.ID, sentinel.ErrConflict)
	}
	s.items[d.ID] = d.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tombID id.TombstoneID) (*models.DeletedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.items[tombID]; ok {
		return d.Clone(), nil
	}
	return nil, fmt.Errorf("deleted user not found: %w", sentinel.ErrNotFound)
}

// List returns tombstones most recently deleted first, and the total before
// paging.
func (s *InMemoryStore) List(_ context.Context, page id.Page) ([]*models.DeletedUser, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*models.DeletedUser, 0, len(s.items))
	for _, d := range s.items {
		all = append(all, d)
	}
	slices.SortFunc(all, func(a, b *models.DeletedUser) int {
		if c := b.DeletedAt.Compare(a.DeletedAt); c != 0 {
			return c
		}
		return strings.Compare(a.User.Email, b.User.Email)
	})
	start, end := page.Window(len(all))
	out := make([]*models.DeletedUser, 0, end-start)
	for _, d := range all[start:end] {
		out = append(out, d.Clone())
	}
	return out, len(all), nil
}

func (s *InMemoryStore) Delete(_ context.Context, tombID id.TombstoneID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[tombID]; !ok {
		return fmt.Errorf("deleted user not found: %w", sentinel.ErrNotFound)
	}
	delete(s.items, tombID)
	return nil
}

// DeleteExpired removes every tombstone whose purge time has passed.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tombID, d := range s.items {
		if d.Expired(now) {
			delete(s.items, tombID)
			n++
		}
	}
	return n, nil
}
