package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"shareledger/internal/shares/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
)

// InMemoryStore keeps shares in a map guarded by one mutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	shares map[id.ShareID]*models.Share
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{shares: make(map[id.ShareID]*models.Share)}
}

func (s *InMemoryStore) Create(_ context.Context, share *models.Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shares[share.ID]; ok {
		return fmt.Errorf("share %s: %w", share.ID, sentinel.ErrConflict)
	}
	s.shares[share.ID] = share.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, shareID id.ShareID) (*models.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if share, ok := s.shares[shareID]; ok {
		return share.Clone(), nil
	}
	return nil, fmt.Errorf("share not found: %w", sentinel.ErrNotFound)
}

// Update applies fn to a copy and stores it only when fn succeeds.
func (s *InMemoryStore) Update(_ context.Context, shareID id.ShareID, fn UpdateFunc) (*models.Share, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.shares[shareID]
	if !ok {
		return nil, fmt.Errorf("share not found: %w", sentinel.ErrNotFound)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.shares[shareID] = next
	return next.Clone(), nil
}

// List returns matching shares newest first and the total before paging.
func (s *InMemoryStore) List(_ context.Context, opts ListOptions) ([]*models.Share, int, error) {
	if opts.Access.IsEmpty() {
		return []*models.Share{}, 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Share
	for _, share := range s.shares {
		if matches(share, opts) {
			matched = append(matched, share)
		}
	}
	sortShares(matched)
	start, end := opts.Page.Window(len(matched))
	out := make([]*models.Share, 0, end-start)
	for _, share := range matched[start:end] {
		out = append(out, share.Clone())
	}
	return out, len(matched), nil
}

// ListByOwner returns every share held by owner, unpaged.
func (s *InMemoryStore) ListByOwner(_ context.Context, owner id.UserID, includeInactive bool) ([]*models.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Share
	for _, share := range s.shares {
		if share.OwnerID == owner && (includeInactive || share.Active) {
			out = append(out, share.Clone())
		}
	}
	sortShares(out)
	return out, nil
}

func sortShares(shares []*models.Share) {
	slices.SortFunc(shares, func(a, b *models.Share) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}
