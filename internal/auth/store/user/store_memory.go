package user

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"shareledger/internal/auth/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
)

// Error Contract:
// - ErrNotFound when the user does not exist
// - ErrConflict when the email is already registered
//
// InMemoryUserStore keeps users in a map guarded by a single mutex, so
// Update is trivially atomic.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

// New constructs an empty in-memory user store.
func New() *InMemoryUserStore {
	return &InMemoryUserStore{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *InMemoryUserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.NormalizeEmail(u.Email)
	if _, ok := s.byEmail[key]; ok {
		return fmt.Errorf("email %q: %w", key, sentinel.ErrConflict)
	}
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s: %w", u.ID, sentinel.ErrConflict)
	}
	s.users[u.ID] = u.Clone()
	s.byEmail[key] = u.ID
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return u.Clone(), nil
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID, ok := s.byEmail[models.NormalizeEmail(email)]; ok {
		return s.users[userID].Clone(), nil
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryUserStore) FindByResetTokenHash(_ context.Context, digest string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if digest == "" {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	for _, u := range s.users {
		if u.Security.ResetTokenHash == digest {
			return u.Clone(), nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}

// Update applies fn to a copy and stores it only when fn succeeds.
func (s *InMemoryUserStore) Update(_ context.Context, userID id.UserID, fn UpdateFunc) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	oldKey := models.NormalizeEmail(current.Email)
	newKey := models.NormalizeEmail(next.Email)
	if newKey != oldKey {
		if _, taken := s.byEmail[newKey]; taken {
			return nil, fmt.Errorf("email %q: %w", newKey, sentinel.ErrConflict)
		}
		delete(s.byEmail, oldKey)
		s.byEmail[newKey] = userID
	}
	s.users[userID] = next
	return next.Clone(), nil
}

// List returns matching users ordered by creation time, newest first, and
// the total before paging.
func (s *InMemoryUserStore) List(_ context.Context, opts ListOptions) ([]*models.User, int, error) {
	if opts.Access.IsEmpty() {
		return []*models.User{}, 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.User
	for _, u := range s.users {
		if matches(u, opts) {
			matched = append(matched, u)
		}
	}
	slices.SortFunc(matched, func(a, b *models.User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Email, b.Email)
	})
	start, end := opts.Page.Window(len(matched))
	out := make([]*models.User, 0, end-start)
	for _, u := range matched[start:end] {
		out = append(out, u.Clone())
	}
	return out, len(matched), nil
}

func (s *InMemoryUserStore) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	delete(s.byEmail, models.NormalizeEmail(u.Email))
	delete(s.users, userID)
	return nil
}

// Lookup resolves display data for a set of users. Unknown IDs are omitted.
func (s *InMemoryUserStore) Lookup(_ context.Context, ids []id.UserID) (map[id.UserID]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.UserID]models.User, len(ids))
	for _, userID := range ids {
		if u, ok := s.users[userID]; ok {
			out[userID] = *u.Clone()
		}
	}
	return out, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}
