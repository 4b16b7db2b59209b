package refreshtoken

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shareledger/internal/auth/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
)

// InMemoryRefreshTokenStore stores refresh tokens in memory for tests/dev.
type InMemoryRefreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshTokenRecord
}

// New constructs an empty in-memory refresh token store.
func New() *InMemoryRefreshTokenStore {
	return &InMemoryRefreshTokenStore{tokens: make(map[string]*models.RefreshTokenRecord)}
}

func (s *InMemoryRefreshTokenStore) Create(_ context.Context, rec *models.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[rec.JTI]; ok {
		return fmt.Errorf("refresh token %s: %w", rec.JTI, sentinel.ErrConflict)
	}
	cp := *rec
	s.tokens[rec.JTI] = &cp
	return nil
}

// Consume marks the record used. The check and the mark happen under one
// lock, so two concurrent presentations of the same token cannot both win.
func (s *InMemoryRefreshTokenStore) Consume(_ context.Context, jti string, now time.Time) (*models.RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[jti]
	if !ok {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	if err := checkConsumable(rec, now); err != nil {
		cp := *rec
		return &cp, err
	}
	rec.Used = true
	rec.UsedAt = &now
	cp := *rec
	return &cp, nil
}

func (s *InMemoryRefreshTokenStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[jti]
	if !ok {
		return fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	rec.Revoked = true
	return nil
}

// RevokeByUser revokes every live record for userID and returns how many
// were affected.
func (s *InMemoryRefreshTokenStore) RevokeByUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.tokens {
		if rec.UserID == userID && !rec.Revoked {
			rec.Revoked = true
			n++
		}
	}
	return n, nil
}

// Sweep removes expired records. It satisfies sweeper.Job.
func (s *InMemoryRefreshTokenStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for jti, rec := range s.tokens {
		if rec.Expired(now) {
			delete(s.tokens, jti)
			n++
		}
	}
	return n, nil
}
