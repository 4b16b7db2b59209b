package refreshtoken

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"shareledger/internal/auth/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
)

type InMemoryRefreshTokenStoreSuite struct {
	suite.Suite
	store *InMemoryRefreshTokenStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryRefreshTokenStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryRefreshTokenStoreSuite))
}

func (s *InMemoryRefreshTokenStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryRefreshTokenStoreSuite) issue(userID id.UserID) *models.RefreshTokenRecord {
	rec := &models.RefreshTokenRecord{
		JTI:       uuid.NewString(),
		UserID:    userID,
		SessionID: id.SessionID(uuid.New()),
		CreatedAt: s.now,
		ExpiresAt: s.now.Add(7 * 24 * time.Hour),
	}
	s.Require().NoError(s.store.Create(s.ctx, rec))
	return rec
}

func (s *InMemoryRefreshTokenStoreSuite) TestConsume() {
	userID := id.UserID(uuid.New())

	s.Run("first use succeeds", func() {
		rec := s.issue(userID)
		got, err := s.store.Consume(s.ctx, rec.JTI, s.now)
		s.Require().NoError(err)
		s.True(got.Used)
		s.Equal(s.now, *got.UsedAt)
	})

	s.Run("second use is a replay and still returns the record", func() {
		rec := s.issue(userID)
		_, err := s.store.Consume(s.ctx, rec.JTI, s.now)
		s.Require().NoError(err)

		got, err := s.store.Consume(s.ctx, rec.JTI, s.now.Add(time.Minute))
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
		s.Require().NotNil(got)
		s.Equal(userID, got.UserID)
	})

	s.Run("expired", func() {
		rec := s.issue(userID)
		_, err := s.store.Consume(s.ctx, rec.JTI, rec.ExpiresAt)
		s.ErrorIs(err, sentinel.ErrExpired)
	})

	s.Run("revoked", func() {
		rec := s.issue(userID)
		s.Require().NoError(s.store.Revoke(s.ctx, rec.JTI))
		_, err := s.store.Consume(s.ctx, rec.JTI, s.now)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown", func() {
		_, err := s.store.Consume(s.ctx, "nope", s.now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryRefreshTokenStoreSuite) TestConcurrentConsumeHasOneWinner() {
	rec := s.issue(id.UserID(uuid.New()))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.Consume(s.ctx, rec.JTI, s.now); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, wins)
}

func (s *InMemoryRefreshTokenStoreSuite) TestRevokeByUser() {
	victim := id.UserID(uuid.New())
	other := id.UserID(uuid.New())
	a := s.issue(victim)
	s.issue(victim)
	keep := s.issue(other)

	n, err := s.store.RevokeByUser(s.ctx, victim)
	s.Require().NoError(err)
	s.Equal(2, n)

	_, err = s.store.Consume(s.ctx, a.JTI, s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)
	_, err = s.store.Consume(s.ctx, keep.JTI, s.now)
	s.NoError(err)
}

func (s *InMemoryRefreshTokenStoreSuite) TestSweep() {
	rec := s.issue(id.UserID(uuid.New()))
	n, err := s.store.Sweep(s.ctx, rec.ExpiresAt.Add(time.Second))
	s.Require().NoError(err)
	s.Equal(1, n)
	_, err = s.store.Consume(s.ctx, rec.JTI, s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
