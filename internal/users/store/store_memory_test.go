package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	authmodels "shareledger/internal/auth/models"
	"shareledger/internal/users/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	base  time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) tombstone(email string, deletedAt time.Time) *models.DeletedUser {
	u := &authmodels.User{ID: id.UserID(uuid.New()), Email: email, Role: id.RoleShareholder, PasswordHash: "$2a$hash"}
	d := models.NewDeletedUser(id.TombstoneID(uuid.New()), u, nil, nil, id.UserID(uuid.New()), "left", deletedAt, 0)
	s.Require().NoError(s.store.Create(s.ctx, d))
	return d
}

func (s *InMemoryStoreSuite) TestCreateAndFind() {
	d := s.tombstone("gone@example.com", s.base)

	found, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal("gone@example.com", found.User.Email)
	s.Equal("$2a$hash", found.User.PasswordHash)
	s.Equal(s.base.Add(models.DefaultRetention), found.PurgeAt)

	s.ErrorIs(s.store.Create(s.ctx, d), sentinel.ErrConflict)

	_, err = s.store.FindByID(s.ctx, id.TombstoneID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestListNewestFirst() {
	s.tombstone("first@example.com", s.base)
	s.tombstone("second@example.com", s.base.Add(time.Hour))

	items, total, err := s.store.List(s.ctx, id.Page{})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Equal("second@example.com", items[0].User.Email)

	items, total, err = s.store.List(s.ctx, id.Page{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Require().Len(items, 1)
	s.Equal("first@example.com", items[0].User.Email)
}

func (s *InMemoryStoreSuite) TestDeleteExpired() {
	old := s.tombstone("old@example.com", s.base)
	fresh := s.tombstone("fresh@example.com", s.base.Add(10*24*time.Hour))

	n, err := s.store.DeleteExpired(s.ctx, s.base.Add(models.DefaultRetention))
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.store.FindByID(s.ctx, old.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(s.ctx, fresh.ID)
	s.NoError(err)
}

func (s *InMemoryStoreSuite) TestDelete() {
	d := s.tombstone("restore@example.com", s.base)
	s.Require().NoError(s.store.Delete(s.ctx, d.ID))
	s.ErrorIs(s.store.Delete(s.ctx, d.ID), sentinel.ErrNotFound)
}
