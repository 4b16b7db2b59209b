package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"shareledger/internal/certificates/models"
	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
	owner id.UserID
	share id.ShareID
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	s.owner = id.UserID(uuid.New())
	s.share = id.ShareID(uuid.New())
}

func (s *InMemoryStoreSuite) upload(sum string) *models.Certificate {
	s.now = s.now.Add(time.Minute)
	c, err := s.store.AddVersion(s.ctx, s.owner, s.share, func(_ []*models.Certificate, latest *models.Certificate) (*models.Certificate, error) {
		return models.NewVersion(id.CertificateID(uuid.New()), s.owner, s.share, models.File{Checksum: sum}, latest, s.now), nil
	})
	s.Require().NoError(err)
	return c
}

func (s *InMemoryStoreSuite) TestAddVersionSupersedes() {
	v1 := s.upload("a")
	v2 := s.upload("b")

	s.Equal(2, v2.Version)
	s.Equal(v1.ID, *v2.PreviousID)

	old, err := s.store.FindByID(s.ctx, v1.ID)
	s.Require().NoError(err)
	s.False(old.Latest)

	latest, total, err := s.store.List(s.ctx, ListOptions{Access: policy.Unrestricted(), LatestOnly: true})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(v2.ID, latest[0].ID)
}

func (s *InMemoryStoreSuite) TestAddVersionBuildErrorWritesNothing() {
	s.upload("a")
	_, err := s.store.AddVersion(s.ctx, s.owner, s.share, func(owned []*models.Certificate, _ *models.Certificate) (*models.Certificate, error) {
		s.Len(owned, 1)
		return nil, models.ErrDuplicateUpload
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	all, err := s.store.ListByOwner(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Len(all, 1)
	s.True(all[0].Latest)
}

func (s *InMemoryStoreSuite) TestRemovePromotesPrevious() {
	v1 := s.upload("a")
	v2 := s.upload("b")
	v3 := s.upload("c")

	s.Run("removing an older version relinks its successor", func() {
		_, err := s.store.Remove(s.ctx, v2.ID, s.now, func(*models.Certificate) error { return nil })
		s.Require().NoError(err)
		c, err := s.store.FindByID(s.ctx, v3.ID)
		s.Require().NoError(err)
		s.Equal(v1.ID, *c.PreviousID)
	})

	s.Run("removing the latest promotes its predecessor", func() {
		removed, err := s.store.Remove(s.ctx, v3.ID, s.now, func(*models.Certificate) error { return nil })
		s.Require().NoError(err)
		s.Equal(v3.ID, removed.ID)
		c, err := s.store.FindByID(s.ctx, v1.ID)
		s.Require().NoError(err)
		s.True(c.Latest)
	})

	s.Run("a failing check keeps the record", func() {
		_, err := s.store.Remove(s.ctx, v1.ID, s.now, func(*models.Certificate) error { return models.ErrNotPending })
		s.ErrorIs(err, models.ErrNotPending)
		_, err = s.store.FindByID(s.ctx, v1.ID)
		s.NoError(err)
	})

	s.Run("unknown id", func() {
		_, err := s.store.Remove(s.ctx, id.CertificateID(uuid.New()), s.now, func(*models.Certificate) error { return nil })
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestListAppliesAccessFilter() {
	s.upload("a")
	other := id.UserID(uuid.New())
	_, err := s.store.AddVersion(s.ctx, other, id.ShareID(uuid.New()), func(_ []*models.Certificate, latest *models.Certificate) (*models.Certificate, error) {
		return models.NewVersion(id.CertificateID(uuid.New()), other, id.ShareID(uuid.New()), models.File{}, latest, s.now), nil
	})
	s.Require().NoError(err)

	_, total, err := s.store.List(s.ctx, ListOptions{Access: policy.OwnerOnly(s.owner)})
	s.Require().NoError(err)
	s.Equal(1, total)

	_, total, err = s.store.List(s.ctx, ListOptions{Access: policy.Unrestricted(), Status: models.StatusApproved})
	s.Require().NoError(err)
	s.Zero(total)

	items, total, err := s.store.List(s.ctx, ListOptions{Access: policy.Empty()})
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(items)
}

func (s *InMemoryStoreSuite) TestFileStore() {
	files := NewInMemoryFileStore()
	certID := id.CertificateID(uuid.New())
	data := []byte("%PDF-1.7")

	s.Require().NoError(files.Put(s.ctx, certID, data))
	data[0] = 'X'
	got, err := files.Get(s.ctx, certID)
	s.Require().NoError(err)
	s.Equal("%PDF-1.7", string(got))

	s.Require().NoError(files.Delete(s.ctx, certID))
	_, err = files.Get(s.ctx, certID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
