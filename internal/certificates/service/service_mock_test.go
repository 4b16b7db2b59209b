package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"shareledger/internal/certificates/models"
	"shareledger/internal/certificates/service/mocks"
	"shareledger/internal/certificates/store"
	"shareledger/internal/policy"
	sharemodels "shareledger/internal/shares/models"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
)

var errStoreDown = errors.New("connection refused")

type captured struct{ entries []audit.Entry }

func (c *captured) Record(_ context.Context, e audit.Entry) { c.entries = append(c.entries, e) }

type mocked struct {
	svc    *Service
	store  *mocks.MockStore
	files  *mocks.MockFileStore
	shares *mocks.MockShareDirectory
	rec    *captured
}

func newMocked(t *testing.T) mocked {
	ctrl := gomock.NewController(t)
	m := mocked{
		store:  mocks.NewMockStore(ctrl),
		files:  mocks.NewMockFileStore(ctrl),
		shares: mocks.NewMockShareDirectory(ctrl),
		rec:    &captured{},
	}
	guard := policy.NewGuard(policy.MustCapabilities(), m.rec)
	now := time.Date(2026, 4, 6, 9, 30, 0, 0, time.UTC)
	m.svc = New(m.store, m.files, m.shares, guard, m.rec, WithClock(func() time.Time { return now }))
	return m
}

func TestUploadWithdrawsRecordWhenFileWriteFails(t *testing.T) {
	m := newMocked(t)
	owner := policy.Actor{ID: id.UserID(uuid.New()), Role: id.RoleShareholder}
	share := &sharemodels.Share{ID: id.ShareID(uuid.New()), OwnerID: owner.ID, Active: true}

	m.shares.EXPECT().FindByID(gomock.Any(), share.ID).Return(share, nil)
	var created *models.Certificate
	gomock.InOrder(
		m.store.EXPECT().AddVersion(gomock.Any(), owner.ID, share.ID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.UserID, _ id.ShareID, build store.VersionFunc) (*models.Certificate, error) {
				c, err := build(nil, nil)
				created = c
				return c, err
			}),
		m.files.EXPECT().Put(gomock.Any(), gomock.Any(), pdfBytes).Return(errStoreDown),
		m.store.EXPECT().Remove(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, certID id.CertificateID, _ time.Time, _ store.RemoveFunc) (*models.Certificate, error) {
				assert.Equal(t, created.ID, certID)
				return created, nil
			}),
	)

	_, err := m.svc.Upload(context.Background(), owner, Upload{ShareID: share.ID, Data: pdfBytes})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	require.Len(t, m.rec.entries, 1)
	assert.False(t, m.rec.entries[0].Success)
	assert.Equal(t, "file_store_error", m.rec.entries[0].Details["reason"])
}

func TestReviewStoreFailureIsAudited(t *testing.T) {
	m := newMocked(t)
	director := policy.Actor{ID: id.UserID(uuid.New()), Role: id.RoleDirector}
	certID := id.CertificateID(uuid.New())

	m.store.EXPECT().Update(gomock.Any(), certID, gomock.Any()).Return(nil, errStoreDown)

	_, err := m.svc.Approve(context.Background(), director, certID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	require.Len(t, m.rec.entries, 1)
	assert.Equal(t, audit.ActionCertificateApproved, m.rec.entries[0].Action)
	assert.False(t, m.rec.entries[0].Success)
}

func TestRejectWithoutReasonTouchesNoPort(t *testing.T) {
	m := newMocked(t)
	director := policy.Actor{ID: id.UserID(uuid.New()), Role: id.RoleDirector}

	_, err := m.svc.Reject(context.Background(), director, id.CertificateID(uuid.New()), "")
	assert.ErrorIs(t, err, models.ErrReasonRequired)
	assert.Empty(t, m.rec.entries)
}

func TestDeleteKeepsGoingWhenFileCleanupFails(t *testing.T) {
	m := newMocked(t)
	director := policy.Actor{ID: id.UserID(uuid.New()), Role: id.RoleDirector}
	cert := &models.Certificate{ID: id.CertificateID(uuid.New()), OwnerID: id.UserID(uuid.New()), Status: models.StatusApproved}

	m.store.EXPECT().FindByID(gomock.Any(), cert.ID).Return(cert, nil)
	m.store.EXPECT().Remove(gomock.Any(), cert.ID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.CertificateID, _ time.Time, check store.RemoveFunc) (*models.Certificate, error) {
			require.NoError(t, check(cert))
			return cert, nil
		})
	m.files.EXPECT().Delete(gomock.Any(), cert.ID).Return(errStoreDown)

	require.NoError(t, m.svc.Delete(context.Background(), director, cert.ID))
	require.Len(t, m.rec.entries, 1)
	assert.Equal(t, audit.ActionCertificateDeleted, m.rec.entries[0].Action)
	assert.True(t, m.rec.entries[0].Success)
}
