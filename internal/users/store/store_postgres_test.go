package store

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	authmodels "shareledger/internal/auth/models"
	"shareledger/internal/users/models"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/sentinel"
)

type PostgresStoreSuite struct {
	suite.Suite
	store *PostgresStore
	mock  sqlmock.Sqlmock
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	s.store = NewPostgres(db)
	s.mock = mock
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) TearDownTest() {
	s.Require().NoError(s.mock.ExpectationsWereMet())
}

var tombstoneCols = []string{
	"id", "user_id", "email", "account", "credentials", "shares", "certificates",
	"retired_share_ids", "deleted_by", "reason", "deleted_at", "purge_at",
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func (s *PostgresStoreSuite) TestCreate() {
	u := &authmodels.User{ID: id.UserID(uuid.New()), Email: "gone@example.com", Role: id.RoleShareholder}
	d := models.NewDeletedUser(id.TombstoneID(uuid.New()), u, nil, nil, id.UserID(uuid.New()), "", time.Now(), 0)

	s.Run("inserts", func() {
		s.mock.ExpectExec("INSERT INTO deleted_users").WithArgs(anyArgs(12)...).WillReturnResult(sqlmock.NewResult(1, 1))
		s.NoError(s.store.Create(s.ctx, d))
	})

	s.Run("unique violation is ErrConflict", func() {
		s.mock.ExpectExec("INSERT INTO deleted_users").WithArgs(anyArgs(12)...).
			WillReturnError(&pq.Error{Code: uniqueViolation})
		s.ErrorIs(s.store.Create(s.ctx, d), sentinel.ErrConflict)
	})
}

func (s *PostgresStoreSuite) TestFindByIDRestoresCredentials() {
	tombID := uuid.New()
	userID := uuid.New()
	shareID := uuid.New()
	now := time.Now().UTC()

	s.mock.ExpectQuery(`SELECT .+ FROM deleted_users WHERE id = \$1`).
		WithArgs(tombID).
		WillReturnRows(sqlmock.NewRows(tombstoneCols).AddRow(
			tombID.String(), userID.String(), "gone@example.com",
			[]byte(`{"email":"gone@example.com","role":"shareholder","active":true}`),
			[]byte(`{"password_hash":"$2a$hash","security":{"TOTPEnabled":true}}`),
			[]byte(`[]`), []byte(`[]`),
			"{"+shareID.String()+"}", uuid.New().String(), "requested", now, now.Add(models.DefaultRetention),
		))

	d, err := s.store.FindByID(s.ctx, id.TombstoneID(tombID))
	s.Require().NoError(err)
	s.Equal(id.UserID(userID), d.User.ID)
	s.Equal("$2a$hash", d.User.PasswordHash)
	s.True(d.User.Security.TOTPEnabled)
	s.Equal([]id.ShareID{id.ShareID(shareID)}, d.RetiredShareIDs)
}

func (s *PostgresStoreSuite) TestFindByIDMissing() {
	s.mock.ExpectQuery(`SELECT .+ FROM deleted_users`).WillReturnRows(sqlmock.NewRows(tombstoneCols))
	_, err := s.store.FindByID(s.ctx, id.TombstoneID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestList() {
	s.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM deleted_users`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	s.mock.ExpectQuery(`SELECT .+ FROM deleted_users ORDER BY deleted_at DESC, email ASC LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows(tombstoneCols))

	items, total, err := s.store.List(s.ctx, id.Page{})
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(items)
}

func (s *PostgresStoreSuite) TestDeleteExpired() {
	now := time.Now()
	s.mock.ExpectExec(`DELETE FROM deleted_users WHERE purge_at <= \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.store.DeleteExpired(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *PostgresStoreSuite) TestDeleteMissing() {
	s.mock.ExpectExec("DELETE FROM deleted_users").WillReturnResult(sqlmock.NewResult(0, 0))
	s.ErrorIs(s.store.Delete(s.ctx, id.TombstoneID(uuid.New())), sentinel.ErrNotFound)
}
