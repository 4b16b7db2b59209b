package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	authmodels "shareledger/internal/auth/models"
	"shareledger/internal/auth/secrets"
	refreshtoken "shareledger/internal/auth/store/refresh-token"
	userStore "shareledger/internal/auth/store/user"
	certmodels "shareledger/internal/certificates/models"
	"shareledger/internal/policy"
	rateservice "shareledger/internal/ratelimit/service"
	"shareledger/internal/ratelimit/store/window"
	sharemodels "shareledger/internal/shares/models"
	shareservice "shareledger/internal/shares/service"
	sharestore "shareledger/internal/shares/store"
	"shareledger/internal/users/models"
	"shareledger/internal/users/store"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/audit/publisher"
	auditmemory "shareledger/pkg/platform/audit/store/memory"
)

type certArchive map[id.UserID][]*certmodels.Certificate

func (a certArchive) SnapshotByOwner(_ context.Context, owner id.UserID) ([]*certmodels.Certificate, error) {
	return a[owner], nil
}

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	users      *userStore.InMemoryUserStore
	tombstones *store.InMemoryStore
	refresh    *refreshtoken.InMemoryRefreshTokenStore
	shareStore *sharestore.InMemoryStore
	shares     *shareservice.Service
	certs      certArchive
	audit      *auditmemory.InMemoryStore
	service    *Service
	admin      policy.Actor
	director   policy.Actor
	alice      policy.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) clock() time.Time { return s.now }

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 4, 6, 11, 0, 0, 0, time.UTC)
	s.users = userStore.New()
	s.tombstones = store.NewInMemoryStore()
	s.refresh = refreshtoken.New()
	s.shareStore = sharestore.NewInMemoryStore()
	s.certs = certArchive{}
	s.audit = auditmemory.NewInMemoryStore()
	recorder := publisher.NewSync(s.audit, publisher.WithClock(s.clock))
	guard := policy.NewGuard(policy.MustCapabilities(), recorder)
	limiter := rateservice.New(window.NewInMemoryStore(), recorder, rateservice.WithClock(s.clock))
	s.shares = shareservice.New(s.shareStore, s.users, guard, recorder, shareservice.WithClock(s.clock))
	s.service = New(s.users, s.tombstones, s.shares, secrets.NewHasher(bcrypt.MinCost), guard, recorder,
		WithClock(s.clock),
		WithLimiter(limiter),
		WithCertificates(s.certs),
		WithSessions(s.refresh),
	)

	s.admin = s.addUser("admin@example.com", id.RoleSuperAdmin)
	s.director = s.addUser("director@example.com", id.RoleDirector)
	s.alice = s.addUser("alice@example.com", id.RoleShareholder)
}

func (s *ServiceSuite) addUser(email string, role id.Role) policy.Actor {
	u := &authmodels.User{
		ID:        id.UserID(uuid.New()),
		Email:     email,
		Role:      role,
		Active:    true,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
	s.Require().NoError(s.users.Create(s.ctx, u))
	return policy.Actor{ID: u.ID, Role: role}
}

func (s *ServiceSuite) entries(action audit.Action) []audit.Entry {
	all, err := s.audit.ListAll(s.ctx)
	s.Require().NoError(err)
	var out []audit.Entry
	for _, e := range all {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func (s *ServiceSuite) TestCreate() {
	s.Run("director creates a shareholder", func() {
		u, err := s.service.Create(s.ctx, s.director, CreateInput{
			Email: " New.Holder@Example.com", Name: "New Holder", Password: "correct-horse", Role: id.RoleShareholder,
		})
		s.Require().NoError(err)
		s.Equal("new.holder@example.com", u.Email)
		s.NotEmpty(u.PasswordHash)

		created := s.entries(audit.ActionUserCreated)
		s.Require().Len(created, 1)
		s.Equal(s.director.ID, *created[0].ActorID)
		s.NotContains(string(created[0].After), "password")
	})

	s.Run("director cannot create a director", func() {
		_, err := s.service.Create(s.ctx, s.director, CreateInput{
			Email: "d2@example.com", Name: "Second", Password: "correct-horse", Role: id.RoleDirector,
		})
		s.ErrorIs(err, policy.ErrAccessDenied)
		s.Len(s.entries(audit.ActionAccessDenied), 1)
	})

	s.Run("super admin creates a director", func() {
		u, err := s.service.Create(s.ctx, s.admin, CreateInput{
			Email: "d3@example.com", Name: "Third", Password: "correct-horse", Role: id.RoleDirector,
		})
		s.Require().NoError(err)
		s.Equal(id.RoleDirector, u.Role)
	})

	s.Run("duplicate email is a conflict", func() {
		_, err := s.service.Create(s.ctx, s.director, CreateInput{
			Email: "alice@example.com", Name: "Alice", Password: "correct-horse", Role: id.RoleShareholder,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("shareholders cannot create accounts", func() {
		_, err := s.service.Create(s.ctx, s.alice, CreateInput{
			Email: "x@example.com", Name: "X", Password: "correct-horse", Role: id.RoleShareholder,
		})
		s.ErrorIs(err, policy.ErrAccessDenied)
	})
}

func (s *ServiceSuite) TestGetAndList() {
	bob := s.addUser("bob@example.com", id.RoleShareholder)

	_, err := s.service.Get(s.ctx, s.alice, s.alice.ID)
	s.NoError(err)

	_, err = s.service.Get(s.ctx, s.alice, bob.ID)
	s.ErrorIs(err, policy.ErrAccessDenied)

	users, total, err := s.service.List(s.ctx, s.alice, ListRequest{})
	s.Require().NoError(err)
	s.Equal(1, total, "a shareholder lists only their own account")
	s.Equal(s.alice.ID, users[0].ID)

	_, total, err = s.service.List(s.ctx, s.director, ListRequest{Role: id.RoleShareholder})
	s.Require().NoError(err)
	s.Equal(2, total)

	_, total, err = s.service.List(s.ctx, policy.Actor{ID: id.UserID(uuid.New()), Role: id.RoleVisitor}, ListRequest{})
	s.Require().NoError(err)
	s.Zero(total)
}

func (s *ServiceSuite) TestUpdateProfile() {
	name := "Alice Liddell"
	u, err := s.service.UpdateProfile(s.ctx, s.alice, s.alice.ID, ProfileChanges{Name: &name})
	s.Require().NoError(err)
	s.Equal(name, u.Name)

	updated := s.entries(audit.ActionUserUpdated)
	s.Require().Len(updated, 1)
	s.Equal([]string{"name"}, updated[0].Details["fields"])
	s.NotEmpty(updated[0].Before)

	bob := s.addUser("bob@example.com", id.RoleShareholder)
	_, err = s.service.UpdateProfile(s.ctx, bob, s.alice.ID, ProfileChanges{Name: &name})
	s.ErrorIs(err, policy.ErrAccessDenied)
}

func (s *ServiceSuite) TestChangeRole() {
	s.Run("director promotes a visitor", func() {
		visitor := s.addUser("visitor@example.com", id.RoleVisitor)
		u, err := s.service.ChangeRole(s.ctx, s.director, visitor.ID, id.RoleShareholder)
		s.Require().NoError(err)
		s.Equal(id.RoleShareholder, u.Role)

		changed := s.entries(audit.ActionRoleChanged)
		s.Require().Len(changed, 1)
		s.True(changed[0].IsRisky())
		s.Equal("visitor", changed[0].Details["from"])
		s.Equal("shareholder", changed[0].Details["to"])
	})

	s.Run("director cannot grant director", func() {
		_, err := s.service.ChangeRole(s.ctx, s.director, s.alice.ID, id.RoleDirector)
		s.ErrorIs(err, policy.ErrAccessDenied)
	})

	s.Run("super admin grants director", func() {
		_, err := s.service.ChangeRole(s.ctx, s.admin, s.alice.ID, id.RoleDirector)
		s.NoError(err)
	})

	s.Run("self change is refused", func() {
		_, err := s.service.ChangeRole(s.ctx, s.admin, s.admin.ID, id.RoleDirector)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown role is refused before policy", func() {
		_, err := s.service.ChangeRole(s.ctx, s.admin, s.alice.ID, id.Role("owner"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestDeactivateRevokesSessions() {
	s.Require().NoError(s.refresh.Create(s.ctx, &authmodels.RefreshTokenRecord{
		JTI: "jti-1", UserID: s.alice.ID, CreatedAt: s.now, ExpiresAt: s.now.Add(time.Hour),
	}))

	u, err := s.service.SetActive(s.ctx, s.director, s.alice.ID, false)
	s.Require().NoError(err)
	s.False(u.Active)

	rec, err := s.refresh.Consume(s.ctx, "jti-1", s.now)
	s.Error(err)
	s.Require().NotNil(rec)
	s.True(rec.Revoked)
	s.Len(s.entries(audit.ActionUserDeactivated), 1)

	_, err = s.service.SetActive(s.ctx, s.director, s.director.ID, false)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.SetActive(s.ctx, s.director, s.admin.ID, false)
	s.ErrorIs(err, policy.ErrAccessDenied)
}

func (s *ServiceSuite) TestDeleteWritesTombstoneAndRetiresShares() {
	kept, err := s.shares.Assign(s.ctx, s.director, sharemodels.Assignment{OwnerID: s.alice.ID, Count: 10, Price: decimal.NewFromInt(2)})
	s.Require().NoError(err)
	gone, err := s.shares.Assign(s.ctx, s.director, sharemodels.Assignment{OwnerID: s.alice.ID, Count: 3, Price: decimal.NewFromInt(2)})
	s.Require().NoError(err)
	s.Require().NoError(s.shares.Delete(s.ctx, s.director, gone.ID, "error"))
	s.certs[s.alice.ID] = []*certmodels.Certificate{{ID: id.CertificateID(uuid.New()), OwnerID: s.alice.ID, ShareID: kept.ID}}

	tomb, err := s.service.Delete(s.ctx, s.director, s.alice.ID, "requested by holder")
	s.Require().NoError(err)
	s.Len(tomb.Shares, 2)
	s.Len(tomb.Certificates, 1)
	s.Equal([]id.ShareID{kept.ID}, tomb.RetiredShareIDs)
	s.Equal(s.now.Add(models.DefaultRetention), tomb.PurgeAt)

	_, err = s.users.FindByID(s.ctx, s.alice.ID)
	s.Error(err, "the live record is gone")

	stored, err := s.shareStore.FindByID(s.ctx, kept.ID)
	s.Require().NoError(err)
	s.False(stored.Active)

	deleted := s.entries(audit.ActionUserDeleted)
	s.Require().Len(deleted, 1)
	s.True(deleted[0].IsRisky())
	s.Equal(audit.SeverityHigh, deleted[0].Severity)
	s.Equal(tomb.ID.String(), deleted[0].Details["tombstone_id"])

	summaries, total, err := s.service.ListDeleted(s.ctx, s.director, id.Page{})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("alice@example.com", summaries[0].Email)
}

func (s *ServiceSuite) TestRestore() {
	share, err := s.shares.Assign(s.ctx, s.director, sharemodels.Assignment{OwnerID: s.alice.ID, Count: 1, Price: decimal.NewFromInt(1)})
	s.Require().NoError(err)
	tomb, err := s.service.Delete(s.ctx, s.director, s.alice.ID, "")
	s.Require().NoError(err)

	s.Run("brings back the account and its shares", func() {
		restored, err := s.service.Restore(s.ctx, s.director, tomb.ID)
		s.Require().NoError(err)
		s.Equal(s.alice.ID, restored.User.ID)

		u, err := s.users.FindByID(s.ctx, s.alice.ID)
		s.Require().NoError(err)
		s.Equal("alice@example.com", u.Email)

		stored, err := s.shareStore.FindByID(s.ctx, share.ID)
		s.Require().NoError(err)
		s.True(stored.Active)

		_, err = s.tombstones.FindByID(s.ctx, tomb.ID)
		s.Error(err)
		s.Require().Len(s.entries(audit.ActionUserRestored), 1)
		s.Equal(1, s.entries(audit.ActionUserRestored)[0].Details["reinstated_shares"])
	})

	s.Run("a re-registered email blocks the restore", func() {
		tomb, err := s.service.Delete(s.ctx, s.director, s.alice.ID, "")
		s.Require().NoError(err)
		s.addUser("alice@example.com", id.RoleShareholder)

		_, err = s.service.Restore(s.ctx, s.director, tomb.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("expired tombstones are gone", func() {
		bob := s.addUser("bob@example.com", id.RoleShareholder)
		tomb, err := s.service.Delete(s.ctx, s.director, bob.ID, "")
		s.Require().NoError(err)
		s.now = s.now.Add(models.DefaultRetention + time.Minute)

		_, err = s.service.Restore(s.ctx, s.director, tomb.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDeleteGuards() {
	_, err := s.service.Delete(s.ctx, s.director, s.director.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Delete(s.ctx, s.director, s.admin.ID, "")
	s.ErrorIs(err, policy.ErrAccessDenied)

	_, err = s.service.Delete(s.ctx, s.alice, s.director.ID, "")
	s.ErrorIs(err, policy.ErrAccessDenied)
}

func (s *ServiceSuite) TestDeleteIsRateLimited() {
	for i := range 5 {
		u := s.addUser(uuid.NewString()+"@example.com", id.RoleShareholder)
		_, err := s.service.Delete(s.ctx, s.director, u.ID, "")
		s.Require().NoError(err, "deletion %d", i)
	}
	u := s.addUser("sixth@example.com", id.RoleShareholder)
	_, err := s.service.Delete(s.ctx, s.director, u.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	_, err = s.users.FindByID(s.ctx, u.ID)
	s.NoError(err, "a limited deletion leaves the account in place")
}

func (s *ServiceSuite) TestPurgeExpired() {
	_, err := s.service.Delete(s.ctx, s.director, s.alice.ID, "")
	s.Require().NoError(err)

	n, err := s.service.PurgeExpired(s.ctx, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Zero(n)

	n, err = s.service.PurgeExpired(s.ctx, s.now.Add(models.DefaultRetention))
	s.Require().NoError(err)
	s.Equal(1, n)
}
