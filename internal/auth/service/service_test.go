package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"shareledger/internal/auth/models"
	"shareledger/internal/auth/secrets"
	refreshtoken "shareledger/internal/auth/store/refresh-token"
	"shareledger/internal/auth/store/revocation"
	userStore "shareledger/internal/auth/store/user"
	"shareledger/internal/auth/totp"
	jwttoken "shareledger/internal/jwt_token"
	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/audit/publisher"
	auditmemory "shareledger/pkg/platform/audit/store/memory"
)

type capturedReset struct {
	user   *models.User
	token  string
	expiry time.Time
}

type captureNotifier struct {
	sent []capturedReset
}

func (n *captureNotifier) PasswordResetRequested(_ context.Context, u *models.User, token string, expiresAt time.Time) error {
	n.sent = append(n.sent, capturedReset{user: u, token: token, expiry: expiresAt})
	return nil
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	users    *userStore.InMemoryUserStore
	refresh  *refreshtoken.InMemoryRefreshTokenStore
	trl      *revocation.InMemoryTRL
	tokens   *jwttoken.JWTService
	auth     *totp.Authenticator
	hasher   *secrets.Hasher
	audit    *auditmemory.InMemoryStore
	notifier *captureNotifier
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) clock() time.Time { return s.now }

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.users = userStore.New()
	s.refresh = refreshtoken.New()
	s.trl = revocation.NewInMemoryTRL(revocation.WithClock(s.clock))
	tokens, err := jwttoken.NewJWTService(jwttoken.Config{
		Issuer:        "shareledger",
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		MFASecret:     "mfa-secret",
	}, jwttoken.WithClock(s.clock))
	s.Require().NoError(err)
	s.tokens = tokens
	s.auth = totp.New("ShareLedger", totp.WithClock(s.clock))
	s.hasher = secrets.NewHasher(bcrypt.MinCost)
	s.audit = auditmemory.NewInMemoryStore()
	s.notifier = &captureNotifier{}

	recorder := publisher.NewSync(s.audit, publisher.WithClock(s.clock))
	guard := policy.NewGuard(policy.MustCapabilities(), recorder)
	s.service = New(s.users, s.refresh, s.trl, s.tokens, s.hasher, s.auth, recorder,
		WithClock(s.clock),
		WithGuard(guard),
		WithNotifier(s.notifier),
	)
}

func (s *ServiceSuite) seedUser(email, password string, role id.Role) *models.User {
	hash, err := s.hasher.Hash(password)
	s.Require().NoError(err)
	u := &models.User{
		ID:           id.UserID(uuid.New()),
		Email:        email,
		Name:         "Test User",
		Role:         role,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    s.now,
		UpdatedAt:    s.now,
	}
	s.Require().NoError(s.users.Create(s.ctx, u))
	return u
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

func (s *ServiceSuite) enableTOTP(u *models.User) string {
	setup, err := s.service.SetupTwoFactor(s.ctx, u.ID)
	s.Require().NoError(err)
	code, err := s.auth.CodeAt(setup.Secret, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.service.EnableTwoFactor(s.ctx, u.ID, code))
	return setup.Secret
}

func (s *ServiceSuite) TestLoginIssuesTokenPair() {
	u := s.seedUser("u1@example.com", "correct-password", id.RoleShareholder)

	result, err := s.service.Login(s.ctx, "U1@Example.com ", "correct-password", "")
	s.Require().NoError(err)
	s.NotEmpty(result.AccessToken)
	s.NotEmpty(result.RefreshToken)
	s.Equal("Bearer", result.TokenType)
	s.Equal(900, result.ExpiresIn)
	s.False(result.RequiresTwoFactor)

	claims, err := s.tokens.Parse(jwttoken.TypeAccess, result.AccessToken)
	s.Require().NoError(err)
	s.Equal(u.ID.String(), claims.Subject)
	s.Equal(id.RoleShareholder, claims.Role)
	s.NotEmpty(claims.SessionID)

	logins := s.entries(audit.ActionLogin)
	s.Require().Len(logins, 1)
	s.True(logins[0].Success)
	s.Equal(audit.SeverityLow, logins[0].Severity)
	s.Equal(u.ID, *logins[0].ActorID)

	stored, err := s.users.FindByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.Security.LastLoginAt)
	s.Equal(s.now, *stored.Security.LastLoginAt)
}

func (s *ServiceSuite) TestLockoutAfterConsecutiveFailures() {
	u := s.seedUser("u2@example.com", "correct-password", id.RoleShareholder)

	for i := 0; i < 5; i++ {
		_, err := s.service.Login(s.ctx, u.Email, "wrong-password", "")
		s.Require().ErrorIs(err, ErrInvalidCredentials)
	}
	locked := s.entries(audit.ActionAccountLocked)
	s.Require().Len(locked, 1)
	s.Equal(audit.SeverityHigh, locked[0].Severity)
	s.Equal(audit.CategorySecurity, locked[0].Category)

	_, err := s.service.Login(s.ctx, u.Email, "correct-password", "")
	s.Require().ErrorIs(err, ErrAccountLocked)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	failures := s.entries(audit.ActionLoginFailed)
	s.Require().Len(failures, 6)
	s.Equal(audit.SeverityMedium, failures[0].Severity)
	s.Equal(audit.SeverityHigh, failures[5].Severity)
	s.Equal("account_locked", failures[5].Details["reason"])

	s.now = s.now.Add(2*time.Hour + time.Second)
	_, err = s.service.Login(s.ctx, u.Email, "correct-password", "")
	s.Require().NoError(err)

	stored, err := s.users.FindByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Zero(stored.Security.LoginAttempts)
	s.Nil(stored.Security.LockoutUntil)
}

func (s *ServiceSuite) TestUnknownEmailIsIndistinguishable() {
	s.seedUser("known@example.com", "correct-password", id.RoleShareholder)

	_, unknownErr := s.service.Login(s.ctx, "nobody@example.com", "whatever", "")
	_, wrongErr := s.service.Login(s.ctx, "known@example.com", "whatever", "")
	s.Require().ErrorIs(unknownErr, ErrInvalidCredentials)
	s.Require().ErrorIs(wrongErr, ErrInvalidCredentials)
	s.Equal(dErrors.Message(unknownErr), dErrors.Message(wrongErr))

	failures := s.entries(audit.ActionLoginFailed)
	s.Require().Len(failures, 2)
	s.Nil(failures[0].ActorID)
	s.Equal("nobody@example.com", failures[0].TargetEmail)
	s.Equal("unknown_email", failures[0].Details["reason"])
}

func (s *ServiceSuite) TestInactiveAccountCannotLogin() {
	u := s.seedUser("inactive@example.com", "correct-password", id.RoleShareholder)
	_, err := s.users.Update(s.ctx, u.ID, func(u *models.User) error {
		u.Active = false
		return nil
	})
	s.Require().NoError(err)

	_, err = s.service.Login(s.ctx, u.Email, "correct-password", "")
	s.Require().ErrorIs(err, ErrAccountInactive)
	s.Empty(s.entries(audit.ActionLogin))
}

func (s *ServiceSuite) TestTwoFactorLogin() {
	u := s.seedUser("mfa@example.com", "correct-password", id.RoleDirector)
	secret := s.enableTOTP(u)
	s.Len(s.entries(audit.ActionTwoFactorEnabled), 1)

	s.Run("password alone yields a challenge", func() {
		result, err := s.service.Login(s.ctx, u.Email, "correct-password", "")
		s.Require().NoError(err)
		s.True(result.RequiresTwoFactor)
		s.NotEmpty(result.TempToken)
		s.Empty(result.AccessToken)

		_, err = s.service.CompleteTwoFactor(s.ctx, result.TempToken, "000000")
		s.Require().ErrorIs(err, ErrInvalidCredentials)
		failed := s.entries(audit.ActionTwoFactorFailed)
		s.Require().NotEmpty(failed)
		s.Equal(audit.SeverityHigh, failed[len(failed)-1].Severity)

		code, err := s.auth.CodeAt(secret, s.now)
		s.Require().NoError(err)
		done, err := s.service.CompleteTwoFactor(s.ctx, result.TempToken, code)
		s.Require().NoError(err)
		s.NotEmpty(done.AccessToken)

		_, err = s.service.CompleteTwoFactor(s.ctx, result.TempToken, code)
		s.Require().ErrorIs(err, ErrInvalidToken)
	})

	s.Run("code supplied with password", func() {
		code, err := s.auth.CodeAt(secret, s.now)
		s.Require().NoError(err)
		result, err := s.service.Login(s.ctx, u.Email, "correct-password", code)
		s.Require().NoError(err)
		s.False(result.RequiresTwoFactor)
		s.NotEmpty(result.RefreshToken)
	})

	s.Run("disable requires password and code", func() {
		code, err := s.auth.CodeAt(secret, s.now)
		s.Require().NoError(err)
		s.Require().ErrorIs(s.service.DisableTwoFactor(s.ctx, u.ID, "wrong", code), ErrInvalidCredentials)
		s.Require().NoError(s.service.DisableTwoFactor(s.ctx, u.ID, "correct-password", code))

		disabled := s.entries(audit.ActionTwoFactorDisabled)
		s.Require().NotEmpty(disabled)
		last := disabled[len(disabled)-1]
		s.True(last.Success)
		s.True(last.IsRisky())
	})
}

func (s *ServiceSuite) TestRefreshRotationDetectsReplay() {
	u := s.seedUser("rotate@example.com", "correct-password", id.RoleShareholder)
	first, err := s.service.Login(s.ctx, u.Email, "correct-password", "")
	s.Require().NoError(err)

	second, err := s.service.Refresh(s.ctx, first.RefreshToken)
	s.Require().NoError(err)
	s.NotEqual(first.RefreshToken, second.RefreshToken)

	firstClaims, err := s.tokens.Parse(jwttoken.TypeAccess, first.AccessToken)
	s.Require().NoError(err)
	secondClaims, err := s.tokens.Parse(jwttoken.TypeAccess, second.AccessToken)
	s.Require().NoError(err)
	s.Equal(firstClaims.SessionID, secondClaims.SessionID)

	_, err = s.service.Refresh(s.ctx, first.RefreshToken)
	s.Require().ErrorIs(err, ErrInvalidToken)

	_, err = s.service.Refresh(s.ctx, second.RefreshToken)
	s.Require().ErrorIs(err, ErrInvalidToken, "replay revokes the whole family")

	var replay *audit.Entry
	for _, e := range s.entries(audit.ActionTokenRefresh) {
		if !e.Success && e.Details["reason"] == "refresh_token_replay" {
			replay = &e
		}
	}
	s.Require().NotNil(replay)
	s.Equal(audit.SeverityHigh, replay.Severity)
	s.Equal(audit.CategorySecurity, replay.Category)
}

func (s *ServiceSuite) TestRefreshRejectsDeactivatedUser() {
	u := s.seedUser("gone@example.com", "correct-password", id.RoleShareholder)
	result, err := s.service.Login(s.ctx, u.Email, "correct-password", "")
	s.Require().NoError(err)

	_, err = s.users.Update(s.ctx, u.ID, func(u *models.User) error {
		u.Active = false
		return nil
	})
	s.Require().NoError(err)

	_, err = s.service.Refresh(s.ctx, result.RefreshToken)
	s.Require().ErrorIs(err, ErrAccountInactive)
}

func (s *ServiceSuite) TestLogoutRevokesTokens() {
	u := s.seedUser("bye@example.com", "correct-password", id.RoleShareholder)
	result, err := s.service.Login(s.ctx, u.Email, "correct-password", "")
	s.Require().NoError(err)

	s.service.Logout(s.ctx, result.AccessToken, result.RefreshToken)

	claims, err := s.tokens.Parse(jwttoken.TypeAccess, result.AccessToken)
	s.Require().NoError(err)
	revoked, err := s.trl.IsRevoked(s.ctx, claims.ID)
	s.Require().NoError(err)
	s.True(revoked)

	_, err = s.service.Refresh(s.ctx, result.RefreshToken)
	s.Require().ErrorIs(err, ErrInvalidToken)
	s.Len(s.entries(audit.ActionLogout), 1)

	s.NotPanics(func() { s.service.Logout(s.ctx, "garbage", "") })
}

func (s *ServiceSuite) TestPasswordReset() {
	u := s.seedUser("reset@example.com", "old-password", id.RoleShareholder)

	s.service.RequestPasswordReset(s.ctx, "missing@example.com")
	s.Empty(s.notifier.sent)

	s.service.RequestPasswordReset(s.ctx, u.Email)
	s.Require().Len(s.notifier.sent, 1)
	token := s.notifier.sent[0].token
	s.Equal(s.now.Add(time.Hour), s.notifier.sent[0].expiry)

	requests := s.entries(audit.ActionPasswordResetRequest)
	s.Require().Len(requests, 2)
	s.Equal(false, requests[0].Details["account_found"])
	s.Nil(requests[0].ActorID)

	s.Require().NoError(s.service.ResetPassword(s.ctx, token, "new-password-1"))
	_, err := s.service.Login(s.ctx, u.Email, "new-password-1", "")
	s.Require().NoError(err)

	err = s.service.ResetPassword(s.ctx, token, "another-password")
	s.Require().ErrorIs(err, ErrInvalidResetToken)

	s.Run("expired token", func() {
		s.service.RequestPasswordReset(s.ctx, u.Email)
		token := s.notifier.sent[len(s.notifier.sent)-1].token
		s.now = s.now.Add(time.Hour)
		s.Require().ErrorIs(s.service.ResetPassword(s.ctx, token, "late-password"), ErrInvalidResetToken)
	})
}

func (s *ServiceSuite) TestChangePasswordRevokesRefreshTokens() {
	u := s.seedUser("change@example.com", "old-password", id.RoleShareholder)
	result, err := s.service.Login(s.ctx, u.Email, "old-password", "")
	s.Require().NoError(err)

	s.Require().ErrorIs(s.service.ChangePassword(s.ctx, u.ID, "nope", "new-password-1"), ErrInvalidCredentials)
	s.Require().NoError(s.service.ChangePassword(s.ctx, u.ID, "old-password", "new-password-1"))

	_, err = s.service.Refresh(s.ctx, result.RefreshToken)
	s.Require().ErrorIs(err, ErrInvalidToken)
	_, err = s.service.Login(s.ctx, u.Email, "new-password-1", "")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestRegister() {
	u, err := s.service.Register(s.ctx, "New@Example.com", "long-enough", "New Holder")
	s.Require().NoError(err)
	s.Equal("new@example.com", u.Email)
	s.Equal(id.RoleShareholder, u.Role)
	s.True(u.Active)
	s.NotEmpty(u.Security.EmailVerifyToken)

	_, err = s.service.Register(s.ctx, "new@example.com", "long-enough", "Again")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Len(s.entries(audit.ActionUserCreated), 1)
}

func (s *ServiceSuite) TestUnlockAccount() {
	u := s.seedUser("locked@example.com", "correct-password", id.RoleShareholder)
	for i := 0; i < 5; i++ {
		_, _ = s.service.Login(s.ctx, u.Email, "wrong-password", "")
	}
	shareholder := policy.Actor{ID: id.UserID(uuid.New()), Role: id.RoleShareholder}
	director := policy.Actor{ID: id.UserID(uuid.New()), Role: id.RoleDirector}

	_, err := s.service.UnlockAccount(s.ctx, shareholder, u.ID)
	s.Require().ErrorIs(err, policy.ErrAccessDenied)
	s.Len(s.entries(audit.ActionAccessDenied), 1)

	unlocked, err := s.service.UnlockAccount(s.ctx, director, u.ID)
	s.Require().NoError(err)
	s.False(unlocked.IsLocked(s.now))
	s.Zero(unlocked.Security.LoginAttempts)

	entries := s.entries(audit.ActionAccountUnlocked)
	s.Require().Len(entries, 1)
	s.Equal(director.ID, *entries[0].ActorID)
	s.Equal(true, entries[0].Details["was_locked"])

	_, err = s.service.Login(s.ctx, u.Email, "correct-password", "")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestResolvePrincipal() {
	u := s.seedUser("who@example.com", "correct-password", id.RoleDirector)

	role, active, err := s.service.ResolvePrincipal(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(id.RoleDirector, role)
	s.True(active)

	role, active, err = s.service.ResolvePrincipal(s.ctx, id.UserID(uuid.New()))
	s.Require().NoError(err)
	s.Empty(role)
	s.False(active)
}
