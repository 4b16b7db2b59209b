// Package service implements the credential lifecycle: login with lockout
// and optional TOTP, refresh-token rotation with replay detection, logout,
// two-factor enrollment, and password change and reset.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"shareledger/internal/auth/metrics"
	"shareledger/internal/auth/models"
	"shareledger/internal/auth/secrets"
	"shareledger/internal/auth/totp"
	userStore "shareledger/internal/auth/store/user"
	jwttoken "shareledger/internal/jwt_token"
	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/sentinel"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByResetTokenHash(ctx context.Context, digest string) (*models.User, error)
	Update(ctx context.Context, userID id.UserID, fn userStore.UpdateFunc) (*models.User, error)
}

type RefreshTokenStore interface {
	Create(ctx context.Context, rec *models.RefreshTokenRecord) error
	Consume(ctx context.Context, jti string, now time.Time) (*models.RefreshTokenRecord, error)
	Revoke(ctx context.Context, jti string) error
	RevokeByUser(ctx context.Context, userID id.UserID) (int, error)
}

// RevocationList blocks access and mfa tokens before they expire.
type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenService is satisfied by *jwttoken.JWTService.
type TokenService interface {
	Issue(typ jwttoken.TokenType, sub jwttoken.Subject) (string, *jwttoken.Claims, error)
	Parse(typ jwttoken.TokenType, token string) (*jwttoken.Claims, error)
	Decode(typ jwttoken.TokenType, token string) (*jwttoken.Claims, error)
	TTL(typ jwttoken.TokenType) time.Duration
}

// ResetNotifier delivers password reset tokens out of band.
type ResetNotifier interface {
	PasswordResetRequested(ctx context.Context, user *models.User, token string, expiresAt time.Time) error
}

var (
	// ErrInvalidCredentials is the single caller-facing login failure.
	ErrInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	ErrAccountLocked      = dErrors.New(dErrors.CodeUnauthorized, "account locked")
	ErrAccountInactive    = dErrors.New(dErrors.CodeUnauthorized, "account inactive")
	ErrInvalidToken       = dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	ErrInvalidResetToken  = dErrors.New(dErrors.CodeValidation, "invalid or expired reset token")
)

// Service owns authentication state transitions. Every transition is
// audited through the recorder.
type Service struct {
	users    UserStore
	refresh  RefreshTokenStore
	trl      RevocationList
	tokens   TokenService
	hasher   *secrets.Hasher
	totp     *totp.Authenticator
	recorder audit.Recorder
	guard    *policy.Guard
	notifier ResetNotifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	lockout  models.LockoutPolicy
	resetTTL time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLockoutPolicy(p models.LockoutPolicy) Option {
	return func(s *Service) { s.lockout = p }
}

// WithResetTTL sets how long a password reset token stays valid.
func WithResetTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.resetTTL = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n ResetNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithGuard enables the administrative operations.
func WithGuard(g *policy.Guard) Option {
	return func(s *Service) { s.guard = g }
}

// New creates a Service.
func New(
	users UserStore,
	refresh RefreshTokenStore,
	trl RevocationList,
	tokens TokenService,
	hasher *secrets.Hasher,
	authenticator *totp.Authenticator,
	recorder audit.Recorder,
	opts ...Option,
) *Service {
	if recorder == nil {
		recorder = audit.Nop
	}
	s := &Service{
		users:    users,
		refresh:  refresh,
		trl:      trl,
		tokens:   tokens,
		hasher:   hasher,
		totp:     authenticator,
		recorder: recorder,
		logger:   slog.Default(),
		lockout:  models.DefaultLockoutPolicy(),
		resetTTL: time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolvePrincipal reports the current role and status of userID. The auth
// middleware calls it on every request so role changes and deactivation take
// effect before the access token expires.
func (s *Service) ResolvePrincipal(ctx context.Context, userID id.UserID) (id.Role, bool, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", false, nil
		}
		return "", false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve principal")
	}
	return u.Role, u.Active, nil
}

// Profile returns the caller's own account.
func (s *Service) Profile(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err, "failed to load user")
	}
	return u, nil
}

// UnlockAccount clears a lockout on behalf of a privileged actor.
func (s *Service) UnlockAccount(ctx context.Context, actor policy.Actor, userID id.UserID) (*models.User, error) {
	if s.guard == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "unlock is not configured")
	}
	if err := s.guard.Require(ctx, actor, policy.ObjUser, policy.ActUnlock, audit.TargetUser, userID.String()); err != nil {
		return nil, err
	}
	var wasLocked bool
	now := s.now()
	u, err := s.users.Update(ctx, userID, func(u *models.User) error {
		wasLocked = u.IsLocked(now) || u.Security.LoginAttempts > 0
		u.Unlock(now)
		return nil
	})
	if err != nil {
		return nil, mapUserErr(err, "failed to unlock account")
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:     audit.Actor(actor.ID),
		ActorRole:   actor.Role,
		Action:      audit.ActionAccountUnlocked,
		TargetType:  audit.TargetUser,
		TargetID:    u.ID.String(),
		TargetEmail: u.Email,
		Details:     map[string]any{"was_locked": wasLocked},
		Success:     true,
	})
	return u, nil
}

// userEntry builds an entry attributed to u.
func userEntry(u *models.User, action audit.Action) audit.Entry {
	return audit.Entry{
		ActorID:     audit.Actor(u.ID),
		ActorRole:   u.Role,
		Action:      action,
		TargetType:  audit.TargetUser,
		TargetID:    u.ID.String(),
		TargetEmail: u.Email,
	}
}

func (s *Service) fail(ctx context.Context, e audit.Entry, reason string, severity audit.Severity) {
	e.Success = false
	e.ErrorMessage = reason
	e.Severity = severity
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details["reason"] = reason
	s.recorder.Record(ctx, e)
}

func mapUserErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
