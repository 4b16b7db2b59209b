package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"shareledger/internal/auth/models"
	jwttoken "shareledger/internal/jwt_token"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/sentinel"
)

// Login authenticates email and password. When the account has TOTP enabled
// and no code is supplied, the result carries a short-lived mfa token for
// CompleteTwoFactor instead of a token pair.
func (s *Service) Login(ctx context.Context, email, password, code string) (*models.LoginResult, error) {
	start := time.Now()
	defer s.metrics.ObserveLogin(start)

	email = models.NormalizeEmail(email)
	now := s.now()

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
		s.hasher.Burn(password)
		s.fail(ctx, audit.Entry{
			Action:      audit.ActionLoginFailed,
			TargetEmail: email,
		}, "unknown_email", audit.SeverityMedium)
		s.metrics.IncLogin("unknown_email")
		return nil, ErrInvalidCredentials
	}

	if u.IsLocked(now) {
		s.fail(ctx, userEntry(u, audit.ActionLoginFailed), "account_locked", audit.SeverityHigh)
		s.metrics.IncLogin("locked")
		return nil, ErrAccountLocked
	}
	if !u.Active {
		s.fail(ctx, userEntry(u, audit.ActionLoginFailed), "account_inactive", audit.SeverityMedium)
		s.metrics.IncLogin("inactive")
		return nil, ErrAccountInactive
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		s.fail(ctx, userEntry(u, audit.ActionLoginFailed), "invalid_password", audit.SeverityMedium)
		s.metrics.IncLogin("invalid_password")
		return nil, s.countFailure(ctx, u, now)
	}

	if u.Security.TOTPEnabled {
		if code == "" {
			return s.issueChallenge(ctx, u)
		}
		if !s.totp.Validate(code, u.Security.TOTPSecret) {
			s.fail(ctx, userEntry(u, audit.ActionTwoFactorFailed), "invalid_totp_code", audit.SeverityHigh)
			s.metrics.IncLogin("invalid_totp")
			return nil, s.countFailure(ctx, u, now)
		}
	}

	return s.completeLogin(ctx, u, now)
}

// CompleteTwoFactor exchanges an mfa token and a TOTP code for a token pair.
// Each mfa token is accepted once.
func (s *Service) CompleteTwoFactor(ctx context.Context, tempToken, code string) (*models.LoginResult, error) {
	claims, err := s.tokens.Parse(jwttoken.TypeMFA, tempToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	revoked, err := s.trl.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check token")
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	now := s.now()
	if u.IsLocked(now) {
		s.fail(ctx, userEntry(u, audit.ActionLoginFailed), "account_locked", audit.SeverityHigh)
		return nil, ErrAccountLocked
	}
	if !u.Active {
		s.fail(ctx, userEntry(u, audit.ActionLoginFailed), "account_inactive", audit.SeverityMedium)
		return nil, ErrAccountInactive
	}
	if !u.Security.TOTPEnabled || !s.totp.Validate(code, u.Security.TOTPSecret) {
		s.fail(ctx, userEntry(u, audit.ActionTwoFactorFailed), "invalid_totp_code", audit.SeverityHigh)
		s.metrics.IncLogin("invalid_totp")
		return nil, s.countFailure(ctx, u, now)
	}

	if err := s.trl.RevokeToken(ctx, claims.ID, claims.Remaining(now)); err != nil {
		s.logger.WarnContext(ctx, "failed to retire mfa token", "error", err, "user_id", u.ID.String())
	}
	return s.completeLogin(ctx, u, now)
}

// countFailure advances the lockout counter and returns the caller-facing
// error. Crossing the threshold records account_locked.
func (s *Service) countFailure(ctx context.Context, u *models.User, now time.Time) error {
	var locked bool
	updated, err := s.users.Update(ctx, u.ID, func(u *models.User) error {
		locked = u.RecordFailedLogin(now, s.lockout)
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record login failure", "error", err, "user_id", u.ID.String())
		return ErrInvalidCredentials
	}
	if locked {
		e := userEntry(updated, audit.ActionAccountLocked)
		e.Success = true
		e.Details = map[string]any{
			"attempts":      updated.Security.LoginAttempts,
			"locked_until":  updated.Security.LockoutUntil,
			"lockout_hours": s.lockout.Duration.Hours(),
		}
		s.recorder.Record(ctx, e)
		s.metrics.IncLockout()
		s.logger.WarnContext(ctx, "account locked",
			"user_id", updated.ID.String(),
			"attempts", updated.Security.LoginAttempts,
		)
	}
	return ErrInvalidCredentials
}

func (s *Service) issueChallenge(ctx context.Context, u *models.User) (*models.LoginResult, error) {
	token, _, err := s.tokens.Issue(jwttoken.TypeMFA, jwttoken.Subject{UserID: u.ID, Role: u.Role})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue challenge")
	}
	s.metrics.IncTokenIssued(string(jwttoken.TypeMFA))
	s.metrics.IncLogin("challenge")
	s.logger.InfoContext(ctx, "two-factor challenge issued", "user_id", u.ID.String())
	return &models.LoginResult{
		RequiresTwoFactor: true,
		TempToken:         token,
		ExpiresIn:         int(s.tokens.TTL(jwttoken.TypeMFA).Seconds()),
	}, nil
}

func (s *Service) completeLogin(ctx context.Context, u *models.User, now time.Time) (*models.LoginResult, error) {
	updated, err := s.users.Update(ctx, u.ID, func(u *models.User) error {
		u.RecordSuccessfulLogin(now)
		return nil
	})
	if err != nil {
		return nil, mapUserErr(err, "failed to record login")
	}

	result, err := s.issuePair(ctx, updated, id.SessionID(uuid.New()))
	if err != nil {
		return nil, err
	}
	e := userEntry(updated, audit.ActionLogin)
	e.Success = true
	e.Severity = audit.SeverityLow
	e.Details = map[string]any{"two_factor": updated.Security.TOTPEnabled}
	s.recorder.Record(ctx, e)
	s.metrics.IncLogin("success")
	return result, nil
}

// issuePair signs an access and refresh token for sessionID and records the
// refresh JTI so it can be consumed once.
func (s *Service) issuePair(ctx context.Context, u *models.User, sessionID id.SessionID) (*models.LoginResult, error) {
	sub := jwttoken.Subject{UserID: u.ID, Role: u.Role, SessionID: sessionID}
	access, _, err := s.tokens.Issue(jwttoken.TypeAccess, sub)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	refresh, claims, err := s.tokens.Issue(jwttoken.TypeRefresh, sub)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue refresh token")
	}
	rec := &models.RefreshTokenRecord{
		JTI:       claims.ID,
		UserID:    u.ID,
		SessionID: sessionID,
		CreatedAt: claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.refresh.Create(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store refresh token")
	}
	s.metrics.IncTokenIssued(string(jwttoken.TypeAccess))
	s.metrics.IncTokenIssued(string(jwttoken.TypeRefresh))

	return &models.LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.tokens.TTL(jwttoken.TypeAccess).Seconds()),
		User:         u,
	}, nil
}
