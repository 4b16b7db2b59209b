package service

import (
	"context"

	"shareledger/internal/auth/models"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
)

// SetupTwoFactor generates a pending TOTP secret. It takes effect only after
// EnableTwoFactor confirms a code from it.
func (s *Service) SetupTwoFactor(ctx context.Context, userID id.UserID) (*models.TwoFactorSetup, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err, "failed to load user")
	}
	if u.Security.TOTPEnabled {
		return nil, dErrors.New(dErrors.CodeConflict, "two-factor authentication is already enabled")
	}
	secret, uri, err := s.totp.Generate(u.Email)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate secret")
	}
	if _, err := s.users.Update(ctx, userID, func(u *models.User) error {
		u.Security.TOTPSecret = secret
		u.Security.TOTPEnabled = false
		return nil
	}); err != nil {
		return nil, mapUserErr(err, "failed to store secret")
	}
	return &models.TwoFactorSetup{Secret: secret, ProvisioningURI: uri}, nil
}

// EnableTwoFactor activates the pending secret once code verifies against it.
func (s *Service) EnableTwoFactor(ctx context.Context, userID id.UserID, code string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return mapUserErr(err, "failed to load user")
	}
	if u.Security.TOTPEnabled {
		return dErrors.New(dErrors.CodeConflict, "two-factor authentication is already enabled")
	}
	if u.Security.TOTPSecret == "" {
		return dErrors.New(dErrors.CodeBadRequest, "two-factor setup has not been started")
	}
	if !s.totp.Validate(code, u.Security.TOTPSecret) {
		s.fail(ctx, userEntry(u, audit.ActionTwoFactorFailed), "invalid_totp_code", audit.SeverityHigh)
		return dErrors.New(dErrors.CodeValidation, "invalid verification code")
	}
	updated, err := s.users.Update(ctx, userID, func(u *models.User) error {
		u.Security.TOTPEnabled = true
		return nil
	})
	if err != nil {
		return mapUserErr(err, "failed to enable two-factor")
	}
	e := userEntry(updated, audit.ActionTwoFactorEnabled)
	e.Success = true
	s.recorder.Record(ctx, e)
	return nil
}

// DisableTwoFactor requires both the password and a current code.
func (s *Service) DisableTwoFactor(ctx context.Context, userID id.UserID, password, code string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return mapUserErr(err, "failed to load user")
	}
	if !u.Security.TOTPEnabled {
		return dErrors.New(dErrors.CodeBadRequest, "two-factor authentication is not enabled")
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		s.fail(ctx, userEntry(u, audit.ActionTwoFactorDisabled), "invalid_password", audit.SeverityHigh)
		return ErrInvalidCredentials
	}
	if !s.totp.Validate(code, u.Security.TOTPSecret) {
		s.fail(ctx, userEntry(u, audit.ActionTwoFactorFailed), "invalid_totp_code", audit.SeverityHigh)
		return ErrInvalidCredentials
	}
	updated, err := s.users.Update(ctx, userID, func(u *models.User) error {
		u.Security.TOTPEnabled = false
		u.Security.TOTPSecret = ""
		return nil
	})
	if err != nil {
		return mapUserErr(err, "failed to disable two-factor")
	}
	e := userEntry(updated, audit.ActionTwoFactorDisabled)
	e.Success = true
	s.recorder.Record(ctx, e)
	return nil
}
