package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"shareledger/internal/auth/models"
	"shareledger/internal/auth/secrets"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/sentinel"
)

// Register creates an active shareholder account for the caller.
func (s *Service) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	verify, err := secrets.Generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}
	now := s.now()
	u := &models.User{
		ID:           id.UserID(uuid.New()),
		Email:        email,
		Name:         name,
		Role:         id.RoleShareholder,
		Active:       true,
		PasswordHash: hash,
		Security:     models.Security{EmailVerifyToken: secrets.Digest(verify)},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, mapUserErr(err, "failed to create account")
	}

	e := userEntry(u, audit.ActionUserCreated)
	e.Success = true
	e.Details = map[string]any{"self_registered": true, "role": string(u.Role)}
	e.After = audit.Snapshot(u)
	s.recorder.Record(ctx, e)
	return u, nil
}

// ChangePassword replaces the password after verifying the current one and
// revokes every outstanding refresh token.
func (s *Service) ChangePassword(ctx context.Context, userID id.UserID, current, next string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return mapUserErr(err, "failed to load user")
	}
	if !s.hasher.Verify(current, u.PasswordHash) {
		s.fail(ctx, userEntry(u, audit.ActionPasswordChange), "invalid_password", audit.SeverityMedium)
		return ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if _, err := s.users.Update(ctx, userID, func(u *models.User) error {
		u.PasswordHash = hash
		return nil
	}); err != nil {
		return mapUserErr(err, "failed to change password")
	}
	revoked := s.revokeSessions(ctx, userID)

	e := userEntry(u, audit.ActionPasswordChange)
	e.Success = true
	e.Details = map[string]any{"revoked_tokens": revoked}
	s.recorder.Record(ctx, e)
	return nil
}

// RequestPasswordReset mints a reset token and hands it to the notifier. The
// outcome is the same whether or not the email is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) {
	email = models.NormalizeEmail(email)
	entry := audit.Entry{
		Action:      audit.ActionPasswordResetRequest,
		TargetType:  audit.TargetUser,
		TargetEmail: email,
		Success:     true,
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to look up reset email", "error", err)
		}
		entry.Details = map[string]any{"account_found": false}
		s.recorder.Record(ctx, entry)
		return
	}
	entry.TargetID = u.ID.String()
	entry.Details = map[string]any{"account_found": true, "active": u.Active}
	if !u.Active {
		s.recorder.Record(ctx, entry)
		return
	}

	token, err := secrets.Generate()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate reset token", "error", err)
		return
	}
	expiry := s.now().Add(s.resetTTL)
	if _, err := s.users.Update(ctx, u.ID, func(u *models.User) error {
		u.SetResetToken(secrets.Digest(token), expiry)
		return nil
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to store reset token", "error", err, "user_id", u.ID.String())
		return
	}
	if s.notifier != nil {
		if err := s.notifier.PasswordResetRequested(ctx, u, token, expiry); err != nil {
			s.logger.ErrorContext(ctx, "failed to deliver reset token", "error", err, "user_id", u.ID.String())
		}
	}
	s.recorder.Record(ctx, entry)
}

// ResetPassword redeems a reset token. It clears any lockout and revokes
// every outstanding refresh token.
func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	digest := secrets.Digest(token)
	u, err := s.users.FindByResetTokenHash(ctx, digest)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up reset token")
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	now := s.now()
	updated, err := s.users.Update(ctx, u.ID, func(u *models.User) error {
		if !u.ResetTokenValid(digest, now) {
			return ErrInvalidResetToken
		}
		u.PasswordHash = hash
		u.ClearResetToken()
		u.Unlock(now)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			s.fail(ctx, userEntry(u, audit.ActionPasswordReset), "reset_token_expired", audit.SeverityMedium)
		}
		return mapUserErr(err, "failed to reset password")
	}
	revoked := s.revokeSessions(ctx, updated.ID)

	e := userEntry(updated, audit.ActionPasswordReset)
	e.Success = true
	e.Details = map[string]any{"revoked_tokens": revoked}
	s.recorder.Record(ctx, e)
	return nil
}

func (s *Service) revokeSessions(ctx context.Context, userID id.UserID) int {
	n, err := s.refresh.RevokeByUser(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens", "error", err, "user_id", userID.String())
	}
	return n
}
