package service

import (
	"context"
	"errors"

	"shareledger/internal/auth/models"
	jwttoken "shareledger/internal/jwt_token"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/sentinel"
)

// Refresh rotates a refresh token. The presented token is consumed; a second
// presentation of the same token is treated as theft and revokes every
// refresh token the user holds.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.LoginResult, error) {
	claims, err := s.tokens.Parse(jwttoken.TypeRefresh, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	now := s.now()
	rec, err := s.refresh.Consume(ctx, claims.ID, now)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		s.replayed(ctx, rec)
		return nil, ErrInvalidToken
	case errors.Is(err, sentinel.ErrNotFound),
		errors.Is(err, sentinel.ErrExpired),
		errors.Is(err, sentinel.ErrInvalidState):
		s.logger.InfoContext(ctx, "refresh token rejected", "reason", err.Error(), "user_id", userID.String())
		return nil, ErrInvalidToken
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume refresh token")
	}
	if rec.UserID != userID {
		return nil, ErrInvalidToken
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !u.Active {
		s.fail(ctx, userEntry(u, audit.ActionTokenRefresh), "account_inactive", audit.SeverityMedium)
		return nil, ErrAccountInactive
	}

	result, err := s.issuePair(ctx, u, rec.SessionID)
	if err != nil {
		return nil, err
	}
	e := userEntry(u, audit.ActionTokenRefresh)
	e.Success = true
	e.SessionID = rec.SessionID.String()
	s.recorder.Record(ctx, e)
	return result, nil
}

func (s *Service) replayed(ctx context.Context, rec *models.RefreshTokenRecord) {
	if rec == nil {
		return
	}
	revoked, err := s.refresh.RevokeByUser(ctx, rec.UserID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens after replay",
			"error", err,
			"user_id", rec.UserID.String(),
		)
	}
	s.metrics.IncRefreshReplay()
	s.recorder.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(rec.UserID),
		Action:       audit.ActionTokenRefresh,
		TargetType:   audit.TargetUser,
		TargetID:     rec.UserID.String(),
		SessionID:    rec.SessionID.String(),
		Success:      false,
		ErrorMessage: "refresh token replay",
		Severity:     audit.SeverityHigh,
		Category:     audit.CategorySecurity,
		Details: map[string]any{
			"reason":         "refresh_token_replay",
			"revoked_tokens": revoked,
		},
	})
}

// Logout revokes the presented access token for its remaining lifetime and,
// when supplied, the refresh token. It always succeeds for the caller.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) {
	now := s.now()
	var entry *audit.Entry

	if claims, err := s.tokens.Decode(jwttoken.TypeAccess, accessToken); err == nil {
		if ttl := claims.Remaining(now); ttl > 0 {
			if err := s.trl.RevokeToken(ctx, claims.ID, ttl); err != nil {
				s.logger.ErrorContext(ctx, "failed to revoke access token", "error", err)
			}
		}
		if userID, err := claims.UserID(); err == nil {
			entry = &audit.Entry{
				ActorID:    audit.Actor(userID),
				ActorRole:  claims.Role,
				Action:     audit.ActionLogout,
				TargetType: audit.TargetUser,
				TargetID:   userID.String(),
				SessionID:  claims.SessionID,
				Success:    true,
			}
		}
	}

	if refreshToken != "" {
		if claims, err := s.tokens.Decode(jwttoken.TypeRefresh, refreshToken); err == nil {
			if err := s.refresh.Revoke(ctx, claims.ID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				s.logger.ErrorContext(ctx, "failed to revoke refresh token", "error", err)
			}
		}
	}

	if entry != nil {
		s.recorder.Record(ctx, *entry)
	}
}
