// Package refreshtoken tracks issued refresh tokens by JWT ID so each one can
// be consumed exactly once.
package refreshtoken

import (
	"fmt"
	"time"

	"shareledger/internal/auth/models"
	"shareledger/pkg/platform/sentinel"
)

// Error Contract:
// Consume returns
// - ErrNotFound when the JTI was never issued or has been swept
// - ErrExpired when the record lapsed
// - ErrInvalidState when the record was revoked
// - ErrAlreadyUsed when the record was consumed before; the record is
//   returned alongside so callers can attribute the replay.

func checkConsumable(rec *models.RefreshTokenRecord, now time.Time) error {
	switch {
	case rec.Revoked:
		return fmt.Errorf("refresh token revoked: %w", sentinel.ErrInvalidState)
	case rec.Used:
		return fmt.Errorf("refresh token already used: %w", sentinel.ErrAlreadyUsed)
	case rec.Expired(now):
		return fmt.Errorf("refresh token expired: %w", sentinel.ErrExpired)
	}
	return nil
}
