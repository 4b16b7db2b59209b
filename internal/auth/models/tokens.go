package models

import (
	"time"

	id "shareledger/pkg/domain"
)

// RefreshTokenRecord tracks one issued refresh token by its JWT ID. A record
// is single use: Consume flips Used and any later presentation is a replay.
type RefreshTokenRecord struct {
	JTI       string
	UserID    id.UserID
	SessionID id.SessionID
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	Revoked   bool
}

// Expired reports whether the record has lapsed at now.
func (r *RefreshTokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// LoginResult is either a token pair or a second-factor challenge.
type LoginResult struct {
	AccessToken       string `json:"access_token,omitempty"`
	RefreshToken      string `json:"refresh_token,omitempty"`
	TokenType         string `json:"token_type,omitempty"`
	ExpiresIn         int    `json:"expires_in,omitempty"`
	User              *User  `json:"user,omitempty"`
	RequiresTwoFactor bool   `json:"requires_2fa,omitempty"`
	TempToken         string `json:"temp_token,omitempty"`
}

// TwoFactorSetup is the enrollment material shown to the user once.
type TwoFactorSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}
