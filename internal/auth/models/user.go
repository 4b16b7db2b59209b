package models

import (
	"strings"
	"time"

	id "shareledger/pkg/domain"
)

// User is an account in the register. The credential and the security
// sub-record never leave the service layer.
type User struct {
	ID           id.UserID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         id.Role   `json:"role"`
	Active       bool      `json:"active"`
	PasswordHash string    `json:"-"`
	Security     Security  `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Security holds authentication state.
type Security struct {
	TOTPSecret    string
	TOTPEnabled   bool
	LastLoginAt   *time.Time
	LoginAttempts int
	LockoutUntil  *time.Time
	// ResetTokenHash is the digest of the single live password-reset token.
	ResetTokenHash   string
	ResetTokenExpiry *time.Time
	// EmailVerifyToken is set at registration until the address is confirmed.
	EmailVerifyToken string
}

// LockoutPolicy bounds consecutive failed logins.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockoutPolicy locks an account for two hours after five failures.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, Duration: 2 * time.Hour}
}

// NormalizeEmail canonicalises an address for lookup. Emails compare
// case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsLocked reports whether the lockout window is still open at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.Security.LockoutUntil != nil && now.Before(*u.Security.LockoutUntil)
}

// RecordFailedLogin counts a failed credential check and reports whether it
// tripped the lockout. A failure after an elapsed lockout starts a fresh
// count at one.
func (u *User) RecordFailedLogin(now time.Time, p LockoutPolicy) bool {
	s := &u.Security
	if s.LockoutUntil != nil && !now.Before(*s.LockoutUntil) && s.LoginAttempts >= p.MaxAttempts {
		s.LoginAttempts = 0
	}
	s.LoginAttempts++
	u.UpdatedAt = now
	if s.LoginAttempts >= p.MaxAttempts {
		until := now.Add(p.Duration)
		s.LockoutUntil = &until
		return true
	}
	return false
}

// RecordSuccessfulLogin clears the failure state and stamps the login time.
func (u *User) RecordSuccessfulLogin(now time.Time) {
	u.Security.LoginAttempts = 0
	u.Security.LockoutUntil = nil
	u.Security.LastLoginAt = &now
	u.UpdatedAt = now
}

// Unlock is the administrative reset of the lockout state.
func (u *User) Unlock(now time.Time) {
	u.Security.LoginAttempts = 0
	u.Security.LockoutUntil = nil
	u.UpdatedAt = now
}

// SetResetToken replaces any live reset token.
func (u *User) SetResetToken(digest string, expiry time.Time) {
	u.Security.ResetTokenHash = digest
	u.Security.ResetTokenExpiry = &expiry
}

// ResetTokenValid reports whether digest names the live token at now.
func (u *User) ResetTokenValid(digest string, now time.Time) bool {
	s := u.Security
	return s.ResetTokenHash != "" && s.ResetTokenHash == digest &&
		s.ResetTokenExpiry != nil && now.Before(*s.ResetTokenExpiry)
}

// ClearResetToken consumes the reset token.
func (u *User) ClearResetToken() {
	u.Security.ResetTokenHash = ""
	u.Security.ResetTokenExpiry = nil
}

// Clone returns a deep copy, so stores never share mutable state.
func (u *User) Clone() *User {
	c := *u
	if u.Security.LastLoginAt != nil {
		t := *u.Security.LastLoginAt
		c.Security.LastLoginAt = &t
	}
	if u.Security.LockoutUntil != nil {
		t := *u.Security.LockoutUntil
		c.Security.LockoutUntil = &t
	}
	if u.Security.ResetTokenExpiry != nil {
		t := *u.Security.ResetTokenExpiry
		c.Security.ResetTokenExpiry = &t
	}
	return &c
}
