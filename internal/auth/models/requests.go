package models

import (
	"strings"

	"shareledger/pkg/email"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	TOTPCode string `json:"totp_code,omitempty" validate:"omitempty,numeric,len=6"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.TOTPCode = strings.TrimSpace(r.TOTPCode)
}

// TwoFactorLoginRequest is the body of POST /auth/login/2fa.
type TwoFactorLoginRequest struct {
	TempToken string `json:"temp_token" validate:"required"`
	Code      string `json:"code" validate:"required,numeric,len=6"`
}

func (r *TwoFactorLoginRequest) Normalize() {
	r.TempToken = strings.TrimSpace(r.TempToken)
	r.Code = strings.TrimSpace(r.Code)
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest is the optional body of POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	// Name defaults to one derived from the email address.
	Name string `json:"name,omitempty" validate:"max=120"`
}

func (r *RegisterRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		r.Name = email.DisplayName(r.Email)
	}
}

// ChangePasswordRequest is the body of POST /auth/password/change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// ForgotPasswordRequest is the body of POST /auth/password/forgot.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *ForgotPasswordRequest) Normalize() { r.Email = NormalizeEmail(r.Email) }

// ResetPasswordRequest is the body of POST /auth/password/reset.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// TOTPCodeRequest is the body of POST /auth/2fa/enable.
type TOTPCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

// DisableTwoFactorRequest is the body of POST /auth/2fa/disable.
type DisableTwoFactorRequest struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required,numeric,len=6"`
}
