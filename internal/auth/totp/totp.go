// Package totp wraps RFC 6238 one-time codes for the second login factor.
package totp

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	period     = 30
	secretSize = 20
)

var validateOpts = totp.ValidateOpts{
	Period:    period,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Authenticator issues secrets and checks codes against an injectable clock.
type Authenticator struct {
	issuer string
	now    func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock overrides the time source used for validation.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// New returns an Authenticator whose provisioning URIs name issuer.
func New(issuer string, opts ...Option) *Authenticator {
	a := &Authenticator{issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate creates a base32 secret and its otpauth:// provisioning URI.
func (a *Authenticator) Generate(accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.issuer,
		AccountName: accountName,
		Period:      period,
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Validate accepts the code for the current step or one step either side.
func (a *Authenticator) Validate(code, secret string) bool {
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, a.now().UTC(), validateOpts)
	return err == nil && ok
}

// CodeAt returns the code for secret at t.
func (a *Authenticator) CodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), validateOpts)
}
