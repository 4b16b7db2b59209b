// Package jwttoken issues and verifies the HS256 tokens used by the auth
// flows. Each token type is signed with its own secret, so a refresh or mfa
// token can never pass as an access token.
package jwttoken

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
)

// TokenType is carried in the typ claim.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
	TypeMFA     TokenType = "mfa"
)

// Claims is the payload of every token.
type Claims struct {
	Type      TokenType `json:"typ"`
	Role      id.Role   `json:"role,omitempty"`
	SessionID string    `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject.
func (c *Claims) UserID() (id.UserID, error) {
	return id.ParseUserID(c.Subject)
}

// Session parses the sid claim. Tokens without one yield the nil ID.
func (c *Claims) Session() id.SessionID {
	sid, err := id.ParseSessionID(c.SessionID)
	if err != nil {
		return id.SessionID{}
	}
	return sid
}

// Remaining returns how long the token stays valid after now, or zero.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(c.ExpiresAt.Sub(now), 0)
}

// Config holds the per-type secrets and lifetimes.
type Config struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	MFASecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	MFATTL        time.Duration
}

// Subject names the principal a token is issued for.
type Subject struct {
	UserID    id.UserID
	Role      id.Role
	SessionID id.SessionID
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	issuer string
	keys   map[TokenType][]byte
	ttls   map[TokenType]time.Duration
	now    func() time.Time
}

// Option configures a JWTService.
type Option func(*JWTService)

// WithClock overrides the issuing and validation time source.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) {
		if now != nil {
			s.now = now
		}
	}
}

var errSharedSecret = errors.New("token secrets must be distinct")

// NewJWTService validates cfg and builds the service.
func NewJWTService(cfg Config, opts ...Option) (*JWTService, error) {
	keys := map[TokenType][]byte{
		TypeAccess:  []byte(cfg.AccessSecret),
		TypeRefresh: []byte(cfg.RefreshSecret),
		TypeMFA:     []byte(cfg.MFASecret),
	}
	for typ, k := range keys {
		if len(k) == 0 {
			return nil, fmt.Errorf("%s token secret is empty", typ)
		}
	}
	if bytes.Equal(keys[TypeAccess], keys[TypeRefresh]) ||
		bytes.Equal(keys[TypeAccess], keys[TypeMFA]) ||
		bytes.Equal(keys[TypeRefresh], keys[TypeMFA]) {
		return nil, errSharedSecret
	}
	s := &JWTService{
		issuer: cfg.Issuer,
		keys:   keys,
		ttls: map[TokenType]time.Duration{
			TypeAccess:  orDefault(cfg.AccessTTL, 15*time.Minute),
			TypeRefresh: orDefault(cfg.RefreshTTL, 7*24*time.Hour),
			TypeMFA:     orDefault(cfg.MFATTL, 5*time.Minute),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// TTL returns the configured lifetime for typ.
func (s *JWTService) TTL(typ TokenType) time.Duration {
	return s.ttls[typ]
}

// Issue signs a new token of typ for sub. The returned claims carry the
// generated JTI and expiry.
func (s *JWTService) Issue(typ TokenType, sub Subject) (string, *Claims, error) {
	key, ok := s.keys[typ]
	if !ok {
		return "", nil, dErrors.New(dErrors.CodeInternal, "unknown token type")
	}
	now := s.now()
	claims := &Claims{
		Type: typ,
		Role: sub.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttls[typ])),
			ID:        uuid.NewString(),
		},
	}
	if !sub.SessionID.IsNil() {
		claims.SessionID = sub.SessionID.String()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, claims, nil
}

// Parse verifies signature, expiry and type.
func (s *JWTService) Parse(typ TokenType, token string) (*Claims, error) {
	return s.parse(typ, token,
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
}

// Decode verifies the signature and type but ignores expiry. Logout uses it
// to attribute a token that has already lapsed.
func (s *JWTService) Decode(typ TokenType, token string) (*Claims, error) {
	return s.parse(typ, token, jwt.WithoutClaimsValidation())
}

func (s *JWTService) parse(typ TokenType, token string, opts ...jwt.ParserOption) (*Claims, error) {
	key, ok := s.keys[typ]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid || claims.Type != typ || claims.ID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}
