// Package auth authenticates bearer access tokens and places the principal
// on the request context.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	"shareledger/pkg/platform/httputil"
	"shareledger/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// TokenRevocationChecker reports whether an access token was revoked at logout.
type TokenRevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// PrincipalResolver re-reads the account behind a token, so deactivation and
// role changes take effect before the token expires.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID id.UserID) (role id.Role, active bool, err error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	UserID    id.UserID
	Role      id.Role
	SessionID id.SessionID
	JTI       string
	ExpiresAt time.Time
}

type claimsKey struct{}

// Claims returns the verified claims for the request, if authenticated.
func Claims(ctx context.Context) (*JWTClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*JWTClaims)
	return c, ok
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

var errUnauthenticated = dErrors.New(dErrors.CodeUnauthorized, "authentication required")

// Authenticator is the middleware factory.
type Authenticator struct {
	validator  JWTValidator
	revocation TokenRevocationChecker
	resolver   PrincipalResolver
	logger     *slog.Logger
}

// New builds an Authenticator. revocation and resolver may be nil.
func New(validator JWTValidator, revocation TokenRevocationChecker, resolver PrincipalResolver, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{validator: validator, revocation: revocation, resolver: resolver, logger: logger}
}

// RequireAuth rejects requests without a valid, unrevoked access token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := a.authenticate(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth attaches the principal when a valid token is present and
// otherwise continues as a visitor.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := BearerToken(r); !ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx, err := a.authenticate(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (context.Context, error) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	token, ok := BearerToken(r)
	if !ok {
		a.logger.WarnContext(ctx, "unauthorized access - missing token", "request_id", requestID)
		return nil, errUnauthenticated
	}
	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		a.logger.WarnContext(ctx, "unauthorized access - invalid token",
			"error", err,
			"request_id", requestID,
		)
		return nil, errUnauthenticated
	}

	if a.revocation != nil {
		revoked, err := a.revocation.IsRevoked(ctx, claims.JTI)
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to check token revocation",
				"error", err,
				"request_id", requestID,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to validate token")
		}
		if revoked {
			a.logger.WarnContext(ctx, "unauthorized access - token revoked",
				"jti", claims.JTI,
				"request_id", requestID,
			)
			return nil, errUnauthenticated
		}
	}

	role := claims.Role
	if a.resolver != nil {
		current, active, err := a.resolver.ResolvePrincipal(ctx, claims.UserID)
		if err != nil || !active {
			a.logger.WarnContext(ctx, "unauthorized access - principal unavailable",
				"user_id", claims.UserID.String(),
				"request_id", requestID,
			)
			return nil, errUnauthenticated
		}
		role = current
	}

	ctx = requestcontext.WithUserID(ctx, claims.UserID)
	ctx = requestcontext.WithRole(ctx, role)
	ctx = requestcontext.WithSessionID(ctx, claims.SessionID)
	ctx = context.WithValue(ctx, claimsKey{}, claims)
	return ctx, nil
}
