// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them. Keeping the package free of
// net/http lets services depend on it without pulling in transport code.
//
// Usage in services:
//
//	actorID := requestcontext.UserID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "test-agent")
package requestcontext

import (
	"context"
	"time"

	id "shareledger/pkg/domain"
)

type (
	userIDKey      struct{}
	roleKey        struct{}
	sessionIDKey   struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	auditedKey     struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyUserID      = userIDKey{}
	ContextKeyRole        = roleKey{}
	ContextKeySessionID   = sessionIDKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Actor
// -----------------------------------------------------------------------------

// UserID retrieves the authenticated user ID. Returns the nil ID if unset.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(ContextKeyUserID).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// WithUserID injects a user ID into the context.
func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// Role retrieves the authenticated actor's role. Unauthenticated callers are visitors.
func Role(ctx context.Context) id.Role {
	if role, ok := ctx.Value(ContextKeyRole).(id.Role); ok {
		return role
	}
	return id.RoleVisitor
}

// WithRole injects the actor's role into the context.
func WithRole(ctx context.Context, role id.Role) context.Context {
	return context.WithValue(ctx, ContextKeyRole, role)
}

// SessionID retrieves the session ID. Returns the nil ID if unset.
func SessionID(ctx context.Context) id.SessionID {
	if sessionID, ok := ctx.Value(ContextKeySessionID).(id.SessionID); ok {
		return sessionID
	}
	return id.SessionID{}
}

// WithSessionID injects a session ID into the context.
func WithSessionID(ctx context.Context, sessionID id.SessionID) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for workers, CLI and tests.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// Elapsed returns the time since the request started. The start value set by
// the request-time middleware carries a monotonic reading, so wall clock
// adjustments do not skew durations.
func Elapsed(ctx context.Context) time.Duration {
	t, ok := ctx.Value(ContextKeyRequestTime).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(t)
}

// -----------------------------------------------------------------------------
// Audit marker
// -----------------------------------------------------------------------------

// AuditMarker is a per-request flag set when a component records an explicit
// audit entry, so the generic request interceptor does not double-log.
type AuditMarker struct {
	recorded bool
}

// Mark flags the request as explicitly audited.
func (m *AuditMarker) Mark() {
	if m != nil {
		m.recorded = true
	}
}

// Recorded reports whether an explicit audit entry was recorded.
func (m *AuditMarker) Recorded() bool {
	return m != nil && m.recorded
}

// WithAuditMarker attaches a fresh marker to the context.
func WithAuditMarker(ctx context.Context) (context.Context, *AuditMarker) {
	m := &AuditMarker{}
	return context.WithValue(ctx, auditedKey{}, m), m
}

// MarkAudited flags the request in ctx as explicitly audited, if a marker exists.
func MarkAudited(ctx context.Context) {
	if m, ok := ctx.Value(auditedKey{}).(*AuditMarker); ok {
		m.Mark()
	}
}
