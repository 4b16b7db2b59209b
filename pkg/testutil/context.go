package testutil

import (
	"net/http"
	"time"

	id "shareledger/pkg/domain"
	"shareledger/pkg/requestcontext"
)

// WithActor places an authenticated user and role on the request context,
// the way the auth middleware does.
func WithActor(req *http.Request, userID id.UserID, role id.Role) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}

// WithSession adds a session ID to the request context.
func WithSession(req *http.Request, sessionID id.SessionID) *http.Request {
	return req.WithContext(requestcontext.WithSessionID(req.Context(), sessionID))
}

// WithClient adds client IP and user agent to the request context.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}

// WithTime pins the request time.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
