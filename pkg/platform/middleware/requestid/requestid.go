// Package requestid correlates log lines and audit entries for one request.
package requestid

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"shareledger/pkg/requestcontext"
)

// Header is read from the caller and echoed on the response.
const Header = "X-Request-ID"

var acceptable = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Middleware reuses a well-formed incoming request ID or mints one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(Header)
		if !acceptable.MatchString(reqID) {
			reqID = uuid.NewString()
		}
		w.Header().Set(Header, reqID)
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
