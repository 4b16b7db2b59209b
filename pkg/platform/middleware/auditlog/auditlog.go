// Package auditlog records a generic low-severity api_request entry for
// authenticated state-changing requests that no component audited explicitly.
// Requests rejected as malformed (400) are not recorded.
package auditlog

import (
	"net/http"

	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/requestcontext"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Middleware must run inside the auth middleware so the actor is known.
func Middleware(recorder audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, marker := requestcontext.WithAuditMarker(r.Context())
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				return
			}
			if requestcontext.UserID(ctx).IsNil() || marker.Recorded() {
				return
			}
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			if status == http.StatusBadRequest {
				return
			}
			recorder.Record(ctx, audit.Entry{
				Action:     audit.ActionAPIRequest,
				TargetType: audit.TargetSystem,
				Success:    status < http.StatusBadRequest,
				Details: map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
					"status": status,
				},
			})
		})
	}
}
