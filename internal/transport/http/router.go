// Package httptransport assembles the public HTTP surface: the shared
// middleware chain and the routes of every bounded context under /api.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"shareledger/internal/platform/metrics"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/platform/httputil"
	"shareledger/pkg/platform/middleware/admin"
	"shareledger/pkg/platform/middleware/auditlog"
	"shareledger/pkg/platform/middleware/metadata"
	"shareledger/pkg/platform/middleware/requestid"
	"shareledger/pkg/platform/middleware/requesttime"
	"shareledger/pkg/requestcontext"
)

// Routes is implemented by the handlers mounted behind authentication.
type Routes interface {
	Register(r chi.Router)
}

// AuthRoutes is implemented by the auth handler, which serves both sides.
type AuthRoutes interface {
	RegisterPublic(r chi.Router)
	RegisterProtected(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds the transport-level knobs.
type Config struct {
	TrustProxy     bool
	CORSOrigins    []string
	LoginPerMinute int
	// MetricsToken guards /metrics. Empty leaves the endpoint unmounted.
	MetricsToken string
}

// Deps are the collaborators the router mounts.
type Deps struct {
	Auth        AuthRoutes
	Protected   []Routes
	RequireAuth func(http.Handler) http.Handler
	Recorder    audit.Recorder
	Metrics     *metrics.Metrics
	Exporter    http.Handler
	Health      map[string]HealthCheck
	Logger      *slog.Logger
}

// NewRouter wires all endpoints. The chain order matters: request metadata
// must be on the context before authentication, and the request-audit
// interceptor must run inside authentication so the actor is known.
func NewRouter(cfg Config, deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = audit.Nop
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(cfg.TrustProxy))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestid.Header},
		ExposedHeaders:   []string{requestid.Header, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/healthz", healthHandler(deps.Health, logger))
	if deps.Exporter != nil && cfg.MetricsToken != "" {
		r.With(admin.RequireAdminToken(cfg.MetricsToken, logger)).Handle("/metrics", deps.Exporter)
	}

	r.Route("/api", func(api chi.Router) {
		if deps.Auth != nil {
			api.Group(func(pub chi.Router) {
				if cfg.LoginPerMinute > 0 {
					pub.Use(loginLimit(cfg.LoginPerMinute))
				}
				deps.Auth.RegisterPublic(pub)
			})
		}
		api.Group(func(prot chi.Router) {
			if deps.RequireAuth != nil {
				prot.Use(deps.RequireAuth)
			}
			prot.Use(auditlog.Middleware(recorder))
			if deps.Auth != nil {
				deps.Auth.RegisterProtected(prot)
			}
			for _, routes := range deps.Protected {
				routes.Register(prot)
			}
		})
	})
	return r
}

// loginLimit is a coarse per-IP guard on the unauthenticated endpoints. The
// key is the client IP resolved by the metadata middleware, so proxy trust is
// honoured consistently.
func loginLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return requestcontext.ClientIP(r.Context()), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests"))
		}),
	)
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}
