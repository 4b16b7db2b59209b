package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"shareledger/internal/ratelimit/models"
	"shareledger/internal/ratelimit/service"
	id "shareledger/pkg/domain"
	"shareledger/pkg/platform/httputil"
	"shareledger/pkg/requestcontext"
)

type Limiter interface {
	Allow(ctx context.Context, actorID id.UserID, ip string, rule models.Rule) (*models.Result, error)
}

type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("sensitive operation rate limiting disabled")
	}
	return m
}

// Sensitive limits an authenticated route under rule. It must run after the
// auth middleware so the actor is on the context.
func (m *Middleware) Sensitive(rule models.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			actor := requestcontext.UserID(ctx)
			ip := requestcontext.ClientIP(ctx)

			result, err := m.limiter.Allow(ctx, actor, ip, rule)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check sensitive rate limit", "error", err, "rule", rule.Name)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				httputil.WriteError(w, service.Exceeded(rule.Name, result.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
