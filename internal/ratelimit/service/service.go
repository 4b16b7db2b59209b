// Package service enforces sliding-window limits on sensitive operations,
// keyed by rule, actor and source address.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"shareledger/internal/ratelimit/metrics"
	"shareledger/internal/ratelimit/models"
	"shareledger/internal/ratelimit/store/window"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
	"shareledger/pkg/requestcontext"
)

// Store is the window backend.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, max int, window time.Duration) (window.Hit, error)
}

// Limiter checks rules against a shared store. When the store fails, checks
// run against a process-local fallback until the circuit closes again.
type Limiter struct {
	store    Store
	fallback Store
	breaker  *gobreaker.CircuitBreaker[window.Hit]
	recorder audit.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithFallback replaces the in-memory fallback store.
func WithFallback(s Store) Option {
	return func(l *Limiter) { l.fallback = s }
}

// New creates a Limiter. A nil recorder discards entries.
func New(store Store, recorder audit.Recorder, opts ...Option) *Limiter {
	if recorder == nil {
		recorder = audit.Nop
	}
	l := &Limiter{
		store:    store,
		recorder: recorder,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fallback == nil {
		l.fallback = window.NewInMemoryStore()
	}
	l.breaker = gobreaker.NewCircuitBreaker[window.Hit](gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 3,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.metrics.SetDegraded(to == gobreaker.StateOpen)
			l.logger.Warn("rate limit store circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return l
}

// Allow checks rule for (actorID, ip) and records the attempt when allowed.
// A denial records one rate_limit_exceeded entry.
func (l *Limiter) Allow(ctx context.Context, actorID id.UserID, ip string, rule models.Rule) (*models.Result, error) {
	if rule.Max <= 0 || rule.Window <= 0 {
		return nil, dErrors.New(dErrors.CodeInternal, "invalid rate limit rule")
	}
	key := models.Key(rule.Name, actorID, ip)
	now := l.now()

	degraded := false
	hit, err := l.breaker.Execute(func() (window.Hit, error) {
		return l.store.Hit(ctx, key, now, rule.Max, rule.Window)
	})
	if err != nil {
		if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
			l.metrics.IncStoreError()
			l.logger.WarnContext(ctx, "rate limit store failed, using local fallback", "error", err, "rule", rule.Name)
		}
		degraded = true
		hit, err = l.fallback.Hit(ctx, key, now, rule.Max, rule.Window)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rate limit check failed")
		}
	}

	res := &models.Result{
		Allowed:   hit.Allowed,
		Limit:     rule.Max,
		Remaining: max(rule.Max-hit.Count, 0),
		ResetAt:   now.Add(rule.Window),
		Degraded:  degraded,
	}
	if !hit.Oldest.IsZero() {
		res.ResetAt = hit.Oldest.Add(rule.Window)
	}
	l.metrics.IncCheck(rule.Name, hit.Allowed)
	if hit.Allowed {
		return res, nil
	}

	res.RetryAfter = retryAfter(hit.Oldest, now, rule.Window)
	l.recordExceeded(ctx, actorID, ip, rule, res)
	return res, nil
}

// Check is Allow for callers that only need a verdict. The source address
// comes from the request context. A denial is a CodeRateLimited error
// wrapping *models.ExceededError.
func (l *Limiter) Check(ctx context.Context, actorID id.UserID, rule models.Rule) error {
	res, err := l.Allow(ctx, actorID, requestcontext.ClientIP(ctx), rule)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return Exceeded(rule.Name, res.RetryAfter)
	}
	return nil
}

// Exceeded builds the caller-facing denial.
func Exceeded(rule string, retry time.Duration) error {
	return dErrors.Wrap(&models.ExceededError{Rule: rule, RetryAfter: retry},
		dErrors.CodeRateLimited, "too many requests, try again later")
}

// retryAfter is the time until the oldest in-window attempt expires, bounded
// to (0, window].
func retryAfter(oldest, now time.Time, w time.Duration) time.Duration {
	if oldest.IsZero() {
		return w
	}
	d := oldest.Add(w).Sub(now)
	switch {
	case d <= 0:
		return time.Second
	case d > w:
		return w
	}
	return d
}

func (l *Limiter) recordExceeded(ctx context.Context, actorID id.UserID, ip string, rule models.Rule, res *models.Result) {
	l.logger.WarnContext(ctx, "rate limit exceeded",
		"rule", rule.Name,
		"actor_id", actorID.String(),
		"ip", ip,
		"retry_after_seconds", res.RetryAfterSeconds(),
	)
	l.recorder.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actorID),
		Action:       audit.ActionRateLimitExceeded,
		TargetType:   audit.TargetSystem,
		TargetID:     rule.Name,
		IPAddress:    ip,
		Success:      false,
		ErrorMessage: "rate limit exceeded",
		Severity:     audit.SeverityHigh,
		Category:     audit.CategorySecurity,
		RiskyAction:  audit.Bool(true),
		Details: map[string]any{
			"rule":                rule.Name,
			"max":                 rule.Max,
			"window_seconds":      int(rule.Window.Seconds()),
			"retry_after_seconds": res.RetryAfterSeconds(),
			"degraded":            res.Degraded,
		},
	})
}
