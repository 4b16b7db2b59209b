// Package sweeper runs a retention job on a fixed interval until its context
// is cancelled.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Job removes whatever has expired as of now and reports how many records
// it removed.
type Job interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context, now time.Time) (int, error)

func (f JobFunc) Sweep(ctx context.Context, now time.Time) (int, error) { return f(ctx, now) }

// Runner drives a Job periodically. A failed run is logged and the next tick
// tries again.
type Runner struct {
	name     string
	job      Job
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner. A non-positive interval defaults to one hour.
func New(name string, job Job, interval time.Duration, opts ...Option) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	r := &Runner{
		name:     name,
		job:      job,
		interval: interval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps once immediately and then on every tick. It returns nil when
// ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// RunOnce performs a single sweep.
func (r *Runner) RunOnce(ctx context.Context) {
	n, err := r.job.Sweep(ctx, r.now())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.ErrorContext(ctx, "sweep failed", "sweeper", r.name, "error", err)
		return
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "sweep completed", "sweeper", r.name, "removed", n)
	}
}
