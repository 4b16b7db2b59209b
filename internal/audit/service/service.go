// Package service answers audit log queries and analytics on behalf of an
// authenticated actor, and enforces the retention horizon.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"shareledger/internal/policy"
	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
)

const (
	defaultWindowHours = 24
	maxWindowHours     = 24 * 90
)

// UserRef is the resolved identity attached to analytics output.
type UserRef struct {
	ID    id.UserID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// UserDirectory resolves user identities for reports. Unknown IDs are
// omitted from the result.
type UserDirectory interface {
	Lookup(ctx context.Context, ids []id.UserID) (map[id.UserID]UserRef, error)
}

// Thresholds configure the suspicious-activity detectors.
type Thresholds struct {
	// FailedLoginsPerIP flags an IP with at least this many failures.
	FailedLoginsPerIP int
	// MaxDistinctIPs flags a user seen from more than this many IPs.
	MaxDistinctIPs int
	// MaxDistinctAgents flags a user seen with more than this many clients.
	MaxDistinctAgents int
	// BusinessStart and BusinessEnd bound business hours as offsets from
	// local midnight.
	BusinessStart time.Duration
	BusinessEnd   time.Duration
	Location      *time.Location
}

// DefaultThresholds returns the stock detector calibration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FailedLoginsPerIP: 5,
		MaxDistinctIPs:    3,
		MaxDistinctAgents: 2,
		BusinessStart:     8 * time.Hour,
		BusinessEnd:       18 * time.Hour,
		Location:          time.UTC,
	}
}

// Retention configures the sweep horizons.
type Retention struct {
	// Horizon is the age after which ordinary entries are deleted.
	Horizon time.Duration
	// RetainedHorizon applies to high, critical and risky entries. Zero keeps
	// them forever.
	RetainedHorizon time.Duration
}

// Engine is the audit read side.
type Engine struct {
	store      audit.Store
	recorder   audit.Recorder
	guard      *policy.Guard
	users      UserDirectory
	logger     *slog.Logger
	tracer     trace.Tracer
	thresholds Thresholds
	retention  Retention
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithUserDirectory(users UserDirectory) Option {
	return func(e *Engine) { e.users = users }
}

func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

func WithRetention(r Retention) Option {
	return func(e *Engine) { e.retention = r }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// New creates an Engine.
func New(store audit.Store, recorder audit.Recorder, guard *policy.Guard, opts ...Option) *Engine {
	if recorder == nil {
		recorder = audit.Nop
	}
	e := &Engine{
		store:      store,
		recorder:   recorder,
		guard:      guard,
		logger:     slog.Default(),
		tracer:     otel.Tracer("shareledger/audit"),
		thresholds: DefaultThresholds(),
		retention:  Retention{Horizon: 365 * 24 * time.Hour},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.thresholds.Location == nil {
		e.thresholds.Location = time.UTC
	}
	return e
}

// Result is one page of audit entries.
type Result struct {
	Entries []audit.Entry `json:"entries"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// Query returns the entries actor may see that match filter. The role scope
// is applied by the store ahead of the filter.
func (e *Engine) Query(ctx context.Context, actor policy.Actor, filter audit.Filter, page audit.Page) (*Result, error) {
	if err := e.guard.Require(ctx, actor, policy.ObjAuditLog, policy.ActView, audit.TargetAuditLog, ""); err != nil {
		return nil, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, dErrors.New(dErrors.CodeValidation, "from must not be after to")
	}
	page = page.Normalize()

	entries, total, err := e.store.Query(ctx, policy.AuditScope(actor), filter, page)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit log")
	}

	e.recorder.Record(ctx, audit.Entry{
		ActorID:    audit.Actor(actor.ID),
		ActorRole:  actor.Role,
		Action:     audit.ActionAuditLogViewed,
		TargetType: audit.TargetAuditLog,
		Success:    true,
		Details: map[string]any{
			"returned": len(entries),
			"total":    total,
			"offset":   page.Offset,
		},
	})

	return &Result{Entries: entries, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// window authorizes an analytics call and loads the actor-visible entries in
// the trailing window.
func (e *Engine) window(ctx context.Context, actor policy.Actor, windowHours int, filter audit.Filter) ([]audit.Entry, time.Time, error) {
	if err := e.guard.Require(ctx, actor, policy.ObjAuditLog, policy.ActAnalytics, audit.TargetAuditLog, ""); err != nil {
		return nil, time.Time{}, err
	}
	since, err := e.since(windowHours)
	if err != nil {
		return nil, time.Time{}, err
	}
	entries, err := e.load(ctx, policy.AuditScope(actor), since, filter)
	if err != nil {
		return nil, time.Time{}, err
	}
	return entries, since, nil
}

func (e *Engine) since(windowHours int) (time.Time, error) {
	if windowHours == 0 {
		windowHours = defaultWindowHours
	}
	if windowHours < 0 || windowHours > maxWindowHours {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "window hours out of range")
	}
	return e.now().Add(-time.Duration(windowHours) * time.Hour), nil
}

func (e *Engine) load(ctx context.Context, scope audit.Scope, since time.Time, filter audit.Filter) ([]audit.Entry, error) {
	if scope.Deny {
		return nil, nil
	}
	entries, err := e.store.Since(ctx, since, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit window")
	}
	visible := entries[:0]
	for i := range entries {
		if scope.Allows(&entries[i]) {
			visible = append(visible, entries[i])
		}
	}
	return visible, nil
}
