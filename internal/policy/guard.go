package policy

import (
	"context"
	"log/slog"

	id "shareledger/pkg/domain"
	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
)

// Guard enforces decisions and turns every denial into exactly one
// access_denied audit entry.
type Guard struct {
	caps     *Capabilities
	recorder audit.Recorder
	logger   *slog.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithLogger sets the logger used for denial diagnostics.
func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// NewGuard creates a Guard. A nil recorder discards entries.
func NewGuard(caps *Capabilities, recorder audit.Recorder, opts ...GuardOption) *Guard {
	if recorder == nil {
		recorder = audit.Nop
	}
	g := &Guard{caps: caps, recorder: recorder, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ErrAccessDenied is the caller-facing denial. It carries no reason.
var ErrAccessDenied = dErrors.New(dErrors.CodeForbidden, "access denied")

// Authorize checks ownership-scoped access to one resource.
func (g *Guard) Authorize(ctx context.Context, actor Actor, ownerID id.UserID, resource Resource, targetID string) error {
	d := Authorize(actor, ownerID, resource)
	if d.Allowed {
		return nil
	}
	g.denied(ctx, actor, resource.TargetType(), targetID, d.Reason, map[string]any{
		"resource": string(resource),
		"owner_id": ownerID.String(),
	})
	return ErrAccessDenied
}

// Require checks a role-level capability.
func (g *Guard) Require(ctx context.Context, actor Actor, obj Object, act Action, targetType audit.TargetType, targetID string) error {
	if g.Can(actor.Role, obj, act) {
		return nil
	}
	g.denied(ctx, actor, targetType, targetID, "missing_capability", map[string]any{
		"capability": string(obj) + ":" + string(act),
	})
	return ErrAccessDenied
}

// Can is the unaudited capability lookup.
func (g *Guard) Can(role id.Role, obj Object, act Action) bool {
	return g.caps != nil && g.caps.Can(role, obj, act)
}

func (g *Guard) denied(ctx context.Context, actor Actor, targetType audit.TargetType, targetID, reason string, details map[string]any) {
	details["reason"] = reason
	g.logger.WarnContext(ctx, "access denied",
		"actor_id", actor.ID.String(),
		"role", string(actor.Role),
		"target_type", string(targetType),
		"target_id", targetID,
		"reason", reason,
	)
	g.recorder.Record(ctx, audit.Entry{
		ActorID:      audit.Actor(actor.ID),
		ActorRole:    actor.Role,
		Action:       audit.ActionAccessDenied,
		TargetType:   targetType,
		TargetID:     targetID,
		Details:      details,
		Success:      false,
		ErrorMessage: "access denied",
		Severity:     audit.SeverityHigh,
		Category:     audit.CategorySecurity,
		RiskyAction:  audit.Bool(true),
	})
}
