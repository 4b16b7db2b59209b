package audit

import (
	"context"
	"log/slog"

	"shareledger/pkg/requestcontext"
)

// Enrich fills request metadata the caller did not set explicitly.
func Enrich(ctx context.Context, e Entry) Entry {
	ctxUser := requestcontext.UserID(ctx)
	if e.ActorID == nil {
		e.ActorID = Actor(ctxUser)
	}
	if e.ActorRole == "" && e.HasActor() && *e.ActorID == ctxUser {
		e.ActorRole = requestcontext.Role(ctx)
	}
	if e.IPAddress == "" {
		e.IPAddress = requestcontext.ClientIP(ctx)
	}
	if e.UserAgent == "" {
		e.UserAgent = requestcontext.UserAgent(ctx)
	}
	if e.SessionID == "" {
		if sid := requestcontext.SessionID(ctx); !sid.IsNil() {
			e.SessionID = sid.String()
		}
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.DurationMs == nil {
		if d := requestcontext.Elapsed(ctx); d > 0 {
			ms := d.Milliseconds()
			e.DurationMs = &ms
		}
	}
	return e
}

// LogAttrs returns the structured logging attributes for an entry.
func LogAttrs(e *Entry) []any {
	attrs := []any{
		"event", string(e.Action),
		"log_type", "audit",
		"audit_id", e.ID,
		"severity", string(e.Severity),
		"category", string(e.Category),
		"success", e.Success,
		"risky", e.IsRisky(),
	}
	if e.HasActor() {
		attrs = append(attrs, "actor_id", e.ActorID.String())
	}
	if e.TargetID != "" {
		attrs = append(attrs, "target_type", string(e.TargetType), "target_id", e.TargetID)
	}
	if e.RequestID != "" {
		attrs = append(attrs, "request_id", e.RequestID)
	}
	if e.IPAddress != "" {
		attrs = append(attrs, "ip", e.IPAddress)
	}
	return attrs
}

// logLevel maps severity to a slog level.
func logLevel(s Severity) slog.Level {
	switch s {
	case SeverityCritical, SeverityHigh:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// LogEntry writes e to logger as an audit line.
func LogEntry(ctx context.Context, logger *slog.Logger, e *Entry) {
	if logger == nil {
		return
	}
	logger.Log(ctx, logLevel(e.Severity), string(e.Action), LogAttrs(e)...)
}
