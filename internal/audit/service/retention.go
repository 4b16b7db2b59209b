package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	dErrors "shareledger/pkg/domain-errors"
	audit "shareledger/pkg/platform/audit"
)

// Sweep deletes entries past the retention horizon. High, critical and
// risky entries survive until the retained horizon, or forever when it is
// zero.
func (e *Engine) Sweep(ctx context.Context, now time.Time) (_ int, err error) {
	ctx, span := e.tracer.Start(ctx, "audit.Sweep")
	defer endSpan(span, &err)

	if e.retention.Horizon <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-e.retention.Horizon)
	var retainedCutoff time.Time
	if e.retention.RetainedHorizon > 0 {
		retainedCutoff = now.Add(-e.retention.RetainedHorizon)
	}

	n, err := e.store.DeleteExpired(ctx, cutoff, retainedCutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep audit log")
	}
	span.SetAttributes(attribute.Int("deleted", n))
	e.logger.InfoContext(ctx, "audit retention sweep",
		"event", string(audit.ActionRetentionSweep),
		"log_type", "audit",
		"cutoff", cutoff,
		"deleted", n,
	)
	return n, nil
}
