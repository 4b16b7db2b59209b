package audit

import (
	"context"
	"time"
)

// Store persists entries. Implementations are append-only: there is no
// update path, and deletion happens only through DeleteExpired.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	// Query returns entries visible under scope that match filter, newest
	// first, plus the total match count before paging.
	Query(ctx context.Context, scope Scope, filter Filter, page Page) ([]Entry, int, error)
	// Since returns all entries at or after since that match filter, oldest first.
	Since(ctx context.Context, since time.Time, filter Filter) ([]Entry, error)
	// DeleteExpired removes ordinary entries older than cutoff. High, critical
	// and risky entries are removed only when older than retainedCutoff; a zero
	// retainedCutoff keeps them forever.
	DeleteExpired(ctx context.Context, cutoff, retainedCutoff time.Time) (int, error)
}

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks

// Recorder is the write port used by every component that audits. Record
// never fails the caller; delivery problems go to the diagnostic log.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, entry Entry)

func (f RecorderFunc) Record(ctx context.Context, entry Entry) { f(ctx, entry) }

// Nop discards entries.
var Nop Recorder = RecorderFunc(func(context.Context, Entry) {})

// Expired reports whether e falls outside the retention horizons.
func Expired(e *Entry, cutoff, retainedCutoff time.Time) bool {
	if !e.Timestamp.Before(cutoff) {
		return false
	}
	if e.Severity.IsHigh() || e.IsRisky() {
		return !retainedCutoff.IsZero() && e.Timestamp.Before(retainedCutoff)
	}
	return true
}
