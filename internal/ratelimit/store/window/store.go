// Package window stores sliding-window attempt logs for the rate limiter.
//
// Both implementations take the caller's notion of now, so the clock lives
// in the service and tests stay deterministic.
package window

import "time"

// Hit is the state of one window after an attempt.
type Hit struct {
	// Allowed reports whether the attempt was recorded.
	Allowed bool
	// Count is the number of in-window attempts, including this one when
	// allowed.
	Count int
	// Oldest is the earliest in-window attempt. It is zero when the window
	// is empty.
	Oldest time.Time
}

// cutoff is the instant at or before which attempts no longer count.
func cutoff(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}
