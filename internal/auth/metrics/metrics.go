package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the auth module. A nil *Metrics is a
// valid no-op collector.
type Metrics struct {
	LoginAttempts  *prometheus.CounterVec
	Lockouts       prometheus.Counter
	RefreshReplays prometheus.Counter
	TokensIssued   *prometheus.CounterVec
	LoginDuration  prometheus.Histogram
}

// New creates a new Metrics instance with all auth metrics registered.
func New() *Metrics {
	return &Metrics{
		LoginAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shareledger_auth_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		Lockouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shareledger_auth_lockouts_total",
			Help: "Accounts locked after repeated failures",
		}),
		RefreshReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shareledger_auth_refresh_replays_total",
			Help: "Refresh tokens presented after they were consumed",
		}),
		TokensIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shareledger_auth_tokens_issued_total",
			Help: "Tokens issued by type",
		}, []string{"type"}),
		LoginDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shareledger_auth_login_duration_seconds",
			Help:    "Duration of login handling, including password hashing",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncLogin counts a login attempt under outcome.
func (m *Metrics) IncLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// IncLockout records an account lockout.
func (m *Metrics) IncLockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

// IncRefreshReplay records a detected refresh-token replay.
func (m *Metrics) IncRefreshReplay() {
	if m == nil {
		return
	}
	m.RefreshReplays.Inc()
}

// IncTokenIssued records an issued token of typ.
func (m *Metrics) IncTokenIssued(typ string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(typ).Inc()
}

// ObserveLogin records login latency.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveLogin(start time.Time) {
	if m == nil {
		return
	}
	m.LoginDuration.Observe(time.Since(start).Seconds())
}
