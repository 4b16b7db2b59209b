package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the sensitive-operation limiter. A nil *Metrics is a valid
// no-op collector.
type Metrics struct {
	Checks       *prometheus.CounterVec
	StoreErrors  prometheus.Counter
	DegradedMode prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shareledger_ratelimit_checks_total",
			Help: "Sensitive-operation rate limit checks by rule and outcome",
		}, []string{"rule", "outcome"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shareledger_ratelimit_store_errors_total",
			Help: "Window store failures that forced the local fallback",
		}),
		DegradedMode: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shareledger_ratelimit_degraded",
			Help: "1 while the shared window store circuit is open",
		}),
	}
}

func (m *Metrics) IncCheck(rule string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.Checks.WithLabelValues(rule, outcome).Inc()
}

func (m *Metrics) IncStoreError() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

func (m *Metrics) SetDegraded(open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.DegradedMode.Set(v)
}
