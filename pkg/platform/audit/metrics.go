package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit delivery.
type Metrics struct {
	Recorded        *prometheus.CounterVec
	Dropped         *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
	QueueDepth      prometheus.Gauge
	BreakerOpen     prometheus.Gauge
	Forwarded       prometheus.Counter
}

// NewMetrics creates and registers audit metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shareledger_audit_entries_recorded_total",
			Help: "Audit entries persisted, by category",
		}, []string{"category"}),
		Dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shareledger_audit_entries_dropped_total",
			Help: "Audit entries dropped before persistence, by reason",
		}, []string{"reason"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shareledger_audit_persist_failures_total",
			Help: "Audit store write failures",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shareledger_audit_persist_duration_seconds",
			Help:    "Audit store write latency",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shareledger_audit_queue_depth",
			Help: "Entries waiting in the async audit queue",
		}),
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shareledger_audit_circuit_breaker_open",
			Help: "Audit store circuit breaker state (0=closed, 1=open)",
		}),
		Forwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shareledger_audit_entries_forwarded_total",
			Help: "Audit entries forwarded to the security event stream",
		}),
	}
}

// Drop reasons.
const (
	DropQueueFull   = "queue_full"
	DropClosed      = "closed"
	DropInvalid     = "invalid"
	DropStoreFailed = "store_failed"
	DropBreakerOpen = "breaker_open"
)

func (m *Metrics) IncRecorded(c Category) {
	if m != nil {
		m.Recorded.WithLabelValues(string(c)).Inc()
	}
}

func (m *Metrics) IncDropped(reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) ObservePersist(seconds float64) {
	if m != nil {
		m.PersistDuration.Observe(seconds)
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
	} else {
		m.BreakerOpen.Set(0)
	}
}

func (m *Metrics) IncForwarded() {
	if m != nil {
		m.Forwarded.Inc()
	}
}
