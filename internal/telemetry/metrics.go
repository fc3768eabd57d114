package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the routing engine.
type Metrics struct {
	RequestTotal        *prometheus.CounterVec
	RequestDurationMs   *prometheus.HistogramVec
	AttemptTotal        *prometheus.CounterVec
	ErrorCategoryTotal  *prometheus.CounterVec
	BackendAvailable    *prometheus.GaugeVec
	EmergencyResetTotal prometheus.Counter
	RateLimitedTotal    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkrouter_request_total",
			Help: "Total routing requests handled, by task type and outcome.",
		}, []string{"task", "outcome"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chunkrouter_request_duration_ms",
			Help:    "End-to-end routing request duration in milliseconds, including all backend attempts.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		}, []string{"outcome"}),

		AttemptTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkrouter_backend_attempt_total",
			Help: "Total backend invocations, by backend and outcome.",
		}, []string{"backend", "outcome"}),

		ErrorCategoryTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chunkrouter_error_category_total",
			Help: "Backend failures by classified category. Each increment starts a cooldown.",
		}, []string{"backend", "category"}),

		BackendAvailable: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chunkrouter_backend_available",
			Help: "Whether a backend is currently available for routing (1) or cooling down (0).",
		}, []string{"backend"}),

		EmergencyResetTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkrouter_emergency_reset_total",
			Help: "Times all cooldowns were force-cleared because no backend was available.",
		}),

		RateLimitedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chunkrouter_inbound_rate_limited_total",
			Help: "Inbound requests rejected by the caller rate limiter.",
		}),
	}
}

// RecordRequest records one completed routing request.
func (m *Metrics) RecordRequest(task, outcome string, durationMs float64) {
	m.RequestTotal.WithLabelValues(task, outcome).Inc()
	m.RequestDurationMs.WithLabelValues(outcome).Observe(durationMs)
}

// RecordAttempt records one backend invocation.
func (m *Metrics) RecordAttempt(backend, outcome string) {
	m.AttemptTotal.WithLabelValues(backend, outcome).Inc()
}

// RecordErrorCategory records a classified backend failure.
func (m *Metrics) RecordErrorCategory(backend, category string) {
	m.ErrorCategoryTotal.WithLabelValues(backend, category).Inc()
}

// SetBackendAvailable updates the availability gauge for a backend.
func (m *Metrics) SetBackendAvailable(backend string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	m.BackendAvailable.WithLabelValues(backend).Set(v)
}

// RecordEmergencyReset records a force-clear of all cooldowns.
func (m *Metrics) RecordEmergencyReset() {
	m.EmergencyResetTotal.Inc()
}

// RecordRateLimited records an inbound request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	m.RateLimitedTotal.Inc()
}
