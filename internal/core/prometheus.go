package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports facade operation metrics through a
// prometheus registry: a duration histogram and an outcome counter, both
// labeled by operation and status.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	outcomes  *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder constructs a recorder and registers its
// collectors with reg. A nil registerer leaves the collectors unregistered,
// which is useful for tests that scrape the vectors directly.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	r := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quantacore",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store facade operations.",
		}, []string{"operation", "status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantacore",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Count of store facade operations by outcome.",
		}, []string{"operation", "status"}),
	}
	if reg != nil {
		reg.MustRegister(r.durations, r.outcomes)
	}
	return r
}

// Observe records a facade operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
	r.outcomes.WithLabelValues(operation, status).Inc()
}
