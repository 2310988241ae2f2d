package workflow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes recorded by RequestsTotal.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeSubstitute = "substitute"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for workflow calls.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the workflow metrics on the default registry once and
// returns the shared instance.
//
// Metrics:
//   - climblearn_workflow_requests_total{flow,outcome}
//   - climblearn_workflow_request_duration_seconds{flow}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "climblearn_workflow_requests_total",
					Help: "Total number of workflow invocations",
				},
				[]string{"flow", "outcome"}, // ok, error or substitute
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "climblearn_workflow_request_duration_seconds",
					Help:    "Duration of workflow HTTP calls",
					Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"flow"},
			),
		}
	})
	return globalMetrics
}
