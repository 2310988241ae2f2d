package flow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the learning flow.
type Metrics struct {
	TransitionsTotal *prometheus.CounterVec
	StepErrorsTotal  *prometheus.CounterVec
}

// NewMetrics registers the flow metrics once and returns the shared instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TransitionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "climblearn_flow_transitions_total",
					Help: "Persisted stage transitions, including steps that stay in the same stage",
				},
				[]string{"from", "to"},
			),
			StepErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "climblearn_flow_step_errors_total",
					Help: "Steps that failed, by the stage they started in",
				},
				[]string{"stage"},
			),
		}
	})
	return globalMetrics
}
