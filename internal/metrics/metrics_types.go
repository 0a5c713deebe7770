// Package metrics exposes Prometheus instrumentation for simulation runs.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the simulator
type Registry struct {
	// Solver Metrics
	IntegrationsTotal   *prometheus.CounterVec
	IntegrationDuration *prometheus.HistogramVec
	SolverSteps         *prometheus.HistogramVec
	SolverRejectedTotal *prometheus.CounterVec
	SolverEvaluations   *prometheus.CounterVec

	// Batch Metrics
	BatchesTotal         *prometheus.CounterVec
	BatchDuration        *prometheus.HistogramVec
	RepetitionsRequested *prometheus.CounterVec
	RepetitionsFailed    *prometheus.CounterVec
	WorkersBusy          prometheus.Gauge

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initSolverMetrics()
	r.initBatchMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
