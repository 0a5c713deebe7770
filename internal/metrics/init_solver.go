package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSolverMetrics() {
	r.IntegrationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mendoza_integrations_total",
			Help: "Total number of integration runs",
		},
		[]string{"kind", "status"},
	)

	r.IntegrationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mendoza_integration_duration_seconds",
			Help:    "Wall-clock duration of a single integration run",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"kind"},
	)

	r.SolverSteps = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mendoza_solver_steps",
			Help:    "Accepted solver steps per integration run",
			Buckets: []float64{10, 50, 100, 500, 1000, 10000, 100000},
		},
		[]string{"kind"},
	)

	r.SolverRejectedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mendoza_solver_rejected_steps_total",
			Help: "Total number of rejected solver steps",
		},
		[]string{"kind"},
	)

	r.SolverEvaluations = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mendoza_solver_rhs_evaluations_total",
			Help: "Total number of right-hand-side evaluations",
		},
		[]string{"kind"},
	)
}
