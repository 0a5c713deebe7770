package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initBatchMetrics() {
	r.BatchesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mendoza_batches_total",
			Help: "Total number of repetition batches by completeness",
		},
		[]string{"kind", "completeness"},
	)

	r.BatchDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mendoza_batch_duration_seconds",
			Help:    "Wall-clock duration of a repetition batch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60},
		},
		[]string{"kind"},
	)

	r.RepetitionsRequested = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mendoza_repetitions_requested_total",
			Help: "Total number of repetitions requested",
		},
		[]string{"kind"},
	)

	r.RepetitionsFailed = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mendoza_repetitions_failed_total",
			Help: "Total number of repetitions whose integration failed",
		},
		[]string{"kind"},
	)

	r.WorkersBusy = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "mendoza_workers_busy",
			Help: "Number of integration workers currently running",
		},
	)
}
