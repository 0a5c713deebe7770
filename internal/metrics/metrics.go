package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run kinds used as the "kind" label.
const (
	KindBaseline     = "baseline"
	KindPerturbation = "perturbation"
)

// Batch completeness labels.
const (
	Complete = "complete"
	Partial  = "partial"
	Failed   = "failed"
)

// RecordIntegration records one solver run. Safe to call on nil receiver.
func (r *Registry) RecordIntegration(kind string, err error, duration time.Duration, steps, rejected, evals int) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	r.IntegrationsTotal.WithLabelValues(kind, status).Inc()
	r.IntegrationDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err != nil {
		return
	}
	r.SolverSteps.WithLabelValues(kind).Observe(float64(steps))
	r.SolverRejectedTotal.WithLabelValues(kind).Add(float64(rejected))
	r.SolverEvaluations.WithLabelValues(kind).Add(float64(evals))
}

// RecordBatch records a finished batch of repetitions. Safe to call on nil
// receiver.
func (r *Registry) RecordBatch(kind string, requested, succeeded int, duration time.Duration) {
	if r == nil {
		return
	}
	completeness := Complete
	switch {
	case succeeded == 0:
		completeness = Failed
	case succeeded < requested:
		completeness = Partial
	}
	r.BatchesTotal.WithLabelValues(kind, completeness).Inc()
	r.BatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
	r.RepetitionsRequested.WithLabelValues(kind).Add(float64(requested))
	r.RepetitionsFailed.WithLabelValues(kind).Add(float64(requested - succeeded))
}

// WorkerStarted and WorkerDone track the busy worker gauge. Safe to call on
// nil receiver.
func (r *Registry) WorkerStarted() {
	if r != nil {
		r.WorkersBusy.Inc()
	}
}

func (r *Registry) WorkerDone() {
	if r != nil {
		r.WorkersBusy.Dec()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
