package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/mendoza/internal/dynamics"
	"github.com/nvandessel/mendoza/internal/integrate"
	"github.com/nvandessel/mendoza/internal/logging"
	"github.com/nvandessel/mendoza/internal/metrics"
	"github.com/nvandessel/mendoza/internal/network"
)

// Experiment holds the run shape shared by baseline and perturbation batches.
type Experiment struct {
	// TStart and TEnd bound the integration span.
	TStart float64
	TEnd   float64

	// Samples is the number of output times, evenly spaced over the span.
	Samples int

	// Repetitions is the number of random initial conditions in a baseline.
	Repetitions int

	// Seed selects the random streams. Zero draws a fresh seed in NewDriver.
	Seed uint64

	// Workers bounds concurrent integrations. Zero uses GOMAXPROCS.
	Workers int

	// Solver configures the adaptive integrator.
	Solver integrate.Options
}

// DefaultExperiment returns t in [0, 30] at 100 samples, 100 repetitions.
func DefaultExperiment() Experiment {
	return Experiment{
		TStart:      0,
		TEnd:        30,
		Samples:     100,
		Repetitions: 100,
		Solver:      integrate.DefaultOptions(),
	}
}

// Check reports the first invalid field.
func (e Experiment) Check() error {
	switch {
	case math.IsNaN(e.TStart) || math.IsInf(e.TStart, 0) || math.IsNaN(e.TEnd) || math.IsInf(e.TEnd, 0):
		return fmt.Errorf("time span must be finite, got [%v, %v]", e.TStart, e.TEnd)
	case !(e.TEnd > e.TStart):
		return fmt.Errorf("time span end %v must be after start %v", e.TEnd, e.TStart)
	case e.Samples < 2:
		return fmt.Errorf("samples must be at least 2, got %d", e.Samples)
	case e.Repetitions < 1:
		return fmt.Errorf("repetitions must be positive, got %d", e.Repetitions)
	case e.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", e.Workers)
	}
	return nil
}

func (e Experiment) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Driver integrates one network under fixed parameters. It is safe for
// concurrent use.
type Driver struct {
	m      *network.Matrices
	params dynamics.Params
	exp    Experiment
	times  []float64

	logger  *slog.Logger
	metrics *metrics.Registry
	trace   *logging.TraceLogger
}

// Option configures optional Driver collaborators.
type Option func(*Driver)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = logging.OrDiscard(l) }
}

// WithMetrics records solver and batch metrics into r.
func WithMetrics(r *metrics.Registry) Option {
	return func(d *Driver) { d.metrics = r }
}

// WithTrace writes one trace line per integration.
func WithTrace(tl *logging.TraceLogger) Option {
	return func(d *Driver) { d.trace = tl }
}

// NewDriver validates params and exp against m.
func NewDriver(m *network.Matrices, params dynamics.Params, exp Experiment, opts ...Option) (*Driver, error) {
	if m == nil || m.Size() == 0 {
		return nil, errors.New("network has no nodes")
	}
	if err := params.Check(m.Size()); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if err := exp.Check(); err != nil {
		return nil, fmt.Errorf("invalid experiment: %w", err)
	}
	if exp.Seed == 0 {
		exp.Seed = rand.Uint64() | 1
	}

	d := &Driver{
		m:      m,
		params: params,
		exp:    exp,
		times:  Linspace(exp.TStart, exp.TEnd, exp.Samples),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Matrices returns the network being simulated.
func (d *Driver) Matrices() *network.Matrices { return d.m }

// Experiment returns the run shape, including the resolved seed.
func (d *Driver) Experiment() Experiment { return d.exp }

// Seed returns the experiment seed; rerunning with it reproduces every batch.
func (d *Driver) Seed() uint64 { return d.exp.Seed }

// Times returns the output times of every integration.
func (d *Driver) Times() []float64 {
	return append([]float64(nil), d.times...)
}

// Integrate runs one integration from x0 with the given clamp mask, which may
// be nil. Clamped nodes keep their x0 value for the whole trajectory.
func (d *Driver) Integrate(ctx context.Context, x0 []float64, clamped []bool) (*integrate.Solution, error) {
	n := d.m.Size()
	if len(x0) != n {
		return nil, fmt.Errorf("initial state has %d values, network has %d nodes", len(x0), n)
	}
	if clamped != nil && len(clamped) != n {
		return nil, fmt.Errorf("clamp mask has %d entries, network has %d nodes", len(clamped), n)
	}
	kind := metrics.KindBaseline
	for _, c := range clamped {
		if c {
			kind = metrics.KindPerturbation
			break
		}
	}
	return d.integrate(ctx, kind, x0, clamped)
}

func (d *Driver) integrate(ctx context.Context, kind string, x0 []float64, clamped []bool) (*integrate.Solution, error) {
	start := time.Now()
	sol, err := integrate.Solve(ctx, dynamics.System(d.m, d.params, clamped), x0, d.times, d.exp.Solver)
	elapsed := time.Since(start)

	if sol != nil {
		d.metrics.RecordIntegration(kind, nil, elapsed, sol.Steps, sol.Rejected, sol.Evaluations)
	} else {
		d.metrics.RecordIntegration(kind, err, elapsed, 0, 0, 0)
	}
	return sol, err
}

// Failure records a repetition whose integration failed.
type Failure struct {
	Repetition int
	Err        error
}

// Batch is the outcome of a set of repetitions.
type Batch struct {
	// Samples holds one final state per successful repetition, ordered by
	// repetition index.
	Samples [][]float64

	// Repetitions holds the repetition index of each sample.
	Repetitions []int

	Failures  []Failure
	Requested int

	// Trajectory is the full solution of the last successful repetition.
	Trajectory *integrate.Solution
}

// Succeeded returns the number of successful repetitions.
func (b *Batch) Succeeded() int { return len(b.Samples) }

// Complete reports whether every requested repetition succeeded.
func (b *Batch) Complete() bool { return len(b.Failures) == 0 && len(b.Samples) == b.Requested }

// Sample runs the baseline batch: Repetitions unclamped integrations from
// uniform random initial states in [0, 1).
func (d *Driver) Sample(ctx context.Context) (*Batch, error) {
	return d.runBatch(ctx, metrics.KindBaseline, 0, d.exp.Repetitions, nil)
}

// Baseline runs Sample and aggregates its final states.
func (d *Driver) Baseline(ctx context.Context) (*Batch, Baseline, error) {
	batch, err := d.Sample(ctx)
	if err != nil {
		return nil, Baseline{}, err
	}
	base, err := Aggregate(batch.Samples)
	if err != nil {
		return nil, Baseline{}, err
	}
	return batch, base, nil
}

// prepareFunc adjusts a freshly drawn initial state and an all-false clamp
// mask before repetition rep is integrated.
type prepareFunc func(rep int, x0 []float64, clamped []bool)

// runBatch integrates reps repetitions of one stream concurrently. Streams
// keep baseline and perturbation draws apart; repetition rep of stream s
// always sees the same initial state for a given seed.
func (d *Driver) runBatch(ctx context.Context, kind string, stream uint32, reps int, prepare prepareFunc) (*Batch, error) {
	n := d.m.Size()
	start := time.Now()

	type outcome struct {
		sol *integrate.Solution
		err error
	}
	results := make([]outcome, reps)

	var g errgroup.Group
	g.SetLimit(d.exp.workers())
	for rep := 0; rep < reps; rep++ {
		g.Go(func() error {
			d.metrics.WorkerStarted()
			defer d.metrics.WorkerDone()

			rng := rand.New(rand.NewPCG(d.exp.Seed, uint64(stream)<<32|uint64(rep)))
			x0 := make([]float64, n)
			for i := range x0 {
				x0[i] = rng.Float64()
			}
			var clamped []bool
			if prepare != nil {
				clamped = make([]bool, n)
				prepare(rep, x0, clamped)
			}

			sol, err := d.integrate(ctx, kind, x0, clamped)
			results[rep] = outcome{sol: sol, err: err}
			d.traceRun(ctx, kind, stream, rep, sol, err)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s batch interrupted: %w", kind, err)
	}

	batch := &Batch{Requested: reps}
	for rep, r := range results {
		if r.err != nil {
			batch.Failures = append(batch.Failures, Failure{Repetition: rep, Err: r.err})
			continue
		}
		batch.Samples = append(batch.Samples, r.sol.Final())
		batch.Repetitions = append(batch.Repetitions, rep)
		batch.Trajectory = r.sol
	}
	d.metrics.RecordBatch(kind, reps, batch.Succeeded(), time.Since(start))

	if batch.Succeeded() == 0 {
		return nil, fmt.Errorf("%s batch: all %d repetitions failed: %w (first: %w)",
			kind, reps, ErrNoSamples, batch.Failures[0].Err)
	}
	if !batch.Complete() {
		d.logger.Warn("incomplete batch",
			"kind", kind,
			"requested", reps,
			"succeeded", batch.Succeeded(),
			"first_error", batch.Failures[0].Err)
	} else {
		d.logger.Debug("batch complete", "kind", kind, "repetitions", reps, "elapsed", time.Since(start))
	}
	return batch, nil
}

func (d *Driver) traceRun(ctx context.Context, kind string, stream uint32, rep int, sol *integrate.Solution, err error) {
	if err != nil {
		d.logger.Debug("repetition failed", "kind", kind, "stream", stream, "rep", rep, "error", err)
	} else {
		d.logger.Log(ctx, logging.LevelTrace, "repetition",
			"kind", kind, "stream", stream, "rep", rep,
			"steps", sol.Steps, "rejected", sol.Rejected)
	}

	if d.trace == nil {
		return
	}
	event := map[string]any{
		"event":  kind,
		"seed":   d.exp.Seed,
		"stream": stream,
		"rep":    rep,
	}
	if err != nil {
		event["error"] = err.Error()
	} else {
		event["steps"] = sol.Steps
		event["rejected"] = sol.Rejected
		event["evaluations"] = sol.Evaluations
	}
	d.trace.Log(event)
}
