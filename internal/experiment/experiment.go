// Package experiment runs the end-to-end workflows shared by the CLI and the
// MCP server: compile a topology, sample the baseline, perturb the stimuli,
// and turn the outcome into a stored run.
package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/mendoza/internal/config"
	"github.com/nvandessel/mendoza/internal/dynamics"
	"github.com/nvandessel/mendoza/internal/logging"
	"github.com/nvandessel/mendoza/internal/metrics"
	"github.com/nvandessel/mendoza/internal/network"
	"github.com/nvandessel/mendoza/internal/simulation"
	"github.com/nvandessel/mendoza/internal/store"
	"github.com/nvandessel/mendoza/internal/topology"
)

// Network is a compiled topology together with where it came from.
type Network struct {
	Source   string
	Topology network.Topology
	Matrices *network.Matrices
}

// LoadNetwork reads the topology file at path and compiles its square
// matrices.
func LoadNetwork(path string, logger *slog.Logger) (*Network, error) {
	if path == "" {
		return nil, &config.ConfigurationError{Field: "network.path", Reason: "no topology file given"}
	}
	topo, err := topology.Load(path)
	if err != nil {
		return nil, err
	}
	return compile(path, topo, logger)
}

// FromNodes compiles an inline topology.
func FromNodes(nodes []network.NodeSpec, stimuli []string, logger *slog.Logger) (*Network, error) {
	return compile("inline", network.Topology{Nodes: nodes, Stimuli: stimuli}, logger)
}

func compile(source string, topo network.Topology, logger *slog.Logger) (*Network, error) {
	logger = logging.OrDiscard(logger)
	m, err := network.Build(topo.Nodes)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", source, err)
	}
	for _, u := range m.Unresolved() {
		logger.Debug("ignoring unknown regulator",
			"node", u.Target, "token", u.Token, "relation", string(u.Relation))
	}
	return &Network{Source: source, Topology: topo, Matrices: m}, nil
}

// Options carries the ambient collaborators handed to the driver.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Registry
	Trace   *logging.TraceLogger
}

// Result is the outcome of one experiment.
type Result struct {
	Network  *Network
	Config   *config.ExperimentConfig
	Params   dynamics.Params
	Seed     uint64
	Observed []int

	Batch         *simulation.Batch
	Baseline      simulation.Baseline
	Perturbations []simulation.Perturbation
}

func newDriver(cfg *config.ExperimentConfig, net *Network, opts Options) (*simulation.Driver, dynamics.Params, []int, error) {
	if err := cfg.Validate(); err != nil {
		return nil, dynamics.Params{}, nil, err
	}
	m := net.Matrices
	if err := cfg.CheckNetwork(m); err != nil {
		return nil, dynamics.Params{}, nil, err
	}
	params, err := cfg.Params(m)
	if err != nil {
		return nil, dynamics.Params{}, nil, err
	}
	observed, err := cfg.ObservedIndices(m)
	if err != nil {
		return nil, dynamics.Params{}, nil, err
	}
	d, err := simulation.NewDriver(m, params, cfg.Experiment(),
		simulation.WithLogger(opts.Logger),
		simulation.WithMetrics(opts.Metrics),
		simulation.WithTrace(opts.Trace))
	if err != nil {
		return nil, dynamics.Params{}, nil, err
	}
	return d, params, observed, nil
}

// Simulate samples and aggregates the unperturbed baseline.
func Simulate(ctx context.Context, cfg *config.ExperimentConfig, net *Network, opts Options) (*Result, error) {
	d, params, observed, err := newDriver(cfg, net, opts)
	if err != nil {
		return nil, err
	}
	batch, base, err := d.Baseline(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{
		Network:  net,
		Config:   cfg,
		Params:   params,
		Seed:     d.Seed(),
		Observed: observed,
		Batch:    batch,
		Baseline: base,
	}, nil
}

// Perturb samples the baseline and then clamps the configured stimuli. When
// the configuration names no stimuli the topology's own stimulus list is
// used.
func Perturb(ctx context.Context, cfg *config.ExperimentConfig, net *Network, opts Options) (*Result, error) {
	if len(cfg.Perturbation.Stimuli) == 0 && len(net.Topology.Stimuli) > 0 {
		c := *cfg
		c.Perturbation.Stimuli = net.Topology.Stimuli
		cfg = &c
	}
	if len(cfg.Perturbation.Stimuli) == 0 {
		return nil, &config.ConfigurationError{Field: "perturbation.stimuli", Reason: "no stimuli configured"}
	}

	d, params, observed, err := newDriver(cfg, net, opts)
	if err != nil {
		return nil, err
	}
	stimuli, err := cfg.StimulusIndices(net.Matrices)
	if err != nil {
		return nil, err
	}

	batch, base, err := d.Baseline(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := d.Perturb(ctx, base, stimuli, cfg.PerturbationOptions())
	if err != nil {
		return nil, err
	}
	return &Result{
		Network:       net,
		Config:        cfg,
		Params:        params,
		Seed:          d.Seed(),
		Observed:      observed,
		Batch:         batch,
		Baseline:      base,
		Perturbations: rows,
	}, nil
}

// Warnings describes every incomplete batch of the result.
func (r *Result) Warnings() []string {
	var out []string
	if r.Batch != nil && !r.Batch.Complete() {
		out = append(out, fmt.Sprintf("baseline: %d of %d repetitions succeeded",
			r.Batch.Succeeded(), r.Batch.Requested))
	}
	for _, p := range r.Perturbations {
		if p.Succeeded < p.Requested {
			out = append(out, fmt.Sprintf("perturbation %v: %d of %d repetitions succeeded",
				p.Stimuli, p.Succeeded, p.Requested))
		}
	}
	return out
}

// Record converts the result into a storable run.
func (r *Result) Record() *store.Run {
	run := &store.Run{
		Network: r.Network.Source,
		Nodes:   r.Network.Matrices.Names(),
		Seed:    r.Seed,
		Params: store.RunParams{
			TStart:      r.Config.Simulation.TStart,
			TEnd:        r.Config.Simulation.TEnd,
			Samples:     r.Config.Simulation.Samples,
			Repetitions: r.Config.Simulation.Repetitions,
			Steepness:   r.Params.H,
			Gamma:       r.Params.Gamma,
		},
		Baseline:      r.Baseline,
		Perturbations: r.Perturbations,
	}
	if r.Batch != nil {
		run.Requested = r.Batch.Requested
		run.Succeeded = r.Batch.Succeeded()
		run.Samples = r.Batch.Samples
	}
	if len(r.Perturbations) > 0 {
		run.Params.Mode = string(r.Config.PerturbationOptions().Mode)
		run.Params.PerturbationRepetitions = r.Config.Perturbation.Repetitions
	}
	return run
}

// Save stores the result and returns the new run ID.
func Save(ctx context.Context, s *store.RunStore, r *Result) (string, error) {
	if s == nil {
		return "", fmt.Errorf("run store is disabled")
	}
	return s.SaveRun(ctx, r.Record())
}
