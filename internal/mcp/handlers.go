package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/mendoza/internal/config"
	"github.com/nvandessel/mendoza/internal/experiment"
	"github.com/nvandessel/mendoza/internal/network"
	"github.com/nvandessel/mendoza/internal/simulation"
	"github.com/nvandessel/mendoza/internal/store"
)

const runURIPrefix = "mendoza://runs/"

// defaultRunsLimit caps mendoza_runs when no limit is given.
const defaultRunsLimit = 20

// registerTools registers all mendoza MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "mendoza_matrices",
		Description: "Compile a regulatory network and summarize its activation and inhibition matrices",
	}, s.handleMatrices)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "mendoza_simulate",
		Description: "Integrate the network from random initial states and report the baseline steady state (mean, median, std)",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "mendoza_perturb",
		Description: "Clamp stimulus nodes fully on and report each node's steady-state change against the baseline",
	}, s.handlePerturb)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "mendoza_runs",
		Description: "List stored simulation runs, most recent first",
	}, s.handleRuns)
}

// registerResources registers the stored-run resource template.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runURIPrefix + "{id}",
		Name:        "mendoza-run",
		Description: "Baseline and perturbation results of a stored run. The ID may be a unique prefix.",
		MIMEType:    "text/markdown",
	}, s.handleRunResource)
}

// loadNetwork resolves the network for a tool call: inline nodes first, then
// the given path, then the configured path. A path from the client must lie
// within the allowed directories.
func (s *Server) loadNetwork(path string, nodes []network.NodeSpec, stimuli []string) (*experiment.Network, error) {
	if len(nodes) > 0 {
		return experiment.FromNodes(nodes, stimuli, s.logger)
	}
	if path == "" {
		return experiment.LoadNetwork(s.config.Network.Path, s.logger)
	}
	if len(s.roots) > 0 {
		checked, err := s.roots.Check(path)
		if err != nil {
			return nil, fmt.Errorf("network path rejected: %w", err)
		}
		path = checked
	}
	return experiment.LoadNetwork(path, s.logger)
}

// experimentConfig copies the server defaults so a call's overrides never
// leak into the next call.
func (s *Server) experimentConfig() *config.ExperimentConfig {
	c := *s.config
	return &c
}

func (s *Server) options() experiment.Options {
	return experiment.Options{Logger: s.logger, Metrics: s.metrics, Trace: s.trace}
}

// handleMatrices implements the mendoza_matrices tool.
func (s *Server) handleMatrices(ctx context.Context, req *sdk.CallToolRequest, args MatricesInput) (_ *sdk.CallToolResult, _ MatricesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("mendoza_matrices", start, retErr, map[string]any{
			"network": args.Network, "node_count": len(args.Nodes), "stimulus_count": len(args.Stimuli),
		})
	}()

	if err := s.limits.Check("mendoza_matrices"); err != nil {
		return nil, MatricesOutput{}, err
	}

	net, err := s.loadNetwork(args.Network, args.Nodes, nil)
	if err != nil {
		return nil, MatricesOutput{}, err
	}
	m := net.Matrices
	if len(args.Stimuli) > 0 {
		if m, err = network.BuildStimulusIndexed(net.Topology.Nodes, args.Stimuli); err != nil {
			return nil, MatricesOutput{}, err
		}
	}

	return nil, MatricesOutput(experiment.Summarize(net.Source, m)), nil
}

// handleSimulate implements the mendoza_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("mendoza_simulate", start, retErr, map[string]any{
			"network": args.Network, "node_count": len(args.Nodes), "repetitions": args.Repetitions,
			"t_end": args.TEnd, "seed": args.Seed, "save": args.Save, "observed": len(args.Observed),
		})
	}()

	if err := s.limits.Check("mendoza_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	net, err := s.loadNetwork(args.Network, args.Nodes, nil)
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	cfg := s.experimentConfig()
	if args.Repetitions != 0 {
		cfg.Simulation.Repetitions = args.Repetitions
	}
	if args.TEnd != 0 {
		cfg.Simulation.TEnd = args.TEnd
	}
	if args.Seed != 0 {
		cfg.Simulation.Seed = args.Seed
	}
	if len(args.Observed) > 0 {
		cfg.Network.Observed = args.Observed
	}

	res, err := experiment.Simulate(ctx, cfg, net, s.options())
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	out := SimulateOutput{
		Seed:      res.Seed,
		Requested: res.Batch.Requested,
		Succeeded: res.Batch.Succeeded(),
		Warnings:  res.Warnings(),
		Nodes:     experiment.NodeNames(net.Matrices, res.Observed),
		Mean:      simulation.Select(res.Baseline.Mean, res.Observed),
		Median:    simulation.Select(res.Baseline.Median, res.Observed),
		Std:       simulation.Select(res.Baseline.Std, res.Observed),
	}
	if args.Save {
		if out.RunID, err = experiment.Save(ctx, s.store, res); err != nil {
			return nil, SimulateOutput{}, err
		}
	}
	return nil, out, nil
}

// handlePerturb implements the mendoza_perturb tool.
func (s *Server) handlePerturb(ctx context.Context, req *sdk.CallToolRequest, args PerturbInput) (_ *sdk.CallToolResult, _ PerturbOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("mendoza_perturb", start, retErr, map[string]any{
			"network": args.Network, "node_count": len(args.Nodes), "stimulus_count": len(args.Stimuli),
			"mode": args.Mode, "repetitions": args.Repetitions, "baseline_repetitions": args.BaselineRepetitions,
			"seed": args.Seed, "save": args.Save, "observed": len(args.Observed),
		})
	}()

	if err := s.limits.Check("mendoza_perturb"); err != nil {
		return nil, PerturbOutput{}, err
	}

	net, err := s.loadNetwork(args.Network, args.Nodes, args.Stimuli)
	if err != nil {
		return nil, PerturbOutput{}, err
	}

	cfg := s.experimentConfig()
	if len(args.Stimuli) > 0 {
		cfg.Perturbation.Stimuli = args.Stimuli
	}
	if args.Mode != "" {
		cfg.Perturbation.Mode = strings.ToLower(strings.TrimSpace(args.Mode))
	}
	if args.Repetitions != 0 {
		cfg.Perturbation.Repetitions = args.Repetitions
	}
	if args.BaselineRepetitions != 0 {
		cfg.Simulation.Repetitions = args.BaselineRepetitions
	}
	if args.Seed != 0 {
		cfg.Simulation.Seed = args.Seed
	}
	if len(args.Observed) > 0 {
		cfg.Network.Observed = args.Observed
	}

	res, err := experiment.Perturb(ctx, cfg, net, s.options())
	if err != nil {
		return nil, PerturbOutput{}, err
	}

	out := PerturbOutput{
		Seed:     res.Seed,
		Warnings: res.Warnings(),
		Nodes:    experiment.NodeNames(net.Matrices, res.Observed),
		Baseline: simulation.Select(res.Baseline.Mean, res.Observed),
		Rows:     make([]PerturbRow, len(res.Perturbations)),
	}
	for i, p := range res.Perturbations {
		out.Rows[i] = PerturbRow{
			Stimuli:   p.Stimuli,
			Final:     simulation.Select(p.Final, res.Observed),
			Spread:    simulation.Select(p.Spread, res.Observed),
			Diff:      simulation.Select(p.Diff, res.Observed),
			Requested: p.Requested,
			Succeeded: p.Succeeded,
		}
	}
	if args.Save {
		if out.RunID, err = experiment.Save(ctx, s.store, res); err != nil {
			return nil, PerturbOutput{}, err
		}
	}
	return nil, out, nil
}

// handleRuns implements the mendoza_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("mendoza_runs", start, retErr, map[string]any{"limit": args.Limit})
	}()

	if err := s.limits.Check("mendoza_runs"); err != nil {
		return nil, RunsOutput{}, err
	}
	if s.store == nil {
		return nil, RunsOutput{}, fmt.Errorf("run store is disabled")
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, RunsOutput{}, err
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	return nil, RunsOutput{Runs: runs, Count: len(runs)}, nil
}

// handleRunResource renders a stored run as markdown.
// URI format: mendoza://runs/{id}
func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, runURIPrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	id := strings.TrimPrefix(uri, runURIPrefix)
	if id == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("run store is disabled")
	}

	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, sdk.ResourceNotFoundError(uri)
		}
		return nil, err
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     renderRun(run),
			},
		},
	}, nil
}

// renderRun formats a run as a markdown report.
func renderRun(run *store.Run) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run %s\n\n", run.ID)
	fmt.Fprintf(&sb, "**Network:** %s\n", run.Network)
	fmt.Fprintf(&sb, "**Created:** %s\n", run.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "**Seed:** %d\n", run.Seed)
	fmt.Fprintf(&sb, "**Repetitions:** %d of %d succeeded\n\n", run.Succeeded, run.Requested)

	sb.WriteString("## Baseline\n\n")
	sb.WriteString("| Node | Mean | Median | Std |\n|---|---|---|---|\n")
	for i, name := range run.Nodes {
		if i >= len(run.Baseline.Mean) {
			break
		}
		fmt.Fprintf(&sb, "| %s | %.4f | %.4f | %.4f |\n",
			name, run.Baseline.Mean[i], run.Baseline.Median[i], run.Baseline.Std[i])
	}

	if len(run.Perturbations) > 0 {
		fmt.Fprintf(&sb, "\n## Perturbations (%s)\n\n", run.Params.Mode)
		sb.WriteString("| Node |")
		for _, p := range run.Perturbations {
			fmt.Fprintf(&sb, " %s |", strings.Join(p.Stimuli, "+"))
		}
		sb.WriteString("\n|---|")
		sb.WriteString(strings.Repeat("---|", len(run.Perturbations)))
		sb.WriteString("\n")
		for i, name := range run.Nodes {
			fmt.Fprintf(&sb, "| %s |", name)
			for _, p := range run.Perturbations {
				fmt.Fprintf(&sb, " %+.4f |", p.Diff[i])
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
