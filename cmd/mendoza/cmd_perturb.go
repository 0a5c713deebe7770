package main

import (
	"fmt"
	"strings"

	"github.com/nvandessel/mendoza/internal/experiment"
	"github.com/nvandessel/mendoza/internal/export"
	"github.com/nvandessel/mendoza/internal/simulation"
	"github.com/spf13/cobra"
)

type perturbRow struct {
	Stimuli   []string  `json:"stimuli"`
	Final     []float64 `json:"final"`
	Spread    []float64 `json:"spread"`
	Diff      []float64 `json:"diff"`
	Requested int       `json:"requested"`
	Succeeded int       `json:"succeeded"`
}

type perturbOutput struct {
	RunID    string       `json:"run_id,omitempty"`
	Network  string       `json:"network"`
	Seed     uint64       `json:"seed"`
	Warnings []string     `json:"warnings,omitempty"`
	Nodes    []string     `json:"nodes"`
	Baseline []float64    `json:"baseline"`
	Rows     []perturbRow `json:"rows"`
}

func newPerturbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perturb [network]",
		Short: "Clamp stimulus nodes and measure the steady-state shift",
		Long: `Sample the unperturbed baseline, then hold each stimulus node at 1
and report how far every node's final value moves from the baseline mean.

In independent mode each stimulus gets its own row. In joint mode all
stimuli are clamped together and a single row is reported. Stimuli
default to the config, then to the network's Stimuli column.

Examples:
  mendoza perturb network.csv --stimuli TNF,IL1
  mendoza perturb network.csv --stimuli TNF,IL1 --mode joint --repetitions 20
  mendoza perturb network.yaml --export diff.arrow --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			exportPath, _ := cmd.Flags().GetString("export")

			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			flags := cmd.Flags()
			if flags.Changed("stimuli") {
				cfg.Perturbation.Stimuli, _ = flags.GetStringSlice("stimuli")
			}
			if flags.Changed("mode") {
				cfg.Perturbation.Mode, _ = flags.GetString("mode")
			}
			if flags.Changed("repetitions") {
				cfg.Perturbation.Repetitions, _ = flags.GetInt("repetitions")
			}
			if flags.Changed("baseline-repetitions") {
				cfg.Simulation.Repetitions, _ = flags.GetInt("baseline-repetitions")
			}

			logger := newLogger(cmd, cfg)
			net, err := experiment.LoadNetwork(cfg.Network.Path, logger)
			if err != nil {
				return err
			}

			trace := openTrace(cfg)
			defer trace.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			res, err := experiment.Perturb(ctx, cfg, net, runOptions(logger, trace))
			if err != nil {
				return err
			}
			warnings := res.Warnings()
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}

			if exportPath != "" {
				f := export.Perturbations(net.Matrices.Names(), res.Baseline, res.Perturbations)
				if err := export.WriteFile(exportPath, f); err != nil {
					return fmt.Errorf("failed to export perturbations: %w", err)
				}
			}

			runID, err := saveResult(cmd, cfg, res)
			if err != nil {
				return err
			}

			out := perturbOutput{
				RunID:    runID,
				Network:  net.Source,
				Seed:     res.Seed,
				Warnings: warnings,
				Nodes:    experiment.NodeNames(net.Matrices, res.Observed),
				Baseline: simulation.Select(res.Baseline.Mean, res.Observed),
				Rows:     make([]perturbRow, len(res.Perturbations)),
			}
			for k, p := range res.Perturbations {
				out.Rows[k] = perturbRow{
					Stimuli:   p.Stimuli,
					Final:     simulation.Select(p.Final, res.Observed),
					Spread:    simulation.Select(p.Spread, res.Observed),
					Diff:      simulation.Select(p.Diff, res.Observed),
					Requested: p.Requested,
					Succeeded: p.Succeeded,
				}
			}
			if jsonOut {
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Network: %s (%d nodes)\n", out.Network, net.Matrices.Size())
			fmt.Fprintf(w, "Seed: %d  Baseline repetitions: %d/%d\n", out.Seed, res.Batch.Succeeded(), res.Batch.Requested)
			if out.RunID != "" {
				fmt.Fprintf(w, "Run: %s\n", out.RunID)
			}

			width := 4
			for _, n := range out.Nodes {
				width = max(width, len(n))
			}
			for _, row := range out.Rows {
				fmt.Fprintf(w, "\nStimulus %s (%d/%d runs)\n", strings.Join(row.Stimuli, "+"), row.Succeeded, row.Requested)
				fmt.Fprintf(w, "  %-*s  %10s  %10s  %10s\n", width, "NODE", "BASELINE", "FINAL", "DIFF")
				for k, n := range out.Nodes {
					fmt.Fprintf(w, "  %-*s  %10.4f  %10.4f  %+10.4f\n", width, n, out.Baseline[k], row.Final[k], row.Diff[k])
				}
			}
			return nil
		},
	}

	addRunFlags(cmd)
	cmd.Flags().StringSlice("stimuli", nil, "Nodes to clamp at 1")
	cmd.Flags().String("mode", "", "independent (one row per stimulus) or joint")
	cmd.Flags().Int("repetitions", 0, "Perturbed runs averaged per row (default from config)")
	cmd.Flags().Int("baseline-repetitions", 0, "Baseline repetitions (default from config)")
	cmd.Flags().String("export", "", "Write baseline and diff rows to an Arrow IPC file")

	return cmd
}
