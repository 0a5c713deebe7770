package main

import (
	"fmt"

	"github.com/nvandessel/mendoza/internal/config"
	"github.com/nvandessel/mendoza/internal/experiment"
	"github.com/nvandessel/mendoza/internal/export"
	"github.com/nvandessel/mendoza/internal/simulation"
	"github.com/spf13/cobra"
)

type simulateOutput struct {
	RunID     string    `json:"run_id,omitempty"`
	Network   string    `json:"network"`
	Seed      uint64    `json:"seed"`
	Requested int       `json:"requested"`
	Succeeded int       `json:"succeeded"`
	Warnings  []string  `json:"warnings,omitempty"`
	Nodes     []string  `json:"nodes"`
	Mean      []float64 `json:"mean"`
	Median    []float64 `json:"median"`
	Std       []float64 `json:"std"`
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate [network]",
		Short: "Sample the unperturbed steady state",
		Long: `Integrate the network from uniformly random initial states and
report the mean, median and standard deviation of the final states.

Runs are stored in ~/.mendoza/runs.db unless --no-save is given or the
store is disabled in the config.

Examples:
  mendoza simulate network.csv
  mendoza simulate network.csv --repetitions 500 --seed 42
  mendoza simulate --observed TNF,NFKB --export samples.arrow`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			exportPath, _ := cmd.Flags().GetString("export")
			trajectoryPath, _ := cmd.Flags().GetString("export-trajectory")

			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			if cmd.Flags().Changed("repetitions") {
				cfg.Simulation.Repetitions, _ = cmd.Flags().GetInt("repetitions")
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

			res, err := experiment.Simulate(ctx, cfg, net, runOptions(logger, trace))
			if err != nil {
				return err
			}
			warnings := res.Warnings()
			for _, w := range warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}

			names := net.Matrices.Names()
			if exportPath != "" {
				if err := export.WriteFile(exportPath, export.Samples(names, res.Batch.Samples)); err != nil {
					return fmt.Errorf("failed to export samples: %w", err)
				}
			}
			if trajectoryPath != "" {
				sol := res.Batch.Trajectory
				if err := export.WriteFile(trajectoryPath, export.Trajectory(names, sol.T, sol.X)); err != nil {
					return fmt.Errorf("failed to export trajectory: %w", err)
				}
			}

			runID, err := saveResult(cmd, cfg, res)
			if err != nil {
				return err
			}

			out := simulateOutput{
				RunID:     runID,
				Network:   net.Source,
				Seed:      res.Seed,
				Requested: res.Batch.Requested,
				Succeeded: res.Batch.Succeeded(),
				Warnings:  warnings,
				Nodes:     experiment.NodeNames(net.Matrices, res.Observed),
				Mean:      simulation.Select(res.Baseline.Mean, res.Observed),
				Median:    simulation.Select(res.Baseline.Median, res.Observed),
				Std:       simulation.Select(res.Baseline.Std, res.Observed),
			}
			if jsonOut {
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Network: %s (%d nodes)\n", out.Network, net.Matrices.Size())
			fmt.Fprintf(w, "Seed: %d  Repetitions: %d/%d\n", out.Seed, out.Succeeded, out.Requested)
			if out.RunID != "" {
				fmt.Fprintf(w, "Run: %s\n", out.RunID)
			}
			fmt.Fprintln(w)

			width := 4
			for _, n := range out.Nodes {
				width = max(width, len(n))
			}
			fmt.Fprintf(w, "  %-*s  %10s  %10s  %10s\n", width, "NODE", "MEAN", "MEDIAN", "STD")
			for k, n := range out.Nodes {
				fmt.Fprintf(w, "  %-*s  %10.4f  %10.4f  %10.4f\n", width, n, out.Mean[k], out.Median[k], out.Std[k])
			}
			return nil
		},
	}

	addRunFlags(cmd)
	cmd.Flags().Int("repetitions", 0, "Random initial states to integrate (default from config)")
	cmd.Flags().String("export", "", "Write the final-state samples to an Arrow IPC file")
	cmd.Flags().String("export-trajectory", "", "Write the last trajectory to an Arrow IPC file")

	return cmd
}

// addRunFlags registers the flags shared by simulate and perturb.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("t-end", 0, "Integration horizon (default from config)")
	cmd.Flags().Uint64("seed", 0, "Seed for reproducible runs; 0 draws a fresh one")
	cmd.Flags().Int("workers", 0, "Concurrent integrations; 0 uses every CPU")
	cmd.Flags().StringSlice("observed", nil, "Report only these nodes")
	cmd.Flags().Bool("no-save", false, "Do not store the run")
}

// applyRunFlags copies explicitly set run flags over cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.ExperimentConfig) {
	flags := cmd.Flags()
	if flags.Changed("t-end") {
		cfg.Simulation.TEnd, _ = flags.GetFloat64("t-end")
	}
	if flags.Changed("seed") {
		cfg.Simulation.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("workers") {
		cfg.Simulation.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("observed") {
		cfg.Network.Observed, _ = flags.GetStringSlice("observed")
	}
}

// saveResult stores res unless --no-save is set or the store is disabled.
// It returns the new run ID, or "" when nothing was stored.
func saveResult(cmd *cobra.Command, cfg *config.ExperimentConfig, res *experiment.Result) (string, error) {
	if noSave, _ := cmd.Flags().GetBool("no-save"); noSave {
		return "", nil
	}
	s, err := openStore(cfg)
	if err != nil || s == nil {
		return "", err
	}
	defer s.Close()

	id, err := experiment.Save(cmd.Context(), s, res)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	return id, nil
}
