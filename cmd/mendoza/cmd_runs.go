package main

import (
	"fmt"
	"strings"

	"github.com/nvandessel/mendoza/internal/config"
	"github.com/nvandessel/mendoza/internal/export"
	"github.com/nvandessel/mendoza/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse the run history",
		Long: `List, inspect, export and delete stored runs.

Runs are addressed by ID or by any unique ID prefix.

Examples:
  mendoza runs list
  mendoza runs show 3f2a
  mendoza runs export 3f2a samples.arrow
  mendoza runs delete 3f2a`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsExportCmd(),
		newRunsDeleteCmd(),
	)

	return cmd
}

// withStore opens the configured run store for fn and closes it afterwards.
func withStore(cmd *cobra.Command, fn func(*store.RunStore) error) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if cfg.Store.Disabled {
		return &config.ConfigurationError{Field: "store.disabled", Reason: "run history is disabled"}
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			return withStore(cmd, func(s *store.RunStore) error {
				runs, err := s.ListRuns(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("failed to list runs: %w", err)
				}

				if jsonOut {
					if runs == nil {
						runs = []store.RunSummary{}
					}
					return writeJSON(cmd, map[string]any{
						"runs":  runs,
						"count": len(runs),
					})
				}

				w := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(w, "No runs stored.")
					return nil
				}
				fmt.Fprintf(w, "Runs (%d):\n\n", len(runs))
				for _, r := range runs {
					fmt.Fprintf(w, "  %s  %s  %s\n", shortID(r.ID), r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Network)
					fmt.Fprintf(w, "           %d nodes, %d/%d repetitions, %d perturbations, seed %d\n",
						r.NodeCount, r.Succeeded, r.Requested, r.Perturbations, r.Seed)
				}
				return nil
			})
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs (0 lists all)")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			withSamples, _ := cmd.Flags().GetBool("samples")

			return withStore(cmd, func(s *store.RunStore) error {
				run, err := s.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				if jsonOut {
					if !withSamples {
						run.Samples = nil
					}
					return writeJSON(cmd, run)
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Run: %s\n", run.ID)
				fmt.Fprintf(w, "Created: %s\n", run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				fmt.Fprintf(w, "Network: %s (%d nodes)\n", run.Network, len(run.Nodes))
				fmt.Fprintf(w, "Seed: %d  Repetitions: %d/%d  t: [%g, %g]\n",
					run.Seed, run.Succeeded, run.Requested, run.Params.TStart, run.Params.TEnd)

				width := 4
				for _, n := range run.Nodes {
					width = max(width, len(n))
				}
				fmt.Fprintf(w, "\n  %-*s  %10s  %10s  %10s\n", width, "NODE", "MEAN", "MEDIAN", "STD")
				for i, n := range run.Nodes {
					fmt.Fprintf(w, "  %-*s  %10.4f  %10.4f  %10.4f\n", width, n,
						run.Baseline.Mean[i], run.Baseline.Median[i], run.Baseline.Std[i])
				}

				for _, p := range run.Perturbations {
					fmt.Fprintf(w, "\nStimulus %s (%d/%d runs)\n", strings.Join(p.Stimuli, "+"), p.Succeeded, p.Requested)
					for i, n := range run.Nodes {
						fmt.Fprintf(w, "  %-*s  %+10.4f\n", width, n, p.Diff[i])
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().Bool("samples", false, "Include raw samples in JSON output")

	return cmd
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id> <file>",
		Short: "Write a stored run to an Arrow IPC file",
		Long: `Write the final-state samples of a stored run to an Arrow IPC file,
one row per successful repetition. With --perturbations the baseline
mean and the perturbation diff rows are written instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			perturbations, _ := cmd.Flags().GetBool("perturbations")

			return withStore(cmd, func(s *store.RunStore) error {
				run, err := s.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				f := export.Samples(run.Nodes, run.Samples)
				if perturbations {
					if len(run.Perturbations) == 0 {
						return fmt.Errorf("run %s has no perturbations", shortID(run.ID))
					}
					f = export.Perturbations(run.Nodes, run.Baseline, run.Perturbations)
				}
				if err := export.WriteFile(args[1], f); err != nil {
					return fmt.Errorf("failed to export run: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", f.Len(), args[1])
				return nil
			})
		},
	}

	cmd.Flags().Bool("perturbations", false, "Export baseline and diff rows instead of samples")

	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			return withStore(cmd, func(s *store.RunStore) error {
				run, err := s.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := s.DeleteRun(cmd.Context(), run.ID); err != nil {
					return fmt.Errorf("failed to delete run: %w", err)
				}

				if jsonOut {
					return writeJSON(cmd, map[string]string{"deleted": run.ID})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", run.ID)
				return nil
			})
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
