package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nvandessel/mendoza/internal/config"
	"github.com/nvandessel/mendoza/internal/experiment"
	"github.com/nvandessel/mendoza/internal/logging"
	"github.com/nvandessel/mendoza/internal/store"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mendoza",
		Short: "Mendoza - steady states of gene regulatory networks",
		Long: `mendoza compiles a node table of activators and inhibitors into
regulatory matrices and integrates the continuous network dynamics.

It samples the steady state from random initial conditions, clamps
stimulus nodes to measure how the steady state shifts, and keeps a
history of finished runs.`,
		SilenceUsage: true,
	}

	addPersistentFlags(rootCmd)

	rootCmd.AddCommand(
		newVersionCmd(),
		newMatricesCmd(),
		newSimulateCmd(),
		newPerturbCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// addPersistentFlags registers the global flags every subcommand reads.
func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	cmd.PersistentFlags().String("config", "", "Config file (default ~/.mendoza/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace")
}

// loadConfig loads the configuration named by --config and applies
// --log-level. A positional network argument replaces network.path.
func loadConfig(cmd *cobra.Command, args []string) (*config.ExperimentConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if !logging.ValidLevel(level) {
			return nil, &config.ConfigurationError{Field: "logging.level", Reason: fmt.Sprintf("unknown level %q", level)}
		}
		cfg.Logging.Level = level
	}
	if len(args) > 0 {
		cfg.Network.Path = args[0]
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.ExperimentConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// openStore opens the run store, or returns nil when persistence is
// disabled.
func openStore(cfg *config.ExperimentConfig) (*store.RunStore, error) {
	if cfg.Store.Disabled {
		return nil, nil
	}
	dir, err := cfg.StoreDir()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return s, nil
}

// openTrace returns the run trace for debug and trace levels, else nil.
func openTrace(cfg *config.ExperimentConfig) *logging.TraceLogger {
	dir, err := cfg.TraceDir()
	if err != nil {
		return nil
	}
	return logging.NewTraceLogger(dir, cfg.Logging.Level)
}

// runOptions builds the options for a one-shot experiment. Metrics are left
// nil: only mcp-server exposes a registry, so a CLI run has nowhere to
// report them.
func runOptions(logger *slog.Logger, trace *logging.TraceLogger) experiment.Options {
	return experiment.Options{Logger: logger, Trace: trace}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
