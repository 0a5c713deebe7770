package main

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/nvandessel/mendoza/internal/config"
	"github.com/nvandessel/mendoza/internal/mcp"
	"github.com/nvandessel/mendoza/internal/metrics"
	"github.com/nvandessel/mendoza/internal/pathutil"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve mendoza tools over the Model Context Protocol",
		Long: `Run an MCP server on stdio exposing the matrices, simulate, perturb
and runs tools, plus stored runs as mendoza://runs/{id} resources.

Network paths named in tool calls must lie under the working directory,
~/.mendoza, the configured network's directory or an --allow-dir.
Tool calls are recorded in ~/.mendoza/audit.jsonl. With --metrics-addr,
Prometheus metrics are served at /metrics on that address.

Examples:
  mendoza mcp-server
  mendoza mcp-server --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			allowDirs, _ := cmd.Flags().GetStringSlice("allow-dir")

			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr only.
			logger := newLogger(cmd, cfg)

			if cfg.Network.Path != "" {
				allowDirs = append(allowDirs, filepath.Dir(cfg.Network.Path))
			}
			roots, err := pathutil.DefaultRoots(allowDirs...)
			if err != nil {
				return err
			}

			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			auditDir, err := config.HomeDir()
			if err != nil {
				logger.Warn("audit log disabled", "error", err)
				auditDir = ""
			}

			reg := metrics.DefaultRegistry()
			trace := openTrace(cfg)
			server, err := mcp.NewServer(&mcp.Config{
				Name:        "mendoza",
				Version:     version,
				Experiment:  cfg,
				Store:       s,
				Logger:      logger,
				Metrics:     reg,
				Trace:       trace,
				AuditDir:    auditDir,
				AllowedDirs: roots,
			})
			if err != nil {
				if s != nil {
					s.Close()
				}
				trace.Close()
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", reg.Handler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server stopped", "addr", metricsAddr, "error", err)
					}
				}()
				defer srv.Close()
				logger.Info("serving metrics", "addr", metricsAddr)
			}

			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringSlice("allow-dir", nil, "Extra directories tool calls may read networks from")

	return cmd
}
