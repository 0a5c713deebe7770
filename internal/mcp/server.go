package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/mendoza/internal/config"
	"github.com/nvandessel/mendoza/internal/logging"
	"github.com/nvandessel/mendoza/internal/metrics"
	"github.com/nvandessel/mendoza/internal/pathutil"
	"github.com/nvandessel/mendoza/internal/ratelimit"
	"github.com/nvandessel/mendoza/internal/store"
)

// Server wraps the MCP SDK server and provides the mendoza tools.
type Server struct {
	server  *sdk.Server
	config  *config.ExperimentConfig
	store   *store.RunStore
	logger  *slog.Logger
	metrics *metrics.Registry
	trace   *logging.TraceLogger
	audit   *AuditLogger
	limits  ratelimit.Limits
	roots   pathutil.Roots
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "mendoza")
	Version string // Server version

	// Experiment supplies the defaults every tool call starts from. Nil
	// uses config.Default().
	Experiment *config.ExperimentConfig

	// Store persists runs saved by tool calls. Nil disables saving and the
	// run history tool.
	Store *store.RunStore

	Logger  *slog.Logger
	Metrics *metrics.Registry
	Trace   *logging.TraceLogger

	// AuditDir receives audit.jsonl. Empty disables the audit log.
	AuditDir string

	// AllowedDirs confines network paths named in tool calls. Empty allows
	// any path.
	AllowedDirs []string
}

// NewServer creates a new MCP server with the mendoza tools registered.
// The server takes ownership of cfg.Store and cfg.Trace and closes them in
// Close.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config is required")
	}
	exp := cfg.Experiment
	if exp == nil {
		exp = config.Default()
	}
	if err := exp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment config: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:  mcpServer,
		config:  exp,
		store:   cfg.Store,
		logger:  logging.OrDiscard(cfg.Logger),
		metrics: cfg.Metrics,
		trace:   cfg.Trace,
		limits:  ratelimit.NewToolLimits(),
		roots:   pathutil.Roots(cfg.AllowedDirs),
	}
	if cfg.AuditDir != "" {
		s.audit = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server started", "tools", len(s.limits))
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if closeErr := s.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close releases the store, trace log and audit log.
func (s *Server) Close() error {
	var firstErr error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			firstErr = err
		}
		s.store = nil
	}
	s.trace.Close()
	if err := s.audit.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
