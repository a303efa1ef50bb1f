// Package mcp provides an MCP (Model Context Protocol) server exposing
// tbc's spike-train computations as tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/tbc/internal/config"
	"github.com/nvandessel/tbc/internal/estimate"
	"github.com/nvandessel/tbc/internal/nullstats"
	"github.com/nvandessel/tbc/internal/ratelimit"
	"github.com/nvandessel/tbc/internal/spkd"
)

// Server wraps the MCP SDK server and the computation engines behind it.
type Server struct {
	server       *sdk.Server
	root         string
	defaults     config.ComputeConfig
	engine       *spkd.Engine
	aggregator   *nullstats.Aggregator
	estimator    *estimate.Estimator
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "tbc")
	Version string // Server version
	Root    string // Data directory; file arguments must stay inside it

	// Compute supplies defaults for arguments a tool call omits.
	Compute config.ComputeConfig

	// ShapeParams for tbc_estimate. Required.
	ShapeParams *estimate.ShapeParams

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with tbc tools registered.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("server root is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.ShapeParams == nil {
		return nil, fmt.Errorf("tbc_estimate needs shape parameters: %w", estimate.ErrShapeParamsNotFound)
	}
	estimator, err := estimate.NewEstimator(cfg.ShapeParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create estimator: %w", err)
	}

	engine := spkd.NewEngine(cfg.Compute.Workers, logger)

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		root:         cfg.Root,
		defaults:     cfg.Compute,
		engine:       engine,
		aggregator:   nullstats.NewAggregator(engine),
		estimator:    estimator,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logger,
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()

	return s, nil
}

// Run serves over stdio until the client disconnects, ctx is cancelled,
// or the process receives an interrupt.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	s.logger.Info("mcp server starting", "root", s.root, "workers", s.engine.Workers())
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.auditLogger.Close()
	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
