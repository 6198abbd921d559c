package mcp

import (
	"context"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rajithv/CausalLoop/internal/layout"
	"github.com/rajithv/CausalLoop/internal/logging"
	"github.com/rajithv/CausalLoop/internal/metrics"
	"github.com/rajithv/CausalLoop/internal/pathutil"
	"github.com/rajithv/CausalLoop/internal/propagation"
	"github.com/rajithv/CausalLoop/internal/ratelimit"
)

// Server wraps the MCP SDK server and provides the causal-loop tools.
type Server struct {
	server       *sdk.Server
	name         string
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	metrics      *metrics.Registry
	logger       *slog.Logger

	simulation propagation.Config
	layout     layout.Config
	layoutSeed uint64

	allowedDirs []string
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "causalloop")
	Version string // Server version

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	// Simulation and Layout are the defaults tools start from.
	Simulation propagation.Config
	Layout     layout.Config

	// LayoutSeed seeds layouts when a tool call gives no seed. 0 seeds from
	// the clock.
	LayoutSeed uint64

	// AllowedDirs bounds the files tools may read through the file source.
	// Empty means the working directory.
	AllowedDirs []string

	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// NewServer creates a new MCP server with the causal-loop tools and
// example resources registered.
func NewServer(cfg *Config) (*Server, error) {
	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		name:         cfg.Name,
		toolLimiters: ratelimit.NewToolLimiters(),
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		simulation:   cfg.Simulation,
		layout:       cfg.Layout,
		layoutSeed:   cfg.LayoutSeed,
		allowedDirs:  cfg.AllowedDirs,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.simulation == (propagation.Config{}) {
		s.simulation = propagation.DefaultConfig()
	}
	if s.layout.Iterations == 0 {
		s.layout = layout.DefaultConfig()
	}
	if len(s.allowedDirs) == 0 {
		dirs, err := pathutil.DefaultAllowedDirs()
		if err != nil {
			return nil, err
		}
		s.allowedDirs = dirs
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
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

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server listening on stdio", "name", s.name)
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.auditLogger.Close()

	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
