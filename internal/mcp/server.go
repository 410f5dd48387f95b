package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/orgsim/internal/controls"
	"github.com/nvandessel/orgsim/internal/logging"
	"github.com/nvandessel/orgsim/internal/ratelimit"
	"github.com/nvandessel/orgsim/internal/simulation"
)

// Backend is the running simulation the tools operate on.
// *simulation.Driver satisfies it.
type Backend interface {
	Status(ctx context.Context) (simulation.Status, error)
	ResetStatus(ctx context.Context) (simulation.Status, error)
	Do(ctx context.Context, fn func(*simulation.Session)) error
}

// Server wraps the MCP SDK server and exposes the simulation as tools.
type Server struct {
	server       *sdk.Server
	backend      Backend
	panel        *controls.Panel
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "orgsim")
	Version string // Server version

	Backend Backend
	Panel   *controls.Panel

	// AuditPath is the JSONL audit log; "" disables auditing.
	AuditPath string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with orgsim tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Backend == nil || cfg.Panel == nil {
		return nil, fmt.Errorf("mcp server needs a backend and a control panel")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		backend:      cfg.Backend,
		panel:        cfg.Panel,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logger,
	}
	if cfg.AuditPath != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditPath)
	}

	if err := s.registerTools(); err != nil {
		s.auditLogger.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		s.auditLogger.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
// Signal handling is the caller's.
func (s *Server) Run(ctx context.Context) error {
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.auditLogger.Close()
	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
