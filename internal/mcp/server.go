// Package mcp exposes the Blender / Unreal bridge to AI agents as Model
// Context Protocol tools.
package mcp

import (
	"context"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/amarbel-llc/mcpbridge/internal/assets"
	"github.com/amarbel-llc/mcpbridge/internal/config"
)

const ServerName = "mcpbridge"

type Server struct {
	server      *sdk.Server
	manager     *assets.Manager
	manifest    []config.Asset
	concurrency int
	logger      *slog.Logger
}

type Option func(*Server)

// WithManifest sets the assets load_assets imports when called without a list.
func WithManifest(m []config.Asset) Option {
	return func(s *Server) {
		s.manifest = m
	}
}

func WithConcurrency(n int) Option {
	return func(s *Server) {
		s.concurrency = n
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func New(manager *assets.Manager, version string, opts ...Option) *Server {
	s := &Server{
		manager:     manager,
		concurrency: config.DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = sdk.NewServer(&sdk.Implementation{Name: ServerName, Version: version}, nil)
	s.registerTools()
	return s
}

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, &sdk.StdioTransport{})
}

func (s *Server) Serve(ctx context.Context, transport sdk.Transport) error {
	s.logger.Info("MCP server starting", "name", ServerName)
	err := s.server.Run(ctx, transport)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
