package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/apresai/docchat/internal/completion"
	"github.com/apresai/docchat/internal/config"
	"github.com/apresai/docchat/internal/ingest"
	"github.com/apresai/docchat/internal/session"
)

// Server is the MCP server exposing one in-memory document session.
type Server struct {
	cfg      *config.Config
	mcp      *server.MCPServer
	handlers *Handlers
	log      *slog.Logger
}

// New creates and configures the MCP server.
func New(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) (*Server, error) {
	if err := cfg.LoadSecrets(ctx, logger); err != nil {
		logger.Warn("Failed to load secrets from Secrets Manager, falling back to env vars",
			"error", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	completer, err := completion.New(ctx, cfg.Model, cfg.Keys())
	if err != nil {
		return nil, fmt.Errorf("create completer: %w", err)
	}
	extractor := ingest.NewPDFExtractor(cfg.MinTextLength, nil)
	ctrl := session.NewController(session.New(), extractor, completer, logger)

	return newServer(cfg, version, NewHandlers(ctrl, logger), logger), nil
}

func newServer(cfg *config.Config, version string, handlers *Handlers, logger *slog.Logger) *Server {
	mcpServer := server.NewMCPServer(
		"docchat",
		version,
		server.WithToolCapabilities(true),
	)

	tools := ToolDefs()
	mcpServer.AddTool(tools[0], handlers.HandleUploadDocument)
	mcpServer.AddTool(tools[1], handlers.HandleAskDocument)
	mcpServer.AddTool(tools[2], handlers.HandleGetTranscript)
	mcpServer.AddTool(tools[3], handlers.HandleResetSession)

	return &Server{
		cfg:      cfg,
		mcp:      mcpServer,
		handlers: handlers,
		log:      logger,
	}
}

// Start serves over stdio or streamable HTTP depending on the configured
// transport, and returns once ctx is cancelled or the transport fails.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.MCPTransport == config.TransportHTTP {
		addr := fmt.Sprintf(":%d", s.cfg.MCPPort)
		s.log.Info("Starting MCP server", "transport", "http", "addr", addr, "model", s.cfg.Model)
		httpServer := server.NewStreamableHTTPServer(s.mcp)

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				s.log.Error("HTTP shutdown error", "error", err)
			}
		}()

		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	s.log.Info("Starting MCP server", "transport", "stdio", "model", s.cfg.Model)
	stdio := server.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
