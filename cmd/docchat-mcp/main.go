package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/apresai/docchat/internal/config"
	"github.com/apresai/docchat/internal/mcpserver"
	"github.com/apresai/docchat/internal/observability"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.InitLogger(os.Stderr, slog.LevelInfo).Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol on the stdio transport.
	logger := observability.InitLogger(os.Stderr, cfg.LogLevel)
	logger.Info("docchat MCP server starting...", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := observability.InitTracer(ctx, "docchat-mcp", version)
	if err != nil {
		logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("Tracer shutdown error", "error", err)
		}
	}()

	srv, err := mcpserver.New(ctx, cfg, version, logger)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Start(ctx); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
