// Package main provides the HTTP host for vaultwiz: deep links, a state
// websocket and a message endpoint on top of the chat controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/vaultwiz/internal/app"
	"github.com/raphaelgruber/vaultwiz/internal/config"
	"github.com/raphaelgruber/vaultwiz/internal/server"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	vault := flag.String("vault", "", "vault directory (overrides VAULTWIZ_VAULT)")
	addr := flag.String("addr", "", "listen address (overrides VAULTWIZ_SERVER_ADDR)")
	model := flag.String("model", "", "configured model id to select (overrides VAULTWIZ_MODEL)")
	noWatch := flag.Bool("no-watch", false, "do not watch the vault for note changes")
	flag.Parse()

	cfg := config.Load()
	if *vault != "" {
		cfg.VaultDir = *vault
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}
	if *model != "" {
		cfg.ModelID = *model
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	if err := run(cfg, !*noWatch, logger); err != nil {
		slog.Error("server failed", "error", err)
		_ = cleanup()
		os.Exit(1)
	}
}

func run(cfg config.Config, watch bool, logger *slog.Logger) error {
	slog.Info("starting vaultwiz-server", "addr", cfg.ServerAddr, "vault", cfg.VaultDir, "persistence", cfg.Persistence)

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(initCtx, cfg, app.Options{Watch: watch, Logger: logger})
	cancel()
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("failed to close app", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(a, Version, logger)
	return srv.Run(ctx, cfg.ServerAddr)
}
