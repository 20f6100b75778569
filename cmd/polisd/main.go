// Command polisd runs the multiplayer political simulation server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sashko1391/they-voted-for-this/internal/advisors"
	"github.com/sashko1391/they-voted-for-this/internal/api"
	"github.com/sashko1391/they-voted-for-this/internal/config"
	"github.com/sashko1391/they-voted-for-this/internal/game"
	"github.com/sashko1391/they-voted-for-this/internal/persistence"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("POLIS_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Advisor transport ─────────────────────────────────────────────
	var transport advisors.Transport
	if client := advisors.NewClient(cfg.APIKey); client != nil {
		transport = client
		slog.Info("advisor client enabled")
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set — advisor stages disabled, ticks run without AI evaluation")
	}

	// ── Games ─────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := game.NewRegistry(ctx, store, transport, cfg.TickIntervalHours, cfg.MaxPlayers)
	if err := registry.Restore(); err != nil {
		slog.Error("failed to restore games", "error", err)
		os.Exit(1)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	server := &api.Server{Registry: registry}
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Handler(),
	}

	go func() {
		slog.Info("HTTP API starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// ── Shutdown ──────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	registry.StopAll()
	httpServer.Shutdown(context.Background())
	slog.Info("server stopped")
}
