package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitmex_orderbook/internal/app"
	"bitmex_orderbook/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	cfg := bootstrap.Config
	infra.PrintBanner(cfg)

	// 4. Health endpoint follows the feed connection
	if cfg.Health.Addr != "" {
		health := infra.NewHealthServer()
		go func() {
			if err := health.ListenAndServe(cfg.Health.Addr); err != nil {
				slog.Error("Health server failed", slog.Any("error", err))
			}
		}()
		go health.Watch(ctx, bootstrap.Worker.Connected, time.Second)
		defer health.Stop()
	}

	slog.InfoContext(ctx, "✨ Recorder running. Press Ctrl+C to exit.")

	// 5. Feed → queue → decoder → stores, until disconnect or signal
	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("❌ Recorder stopped", slog.Any("error", err))
		bootstrap.Close()
		os.Exit(1)
	}

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}
