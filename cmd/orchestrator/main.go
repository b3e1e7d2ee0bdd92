// Command orchestrator is the main entry point for the virtual host
// decision core: it loads configuration, wires the Brain, the Sale Flow
// State Machine, the Event Log and the message bus into an [app.App], and
// runs until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vhoststream/core/internal/app"
	"github.com/vhoststream/core/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "orchestrator: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		}
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("orchestrator starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"bus_url", cfg.Bus.URL,
	)
	printStartupSummary(cfg)

	// ── Application wiring ───────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, notifyConfigChanged)
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("orchestrator ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
	}

	// ── Graceful shutdown ────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// notifyConfigChanged logs a change picked up by the polling config watcher.
// The Brain's thresholds are intentionally not hot-swapped into the running
// process: Brain.Decide has no lock of its own and relies on the
// orchestrator's single-threaded hot path, so applying a reloaded threshold
// requires a restart.
func notifyConfigChanged(old, updated *config.Config) {
	slog.Warn("config file changed on disk — restart the process to apply it",
		"min_speak_interval_old", old.Brain.MinSpeakInterval,
		"min_speak_interval_new", updated.Brain.MinSpeakInterval,
	)
}

// ── Startup summary ─────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║   vhost-core — startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  bus url         : %-19s ║\n", truncate(cfg.Bus.URL, 19))
	fmt.Printf("║  prefetch        : %-19d ║\n", cfg.Bus.PrefetchOrDefault())
	fmt.Printf("║  sale flow       : %-19t ║\n", cfg.Flow.Enabled)
	fmt.Printf("║  auto transition : %-19t ║\n", cfg.Flow.AutoTransition)
	fmt.Printf("║  metrics export  : %-19s ║\n", cfg.Metrics.ExportIntervalOrDefault())
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  listen addr     : %-19s ║\n", truncate(cfg.Server.ListenAddr, 19))
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// ── Logger ───────────────────────────────────────────────────────────────────

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
