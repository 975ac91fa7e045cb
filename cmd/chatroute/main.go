// Command chatroute is the chat command router daemon.
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

	"github.com/MrWong99/chatroute/internal/app"
	"github.com/MrWong99/chatroute/internal/config"
	"github.com/MrWong99/chatroute/internal/observe"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watchInterval := flag.Duration("watch-interval", 5*time.Second, "how often the config file is checked for changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "chatroute: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "chatroute: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("chatroute starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	providers, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to init telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(providers.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(providers.MetricsHandler()),
		app.WithVersion(version),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			level.Set(diff.NewLogLevel.Level())
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if err := application.ApplyConfig(ctx, diff); err != nil {
			slog.Warn("config change not fully applied", "err", err)
		}
	}, config.WithInterval(*watchInterval))
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}
	go func() { _ = watcher.Run(ctx) }()

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        chatroute: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	if cfg.Discord.Token != "" {
		printRow("Discord", "connected")
	} else {
		printRow("Discord", "(disabled)")
	}
	printRow("Routes", fmt.Sprint(len(cfg.Routes)))
	printRow("Operators seed", fmt.Sprint(len(cfg.Discord.EnvAdminIDs)))
	if cfg.ACL.PostgresDSN != "" {
		printRow("Operators store", "postgres")
	} else {
		printRow("Operators store", "memory")
	}
	mismatch := cfg.Dispatch.BotNameMismatch
	if mismatch == "" {
		mismatch = config.MismatchAbort
	}
	printRow("Bot-name policy", string(mismatch))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	if cfg.ChatGateway.Enabled {
		path := cfg.ChatGateway.Path
		if path == "" {
			path = "/chat"
		}
		printRow("Chat gateway", path)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(key, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", key, value)
}
