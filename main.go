// Command trackerbot is the main entrypoint for the scanlation tracker bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Builds the Sheets gateway and joins Twitch chat, feeding status
//     messages through the parse → resolve → write pipeline.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status,
//     /config, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/scanlibre/trackerbot/chat"
	"github.com/scanlibre/trackerbot/config"
	"github.com/scanlibre/trackerbot/db"
	"github.com/scanlibre/trackerbot/parser"
	"github.com/scanlibre/trackerbot/server"
	"github.com/scanlibre/trackerbot/sheets"
	"github.com/scanlibre/trackerbot/telemetry"
	"github.com/scanlibre/trackerbot/tracker"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Error("chat config invalid", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateSheetsReady(); err != nil {
		slog.Error("sheets config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()
	shutdown, err := telemetry.InitTracing("trackerbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; fall back to embedded SQL for deployments
	// that don't ship the migration files.
	slog.Info("running database migrations")
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL", slog.Any("err", err))
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Sheets gateway
	gateway, err := sheets.New(ctx, cfg.SpreadsheetID, cfg.GoogleCredentialsFile)
	if err != nil {
		slog.Error("failed to create sheets gateway", slog.Any("err", err))
		os.Exit(1)
	}

	// Pipeline wiring: the bot is both transport and prompter.
	bot := chat.New(cfg.TwitchChannel, cfg.TwitchBotUsername, cfg.TwitchOAuthToken)
	store := db.NewAliasStore(database)
	resolver := &tracker.Resolver{
		Store:          store,
		Gateway:        gateway,
		Prompter:       bot,
		FuzzyThreshold: cfg.FuzzyThreshold,
		PromptTimeout:  cfg.PromptTimeout,
	}
	orch := &tracker.Orchestrator{
		Grammar:        parser.ForName(cfg.Grammar),
		Resolver:       resolver,
		Gateway:        gateway,
		Prompter:       bot,
		ReplaceTimeout: cfg.ReplacePromptTimeout,
	}
	bot.SetHandler(orch)
	slog.Info("tracker pipeline ready",
		slog.String("grammar", cfg.Grammar),
		slog.String("channel", cfg.TwitchChannel),
		slog.String("spreadsheet", cfg.SpreadsheetID))

	// HTTP sidecar (health/status/metrics)
	go func() {
		if err := server.Start(ctx, database, gateway, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Chat loop blocks until shutdown.
	if err := bot.Run(ctx); err != nil {
		slog.Error("twitch chat connect error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}
