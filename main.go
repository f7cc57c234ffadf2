// Command backend is the main entrypoint for the livechat-tender API and
// background workers. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the task workers that run live chat polling sessions, plus the
//     OAuth token refresher for YouTube credentials.
//   - Exposes a minimal HTTP server with /join, /healthz, /status, /metrics
//     and the OAuth endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/joho/godotenv"
	"github.com/onnwee/livechat-tender/backend/bot"
	"github.com/onnwee/livechat-tender/backend/config"
	"github.com/onnwee/livechat-tender/backend/db"
	"github.com/onnwee/livechat-tender/backend/oauth"
	"github.com/onnwee/livechat-tender/backend/server"
	"github.com/onnwee/livechat-tender/backend/tasks"
	"github.com/onnwee/livechat-tender/backend/telemetry"
	"github.com/onnwee/livechat-tender/backend/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")

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
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("livechat-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

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

	// Run database migrations using dual-system approach:
	// 1. Primary: versioned migrations (golang-migrate) from db/migrations/
	// 2. Fallback: embedded SQL (db.Migrate) for backward compatibility
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to legacy embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("legacy embedded SQL migration completed successfully",
			slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed successfully",
			slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.ValidateOAuthReady(); err != nil {
		slog.Warn("youtube oauth not fully configured; /join will be unavailable until a channel authorizes", slog.Any("err", err))
	}

	ytsvc := youtubeapi.New(cfg, &db.TokenStoreAdapter{DB: database})
	queue := &tasks.Queue{DB: database}

	// Each claimed task gets its own runner bound to the task's channel
	// credentials. A channel without a stored token fails the task, not the
	// worker.
	newRunner := func(rctx context.Context, channelID string) (*bot.Runner, error) {
		client, err := ytsvc.Client(rctx, channelID)
		if err != nil {
			return nil, err
		}
		kv := &db.KVStore{DB: database}
		return &bot.Runner{
			Feed:        &youtubeapi.LiveChatClient{Service: client},
			Dedup:       &bot.Dedup{KV: kv},
			Cursors:     &bot.Cursors{KV: kv},
			Scheduler:   queue,
			PresenceTTL: cfg.PresenceTTL,
		}, nil
	}

	slog.Info("starting task workers", slog.Int("worker_count", cfg.TaskWorkers))
	for i := 0; i < cfg.TaskWorkers; i++ {
		worker := &tasks.Worker{
			Queue:        queue,
			NewRunner:    newRunner,
			Deadline:     cfg.TaskDeadline,
			PollInterval: cfg.TaskPollInterval,
		}
		go worker.StartWorker(ctx)
	}

	// Centralized OAuth token refresher for stored YouTube credentials
	oauth.StartRefresher(ctx, database, 10*time.Minute, 20*time.Minute, func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		if cfg.YTClientID == "" {
			return "", "", time.Time{}, "", context.Canceled
		}
		oc := &oauth2.Config{ClientID: cfg.YTClientID, ClientSecret: cfg.YTClientSecret, Endpoint: google.Endpoint, RedirectURL: cfg.YTRedirectURI}
		newTok, err := oc.TokenSource(rctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, "", nil
	})

	// Periodic sweep of expired kv rows (presence flags, stale cursors)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := db.SweepExpiredKV(ctx, database); err != nil {
					slog.Warn("kv sweep failed", slog.Any("err", err))
				} else if n > 0 {
					slog.Debug("kv sweep removed expired rows", slog.Int64("rows", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (join/oauth/health/status/metrics)
	go func() {
		if err := server.Start(ctx, database, ytsvc, queue, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
