// Command backend is the main entrypoint for the snitchvis indexing API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Runs the startup backfill of registered snitch channels, drains any
//     messages deferred during the scan, then goes live.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics,
//     event queries, renders, exports, and admin channel management.
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

	"github.com/joho/godotenv"

	"github.com/onnwee/snitchvis/backend/config"
	"github.com/onnwee/snitchvis/backend/db"
	"github.com/onnwee/snitchvis/backend/indexer"
	"github.com/onnwee/snitchvis/backend/render"
	"github.com/onnwee/snitchvis/backend/server"
	"github.com/onnwee/snitchvis/backend/telemetry"
	"github.com/onnwee/snitchvis/backend/transport"
	"github.com/onnwee/snitchvis/backend/usage"
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
	shutdown, err := telemetry.InitTracing("snitchvis", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations: versioned migrations (golang-migrate) first,
	// with the embedded SQL schema as a fallback for deployments that predate
	// the schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed", slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Chat transport. The message source and role resolver are narrow
	// interfaces over the gateway sidecar; new messages reach the
	// coordinator through the gateway's pushes to POST /ingest.
	source, roles, err := transport.Connect(ctx)
	if err != nil {
		slog.Error("transport connect failed", slog.Any("err", err))
		os.Exit(1)
	}

	store := &indexer.SQLStore{DB: database}
	ix := &indexer.Indexer{Source: source, Store: store, PageSize: cfg.HistoryPageSize}
	coord := indexer.NewCoordinator(ix)

	// Startup backfill + drain in the background; messages arriving through
	// HandleMessage queue until the coordinator goes live.
	go func() {
		if err := coord.Run(ctx, cfg.BackfillConcurrency); err != nil && ctx.Err() == nil {
			slog.Error("indexing coordinator failed", slog.Any("err", err))
		}
	}()

	svc := &render.Service{
		DB:       database,
		Roles:    roles,
		Renderer: &render.CommandRenderer{Command: cfg.RendererCommand, DataDir: cfg.DataDir},
		Throttle: &usage.Throttle{
			Store:      &usage.SQLStore{DB: database},
			PerRequest: cfg.PixelLimitRequest,
			PerDay:     cfg.PixelLimitDay,
			Window:     cfg.UsageWindow,
		},
		DefaultWindow: cfg.DefaultWindow,
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
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

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, addr, *cfg, coord, ix, svc, roles); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
