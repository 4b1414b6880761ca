package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cedarridge/idm-trainer/internal/content"
	"github.com/cedarridge/idm-trainer/internal/curriculum"
	"github.com/cedarridge/idm-trainer/internal/platform/cache"
	"github.com/cedarridge/idm-trainer/internal/platform/config"
	"github.com/cedarridge/idm-trainer/internal/platform/database"
	"github.com/cedarridge/idm-trainer/internal/progress"
	"github.com/cedarridge/idm-trainer/internal/server"
	"github.com/cedarridge/idm-trainer/internal/variant"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	setupLogger(cfg.Log)

	library, err := content.Load(cfg.Content.Path)
	if err != nil {
		return fmt.Errorf("loading content: %w", err)
	}
	findings := content.Validate(library.Scenarios, library.Courses, library.Characters)
	if err := content.Enforce(findings, cfg.StrictContent()); err != nil {
		return fmt.Errorf("content validation: %w", err)
	}

	graph := curriculum.NewGraph(library.Courses, library.Scenarios)

	baseline, err := loadBaseline(cfg.Content.BaselinePath)
	if err != nil {
		return fmt.Errorf("loading baseline dataset: %w", err)
	}
	resolver := variant.NewResolver(baseline, library)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, checks, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	handler, err := server.NewHandler(store)
	if err != nil {
		return fmt.Errorf("building handler: %w", err)
	}
	report := server.NewReportHandler(store, library)
	catalog := server.NewCatalogHandler(library)

	var remote func(string) *progress.RemoteClient
	if cfg.Progress.RemoteBaseURL != "" {
		baseURL := cfg.Progress.RemoteBaseURL
		remote = func(userID string) *progress.RemoteClient {
			return progress.NewRemoteClient(baseURL, userID)
		}
	}
	sessions := server.NewSessionManager(server.SessionConfig{
		Library:  library,
		Graph:    graph,
		Resolver: resolver,
		StateDir: cfg.Progress.StateDir,
		Remote:   remote,
	})
	defer sessions.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	handler.Register(mux)
	report.Register(mux)
	catalog.Register(mux)
	sessions.Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "scenarios", len(library.Scenarios))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// healthCheck is one readiness probe over a backing connection.
type healthCheck func(context.Context) error

// buildStore wires the persistence stack: Postgres when configured, with an
// optional cache layer, falling back to memory for local development. The
// returned checks feed the readiness endpoint.
func buildStore(ctx context.Context, cfg *config.Config) (server.ProgressStore, []healthCheck, func(), error) {
	cleanup := func() {}

	if cfg.Database.URL == "" {
		slog.Warn("no database configured, using in-memory store")
		return server.NewMemoryStore(), nil, cleanup, nil
	}

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	checks := []healthCheck{db.HealthCheck}

	var store server.ProgressStore
	store, err = server.NewPostgresStore(ctx, db.Pool)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("initializing store: %w", err)
	}
	cleanup = db.Close

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("connecting to cache: %w", err)
		}
		store = server.NewCachedStore(store, c.Client)
		checks = append(checks, c.HealthCheck)
		dbClose := cleanup
		cleanup = func() {
			c.Close()
			dbClose()
		}
	}

	return store, checks, cleanup, nil
}

// loadBaseline reads the optional baseline display dataset.
func loadBaseline(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var baseline map[string]any
	if err := json.Unmarshal(data, &baseline); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return baseline, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks []healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for _, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("readiness check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
