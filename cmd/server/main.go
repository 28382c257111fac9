package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vibetom/boystats/internal/api"
	"github.com/vibetom/boystats/internal/ask"
	"github.com/vibetom/boystats/internal/cache"
	"github.com/vibetom/boystats/internal/config"
	"github.com/vibetom/boystats/internal/metrics"
	"github.com/vibetom/boystats/internal/riot"
	"github.com/vibetom/boystats/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.BlobStore
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 5*time.Minute)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	deps := api.Deps{
		Datasets: cache.NewManager(st, cfg.MaxBackups),
		Hub:      wsHub,
	}

	// --- Upstreams ---
	rc, err := riot.NewClient(cfg.RiotAPIKey,
		riot.WithRegionURL(cfg.RiotRegionURL),
		riot.WithPlatformURL(cfg.RiotPlatformURL),
		riot.WithRetryPolicy(riot.RetryPolicy{
			MaxAttempts:  cfg.RetryMaxAttempts,
			DefaultAfter: cfg.RetryDefaultAfter,
			MaxAfter:     riot.DefaultRetryPolicy().MaxAfter,
		}),
	)
	switch {
	case errors.Is(err, riot.ErrMissingCredentials):
		slog.Warn("RIOT_API_KEY not set, Riot routes will fail")
	case err != nil:
		slog.Error("riot client setup failed", "err", err)
		os.Exit(1)
	default:
		deps.Upstream = rc
	}

	gc, err := ask.NewClient(cfg.GeminiAPIKey, cfg.Roster.Names(),
		ask.WithModels(cfg.GeminiModels),
		ask.WithMatchWindow(cfg.AskMatchWindow),
	)
	switch {
	case errors.Is(err, ask.ErrMissingCredentials):
		slog.Warn("GEMINI_API_KEY not set, /ask will fail")
	case err != nil:
		slog.Error("gemini client setup failed", "err", err)
		os.Exit(1)
	default:
		deps.Asker = gc
	}

	svc := api.NewService(cfg, deps)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(api.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"boystats"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api/v1", svc.Routes())

	// --- Server ---
	// WriteTimeout sits above the longest route ceiling (refresh).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 130 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("boystats listening",
			"port", cfg.Port,
			"roster", len(cfg.Roster),
			"queues", cfg.Queues,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down boystats...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("boystats stopped")
}
