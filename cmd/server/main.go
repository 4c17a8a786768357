package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/synthgen/internal/config"
	"github.com/JonMunkholm/synthgen/internal/core"
	"github.com/JonMunkholm/synthgen/internal/generator"
	"github.com/JonMunkholm/synthgen/internal/history"
	"github.com/JonMunkholm/synthgen/internal/logging"
	"github.com/JonMunkholm/synthgen/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"generator_url", cfg.Generator.BaseURL,
		"generator_max_concurrent", cfg.Generator.MaxConcurrent,
		"history_db", cfg.Database.Enabled(),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	registry, err := loadRegistry(cfg.Generator.ModelsFile)
	if err != nil {
		slog.Error("failed to load model roster", "error", err)
		os.Exit(1)
	}
	slog.Info("models registered", "count", registry.Len(), "default", registry.DefaultModel())

	ctx := context.Background()
	store, closeStore, err := openHistory(ctx, cfg)
	if err != nil {
		slog.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	limiter := core.NewLimiter(cfg.Generator.MaxConcurrent, cfg.Generator.MaxWaitTime)
	client := generator.New(cfg.Generator.BaseURL, cfg.Generator.Timeout)

	server := web.NewServer(cfg, web.Deps{
		Registry:  registry,
		Generator: core.LimitGenerator(client, limiter),
		Limiter:   limiter,
		History:   store,
		Logger:    slog.Default(),
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go history.StartPruneScheduler(jobCtx, store, history.PruneConfig{
		Retention: cfg.History.Retention,
		Interval:  cfg.History.PruneInterval,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for in-flight generations to settle (with timeout)
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for generations to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("generations did not complete in time", "error", err)
			} else {
				slog.Info("all generations completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func loadRegistry(path string) (*core.Registry, error) {
	if path == "" {
		return core.DefaultRegistry(), nil
	}
	return core.LoadRegistryFile(path)
}

// openHistory connects to Postgres when DATABASE_URL is set and falls back to
// an in-memory store otherwise.
func openHistory(ctx context.Context, cfg *config.Config) (history.Store, func(), error) {
	if !cfg.Database.Enabled() {
		slog.Info("no database configured, keeping history in memory", "capacity", cfg.History.MemoryCapacity)
		return history.NewMemoryStore(cfg.History.MemoryCapacity), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	store, err := history.NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
