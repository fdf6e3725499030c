// Package main is the entry point of the SGN Grade Hub API server.
//
// The server accepts grading run requests over a REST API, drives the
// remote SGN portal through authenticated browser-like sessions, and
// streams each run's progress to the caller as server-sent events.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: grading model, no external dependencies
// - Application: run orchestration (coordinator, collector, orchestrator)
// - Infrastructure: portal driver, run history, locks, progress streams
// - Interface: HTTP handlers and the SSE endpoint
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

	"github.com/sgn-hub/sgn-grade-hub/config"

	// Application layer
	"github.com/sgn-hub/sgn-grade-hub/internal/application/run"

	// Infrastructure layer
	"github.com/sgn-hub/sgn-grade-hub/internal/infrastructure/external/sgn"
	"github.com/sgn-hub/sgn-grade-hub/internal/infrastructure/messaging"
	"github.com/sgn-hub/sgn-grade-hub/internal/infrastructure/persistence/postgres"
	"github.com/sgn-hub/sgn-grade-hub/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/sgn-hub/sgn-grade-hub/internal/interface/http"
	"github.com/sgn-hub/sgn-grade-hub/internal/interface/http/handlers"

	// Packages
	"github.com/sgn-hub/sgn-grade-hub/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runServer(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting SGN Grade Hub",
		"env", cfg.App.Environment,
		"debug", cfg.App.Debug,
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. RUN HISTORY (PostgreSQL, optional)
	// ─────────────────────────────────────────────────────────────────────────
	var history run.HistoryRepository
	var dbConn *postgres.Connection

	historyEnabled := cfg.Features.IsEnabled(config.FeatureRunHistory, nil)
	if historyEnabled && !cfg.Database.Disabled && cfg.Database.URL != "" {
		log.Info("connecting to database...")
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if err := dbConn.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		log.Info("database connection established")

		log.Info("running database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		history = postgres.NewRunRepository(dbConn)
	} else {
		if !historyEnabled {
			log.Info("run history disabled by feature flag", "flag", config.FeatureRunHistory)
		}
		log.Warn("run history disabled - finished runs will not be queryable")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. CLASSROOM LOCK (Redis, with in-process fallback)
	// ─────────────────────────────────────────────────────────────────────────
	var lock run.RunLock
	var cache *redis.Cache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		cache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, using in-process lock", "error", err)
		} else {
			defer func() {
				log.Info("closing Redis connection...")
				_ = cache.Close()
			}()
			lock = redis.NewRunLock(cache)
			log.Info("Redis connection established")
		}
	}
	if lock == nil {
		lock = run.NewLocalRunLock()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. PROGRESS STREAM HUB
	// ─────────────────────────────────────────────────────────────────────────
	hubConfig := messaging.DefaultStreamHubConfig()
	hubConfig.Logger = log
	hub := messaging.NewStreamHub(hubConfig)
	defer func() {
		log.Info("closing progress streams...")
		hub.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. PORTAL SESSION FACTORY
	// ─────────────────────────────────────────────────────────────────────────
	sgnConfig := sgn.DefaultConfig()
	sgnConfig.BaseURL = cfg.SGN.BaseURL
	sgnConfig.Timeout = cfg.SGN.RequestTimeout
	sgnConfig.Logger = log
	sgnConfig.Debug = cfg.SGN.Debug || cfg.App.Debug
	if cfg.SGN.RateLimit > 0 {
		sgnConfig.RateLimiter.RequestsPerSecond = float64(cfg.SGN.RateLimit) / 60.0
		sgnConfig.RateLimiter.BurstSize = cfg.SGN.RateLimitBurst
	}
	sessions := sgn.NewFactory(sgnConfig)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. RUN COORDINATOR
	// ─────────────────────────────────────────────────────────────────────────
	coordinator := run.NewRunCoordinator(log, sessions, lock, history, hub,
		run.DefaultCoordinatorConfig())

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if dbConn != nil {
		health.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	}
	if cache != nil {
		health.AddCheck("redis", handlers.NewCacheCheck(cache))
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.MaxHeaderBytes = cfg.HTTP.MaxHeaderBytes
	httpConfig.MaxUploadBytes = cfg.HTTP.MaxUploadBytes
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpConfig.APIKeyHashes = cfg.HTTP.APIKeyHashes

	httpDeps := httpserver.Dependencies{
		Coordinator:   coordinator,
		Streams:       hub,
		History:       history,
		Features:      cfg.Features,
		Logger:        logger.Default(),
		HealthChecker: health,
	}

	server := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. START
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("SGN Grade Hub is running", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	// 1. Stop accepting requests
	log.Info("stopping HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	// 2. Cancel in-flight runs and wait for their terminal events
	log.Info("stopping run coordinator...")
	coordinator.Shutdown()

	// 3. Streams, Redis and the database close through defers

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

// setupLogger configures structured logging.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		// JSON for production (friendlier to log aggregators)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
