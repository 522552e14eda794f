package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/skippi/standup/internal/api"
	"github.com/skippi/standup/internal/config"
	"github.com/skippi/standup/internal/dedup"
	"github.com/skippi/standup/internal/platform"
	"github.com/skippi/standup/internal/standup"
	"github.com/skippi/standup/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage: PostgreSQL when configured, SQLite otherwise.
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		dataStore = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		dataStore = sqliteStore
		logger.Info().Msg("opened SQLite database")
	}
	defer dataStore.Close()

	// Optional Redis-backed event deduplication.
	var redisClient *redis.Client
	var guard *dedup.Guard
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisClient.Close()
		guard = dedup.New(redisClient, time.Hour)
		logger.Info().Msg("connected to Redis")
	}

	// Platform client and lifecycle engine.
	client := platform.NewRestClient(cfg.Token, cfg.APIBaseURL)
	reconciler := standup.NewReconciler(client, dataStore, logger)
	manager := standup.NewManager(dataStore, reconciler, client, logger)
	commander := standup.NewCommander(dataStore, manager, client, logger)
	dispatcher := standup.NewDispatcher(dataStore, manager, client, commander, guard, logger)
	gateway := platform.NewGateway(cfg.Token, cfg.GatewayURL, dispatcher, logger)
	sweeper := standup.NewSweeper(dataStore, manager, logger, cfg.SweepInterval)

	// Ops/admin HTTP server.
	router := api.NewRouter(logger, api.NewHandler(dataStore, manager, redisClient), cfg.AdminTokenHash)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting ops server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("ops server failed to start")
		}
	}()

	// The sweeper waits for the first gateway READY, then runs until the
	// process is torn down.
	go sweeper.Run(ctx, gateway.Ready())

	gatewayErr := make(chan error, 1)
	go func() {
		logger.Info().Str("env", cfg.Env).Msg("connecting to gateway")
		gatewayErr <- gateway.Run(ctx)
	}()

	// Wait for interrupt signal or gateway teardown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info().Msg("shutting down...")
	case err := <-gatewayErr:
		logger.Error().Err(err).Msg("gateway connection ended")
	}

	cancel()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops server forced to shutdown")
	}

	logger.Info().Msg("stopped")
}
