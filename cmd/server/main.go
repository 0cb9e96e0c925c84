package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brojonat/sfviz/service/cache"
	"github.com/brojonat/sfviz/service/config"
	"github.com/brojonat/sfviz/service/db"
	"github.com/brojonat/sfviz/service/metrics"
	"github.com/brojonat/sfviz/service/server"
	"github.com/brojonat/sfviz/service/subgraph"
	"github.com/brojonat/sfviz/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"default_chain", cfg.DefaultChainID,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(prometheus.DefaultRegisterer)

	registry := subgraph.NewRegistry(subgraph.RegistryConfig{
		URLTemplate: cfg.SubgraphURLTemplate,
		Timeout:     cfg.SubgraphTimeout,
	}, metricsCollector, logger)
	fetcher := cache.New(registry, cache.Config{
		LatestTTL: cfg.CacheLatestTTL,
		PinnedTTL: cfg.CachePinnedTTL,
	}, metricsCollector, logger)
	logger.Info("initialized subgraph fetcher",
		"url_template", cfg.SubgraphURLTemplate,
		"cache_latest_ttl", cfg.CacheLatestTTL,
		"cache_pinned_ttl", cfg.CachePinnedTTL,
	)

	// Watches need both the database and Temporal. Interfaces stay untyped
	// nil when disabled so the server leaves the routes unmounted.
	var (
		store     server.WatchStore
		scheduler temporal.Scheduler
	)
	if cfg.WatchesEnabled() {
		dbPool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := db.Migrate(ctx, dbPool); err != nil {
			logger.Error("failed to apply database schema", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")
		store = db.NewStore(dbPool, metricsCollector)

		temporalClient, err := temporal.NewClient(
			cfg.TemporalHost,
			cfg.TemporalNamespace,
			cfg.TemporalTaskQueue,
			logger,
		)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		scheduler = temporalClient
		logger.Info("connected to temporal",
			"host", cfg.TemporalHost,
			"namespace", cfg.TemporalNamespace,
		)
	} else {
		logger.Warn("DATABASE_URL not set, watch endpoints disabled")
	}

	// Streaming is optional; the rest of the API works without NATS
	ssePublisher, err := server.NewSSEPublisher(ctx, cfg.NATSURL, logger)
	if err != nil {
		logger.Warn("failed to connect to NATS, snapshot streaming disabled", "url", cfg.NATSURL, "error", err)
	} else {
		// closed by httpServer.Shutdown
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	httpServer := server.New(cfg.ServerAddr, cfg, fetcher, store, scheduler, ssePublisher, metricsCollector, logger)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
