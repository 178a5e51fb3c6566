package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucametrics/attribution-core/internal/analytics"
	"github.com/lucametrics/attribution-core/internal/attribution"
	"github.com/lucametrics/attribution-core/internal/cache"
	"github.com/lucametrics/attribution-core/internal/config"
	"github.com/lucametrics/attribution-core/internal/database"
	"github.com/lucametrics/attribution-core/internal/geo"
	"github.com/lucametrics/attribution-core/internal/httpserver"
	"github.com/lucametrics/attribution-core/internal/metrics"
	"github.com/lucametrics/attribution-core/internal/middleware"
	"github.com/lucametrics/attribution-core/internal/models"
	"github.com/lucametrics/attribution-core/internal/storage"
	"github.com/lucametrics/attribution-core/internal/syncer"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet, fall back to standard log
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting attribution core",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis; the freshness layer degrades to store-only checks
	// without it.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
		redisClient = rdb.Client
	}

	// Initialize the ClickHouse archive when configured.
	var archive storage.EventArchive
	if cfg.ClickHouse.Enabled {
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
		}
		defer ch.Close()
		archive = storage.NewClickHouseArchive(ch.Conn)
	}

	// Prometheus metrics
	m := metrics.NewMetrics(cfg.Metrics.Namespace)

	// Repositories
	orderRepo := storage.NewPostgresOrderRepo(db.Pool)
	spendRepo := storage.NewPostgresSpendRepo(db.Pool)
	metricsRepo := storage.NewPostgresMetricsRepo(db.Pool)
	campaignRepo := storage.NewPostgresCampaignRepo(db.Pool)
	integrationRepo := storage.NewPostgresIntegrationRepo(db.Pool)
	syncLogRepo := storage.NewPostgresSyncLogRepo(db.Pool)
	eventStore := storage.NewPostgresEventStore(db.Pool)

	// Geo enrichment
	var geoResolver *geo.Resolver
	if cfg.Geo.Enabled {
		geoResolver, err = geo.NewResolver(cfg.Geo.DatabasePath)
		if err != nil {
			logger.Warn("failed to open geo database, enrichment disabled", zap.Error(err))
		} else {
			defer geoResolver.Close()
		}
	}

	// Core services
	cacheSvc := cache.NewService(metricsRepo, redisClient, cfg.Sync.MaxAge, logger, m)
	engine := attribution.NewEngine(attribution.Config{
		Window: models.AttributionWindow(cfg.Attribution.Window),
		Model:  models.AttributionModel(cfg.Attribution.Model),
	})
	reconciler := attribution.NewReconciler(eventStore, logger, m)
	aggregator := analytics.NewAggregator()

	registry := syncer.NewClientRegistry()
	orchestrator := syncer.NewOrchestrator(
		registry,
		orderRepo, spendRepo, campaignRepo, integrationRepo, syncLogRepo, eventStore,
		aggregator, cacheSvc, engine, reconciler,
		syncer.Options{
			Lookback:    cfg.Sync.Lookback,
			Concurrency: cfg.Sync.Concurrency,
		},
		logger, m,
	)

	// Build dependencies
	deps := &httpserver.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      m,
		Cache:        cacheSvc,
		Events:       eventStore,
		Archive:      archive,
		Campaigns:    campaignRepo,
		SyncLogs:     syncLogRepo,
		Orchestrator: orchestrator,
		Geo:          geoResolver,
	}

	// Create HTTP server with all middlewares
	handler := httpserver.NewServer(deps)

	// Apply middleware chain (order matters: outermost first)
	// Recovery -> Logging -> RateLimit -> Auth -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	authMW := middleware.NewAuthMiddleware(cfg.Auth, logger)

	finalHandler := recoveryMW.Handler(
		loggingMW.Handler(
			rateLimitMW.Handler(
				authMW.Handler(handler),
			),
		),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Start the periodic sync pipeline
	go orchestrator.Run(ctx, cfg.Sync.Interval)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Cancel main context to stop background goroutines
	cancel()

	logger.Info("server stopped")
}
