// Package main provides the API server entry point for the wallet
// intelligence service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-intelligence/internal/adapter"
	"github.com/wallet-intelligence/internal/ai"
	"github.com/wallet-intelligence/internal/api"
	"github.com/wallet-intelligence/internal/config"
	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/service"
	"github.com/wallet-intelligence/internal/storage"
	"github.com/wallet-intelligence/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Repositories
	intelligenceRepo := storage.NewIntelligenceRepository(postgres)
	queueRepo := storage.NewQueueRepository(postgres)
	batchRepo := storage.NewBatchRepository(postgres)
	historyRepo := storage.NewScoreHistoryRepository(clickhouse)
	cacheService := storage.NewCacheService(redis, cfg.Cache.TTL, cfg.Cache.WebhookDedup)

	// On-chain data provider and AI interpretation
	solanaProvider := adapter.NewSolanaProvider(&cfg.Solana)
	interpreter := ai.NewEngine(&cfg.AI)
	if interpreter.IsEnabled() {
		logger.Info("AI interpretation enabled")
	} else {
		logger.Warn("No AI provider configured, analyses will use deterministic fallback")
	}

	// Services
	scoringService := service.NewScoringService(
		solanaProvider,
		interpreter,
		intelligenceRepo,
		historyRepo,
		cacheService,
		cfg.AI.ConfidenceThreshold,
	)
	collectionService := service.NewCollectionService(
		intelligenceRepo,
		queueRepo,
		batchRepo,
		cfg.Queue.MaxAttempts,
	)
	processor := worker.NewProcessor(
		queueRepo,
		scoringService,
		batchRepo,
		intelligenceRepo,
		cfg.Queue.Workers,
		cfg.AI.RequestsPerSecond,
	)

	logger.Info("Services initialized")

	server := api.NewServer(
		cfg,
		collectionService,
		intelligenceRepo,
		historyRepo,
		processor,
		queueRepo,
		batchRepo,
		cacheService,
	)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
