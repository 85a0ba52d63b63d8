// Package main provides the background analysis worker entry point for the
// wallet intelligence service. The worker drains the analysis queue on an
// interval, recovers stuck items, and re-enqueues stale wallets daily.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wallet-intelligence/internal/adapter"
	"github.com/wallet-intelligence/internal/ai"
	"github.com/wallet-intelligence/internal/config"
	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/service"
	"github.com/wallet-intelligence/internal/storage"
	"github.com/wallet-intelligence/internal/worker"
)

// stuckProcessingAge is how long an item may sit in processing before it is
// treated as abandoned by a crashed worker and requeued.
const stuckProcessingAge = 15 * time.Minute

// completedRetention bounds how long completed queue rows are kept for
// inspection before being pruned.
const completedRetention = 7 * 24 * time.Hour

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger().WithField("component", "worker")
	logger.Info("Analysis worker starting...")

	// Database connections
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

	// Repositories and pipeline
	intelligenceRepo := storage.NewIntelligenceRepository(postgres)
	queueRepo := storage.NewQueueRepository(postgres)
	batchRepo := storage.NewBatchRepository(postgres)
	historyRepo := storage.NewScoreHistoryRepository(clickhouse)
	cacheService := storage.NewCacheService(redis, cfg.Cache.TTL, cfg.Cache.WebhookDedup)

	solanaProvider := adapter.NewSolanaProvider(&cfg.Solana)
	interpreter := ai.NewEngine(&cfg.AI)
	if !interpreter.IsEnabled() {
		logger.Warn("No AI provider configured, analyses will use deterministic fallback")
	}

	scoringService := service.NewScoringService(
		solanaProvider,
		interpreter,
		intelligenceRepo,
		historyRepo,
		cacheService,
		cfg.AI.ConfidenceThreshold,
	)
	processor := worker.NewProcessor(
		queueRepo,
		scoringService,
		batchRepo,
		intelligenceRepo,
		cfg.Queue.Workers,
		cfg.AI.RequestsPerSecond,
	)
	sweeper := worker.NewSweeper(intelligenceRepo, queueRepo, cfg.Queue.MaxAttempts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := cron.New()

	// Drain the analysis queue on the configured interval
	drainSpec := fmt.Sprintf("@every %s", cfg.Queue.DrainInterval)
	if _, err := scheduler.AddFunc(drainSpec, func() {
		if _, err := processor.ProcessQueue(ctx, cfg.Queue.DefaultBatchSize); err != nil {
			logger.WithError(err).Error("queue drain pass failed")
		}
	}); err != nil {
		logger.WithError(err).Fatal("Failed to schedule queue drain")
	}

	// Recover items abandoned in processing by crashed workers
	if _, err := scheduler.AddFunc("@every 5m", func() {
		if _, err := processor.ReleaseStuck(ctx, stuckProcessingAge); err != nil {
			logger.WithError(err).Error("stuck item recovery failed")
		}
	}); err != nil {
		logger.WithError(err).Fatal("Failed to schedule stuck item recovery")
	}

	// Daily housekeeping: re-enqueue stale wallets, prune old completed items
	if _, err := scheduler.AddFunc("@daily", func() {
		if _, err := sweeper.SweepStale(ctx, cfg.Queue.ReanalyzeAfter); err != nil {
			logger.WithError(err).Error("stale wallet sweep failed")
		}
		if pruned, err := queueRepo.PruneCompleted(ctx, time.Now().Add(-completedRetention)); err != nil {
			logger.WithError(err).Error("completed queue pruning failed")
		} else if pruned > 0 {
			logger.WithField("pruned", pruned).Info("pruned completed queue items")
		}
	}); err != nil {
		logger.WithError(err).Fatal("Failed to schedule daily sweep")
	}

	scheduler.Start()
	logger.WithFields(map[string]interface{}{
		"drainInterval":  cfg.Queue.DrainInterval.String(),
		"batchSize":      cfg.Queue.DefaultBatchSize,
		"workers":        cfg.Queue.Workers,
		"reanalyzeAfter": cfg.Queue.ReanalyzeAfter.String(),
	}).Info("Analysis worker started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()

	// Let in-flight jobs finish
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("Timed out waiting for running jobs")
	}

	logger.Info("Worker exited")
}
