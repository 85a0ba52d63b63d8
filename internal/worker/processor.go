// Package worker drains the analysis queue and runs the scoring pipeline
// with bounded parallelism.
package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/types"
)

// AnalysisQueue is the queue repository surface the processor needs
type AnalysisQueue interface {
	Claim(ctx context.Context, limit int) ([]*models.AnalysisQueueItem, error)
	Complete(ctx context.Context, id string) error
	Release(ctx context.Context, id string, errorMessage string) (types.QueueStatus, error)
	ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error)
}

// WalletAnalyzer runs a full analysis for one wallet
type WalletAnalyzer interface {
	AnalyzeWallet(ctx context.Context, address string) (*models.WalletIntelligence, error)
}

// BatchProgress tracks per-batch completion counts. Optional.
type BatchProgress interface {
	IncrementProcessed(ctx context.Context, id string) error
}

// FailureRecorder marks a wallet record failed once its queue attempts are
// exhausted.
type FailureRecorder interface {
	MarkFailed(ctx context.Context, address string, errorMessage string) error
}

// Processor drains the analysis queue in batches
type Processor struct {
	queue    AnalysisQueue
	analyzer WalletAnalyzer
	batches  BatchProgress
	records  FailureRecorder

	workers   int
	aiLimiter *rate.Limiter
}

// NewProcessor creates a queue processor. workers bounds in-batch
// parallelism; requestsPerSecond paces analyses so the AI provider's rate
// limits hold across concurrent goroutines.
func NewProcessor(queue AnalysisQueue, analyzer WalletAnalyzer, batches BatchProgress, records FailureRecorder, workers int, requestsPerSecond float64) *Processor {
	if workers <= 0 {
		workers = 3
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &Processor{
		queue:     queue,
		analyzer:  analyzer,
		batches:   batches,
		records:   records,
		workers:   workers,
		aiLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// ProcessResult summarizes one queue drain pass
type ProcessResult struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Requeued  int `json:"requeued"`
	Failed    int `json:"failed"`
}

// ProcessQueue claims up to maxBatchSize queued items and analyzes them.
// Each item is completed, requeued, or terminally failed independently; a
// single wallet's failure never aborts the batch.
func (p *Processor) ProcessQueue(ctx context.Context, maxBatchSize int) (*ProcessResult, error) {
	logger := logging.FromContext(ctx).WithField("component", "queue_processor")

	items, err := p.queue.Claim(ctx, maxBatchSize)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{Claimed: len(items)}
	if len(items) == 0 {
		return result, nil
	}

	logger.WithField("claimed", len(items)).Info("processing analysis batch")

	type outcome struct {
		completed bool
		requeued  bool
		failed    bool
	}
	outcomes := make([]outcome, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, item := range items {
		g.Go(func() error {
			itemLogger := logger.WithFields(map[string]interface{}{
				"wallet":  item.WalletAddress,
				"attempt": item.Attempts,
			})

			if err := p.aiLimiter.Wait(gctx); err != nil {
				// Shutdown mid-batch: release the claim so another pass
				// picks the item up
				if _, relErr := p.queue.Release(context.WithoutCancel(gctx), item.ID, "worker shutdown"); relErr != nil {
					itemLogger.WithError(relErr).Error("failed to release queue item on shutdown")
				}
				outcomes[i].requeued = true
				return nil
			}

			_, err := p.analyzer.AnalyzeWallet(gctx, item.WalletAddress)
			if err != nil {
				status, relErr := p.queue.Release(context.WithoutCancel(gctx), item.ID, err.Error())
				if relErr != nil {
					itemLogger.WithError(relErr).Error("failed to release queue item")
					outcomes[i].failed = true
					return nil
				}

				if status == types.QueueStatusFailed {
					outcomes[i].failed = true
					itemLogger.WithError(err).Error("wallet analysis failed terminally")
					if p.records != nil {
						if markErr := p.records.MarkFailed(context.WithoutCancel(gctx), item.WalletAddress, err.Error()); markErr != nil {
							itemLogger.WithError(markErr).Error("failed to mark wallet record failed")
						}
					}
				} else {
					outcomes[i].requeued = true
					itemLogger.WithError(err).Warn("wallet analysis failed, requeued")
				}
				return nil
			}

			if err := p.queue.Complete(gctx, item.ID); err != nil {
				itemLogger.WithError(err).Error("failed to mark queue item completed")
				outcomes[i].failed = true
				return nil
			}
			outcomes[i].completed = true

			if p.batches != nil && item.BatchID != nil {
				if err := p.batches.IncrementProcessed(gctx, *item.BatchID); err != nil {
					itemLogger.WithError(err).Warn("failed to update batch progress")
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		switch {
		case o.completed:
			result.Completed++
		case o.requeued:
			result.Requeued++
		case o.failed:
			result.Failed++
		}
	}

	logger.WithFields(map[string]interface{}{
		"completed": result.Completed,
		"requeued":  result.Requeued,
		"failed":    result.Failed,
	}).Info("analysis batch finished")

	return result, nil
}

// ReleaseStuck requeues items that have been in processing longer than
// maxProcessingAge. Called periodically to recover from worker crashes.
func (p *Processor) ReleaseStuck(ctx context.Context, maxProcessingAge time.Duration) (int64, error) {
	released, err := p.queue.ReleaseStuck(ctx, time.Now().Add(-maxProcessingAge))
	if err != nil {
		return 0, err
	}
	if released > 0 {
		logging.FromContext(ctx).WithField("released", released).Warn("requeued stuck analysis items")
	}
	return released, nil
}
