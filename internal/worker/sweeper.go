package worker

import (
	"context"
	"time"

	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/types"
)

// StaleLister finds wallets whose last analysis is older than a cutoff
type StaleLister interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Enqueuer adds wallets to the analysis queue
type Enqueuer interface {
	Enqueue(ctx context.Context, item *models.AnalysisQueueItem) (*models.AnalysisQueueItem, error)
}

// Sweeper re-enqueues wallets whose scores have gone stale
type Sweeper struct {
	store       StaleLister
	queue       Enqueuer
	maxAttempts int
	sweepLimit  int
}

// NewSweeper creates a staleness sweeper
func NewSweeper(store StaleLister, queue Enqueuer, maxAttempts int) *Sweeper {
	return &Sweeper{
		store:       store,
		queue:       queue,
		maxAttempts: maxAttempts,
		sweepLimit:  500,
	}
}

// SweepStale enqueues wallets last analyzed before now-reanalyzeAfter at
// low priority, so scheduled refreshes never starve interactive requests.
func (s *Sweeper) SweepStale(ctx context.Context, reanalyzeAfter time.Duration) (int, error) {
	logger := logging.FromContext(ctx).WithField("component", "stale_sweeper")

	cutoff := time.Now().Add(-reanalyzeAfter)
	addresses, err := s.store.ListStale(ctx, cutoff, s.sweepLimit)
	if err != nil {
		return 0, err
	}
	if len(addresses) == 0 {
		return 0, nil
	}

	enqueued := 0
	for _, address := range addresses {
		_, err := s.queue.Enqueue(ctx, &models.AnalysisQueueItem{
			WalletAddress: address,
			Priority:      types.PriorityLow,
			MaxAttempts:   s.maxAttempts,
		})
		if err != nil {
			logger.WithError(err).WithField("wallet", address).Warn("failed to enqueue stale wallet")
			continue
		}
		enqueued++
	}

	logger.WithFields(map[string]interface{}{
		"stale":    len(addresses),
		"enqueued": enqueued,
	}).Info("stale wallet sweep completed")

	return enqueued, nil
}
