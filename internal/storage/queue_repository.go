package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/types"
)

// QueueRepository handles analysis queue persistence
type QueueRepository struct {
	db *PostgresDB
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *PostgresDB) *QueueRepository {
	return &QueueRepository{db: db}
}

const queueColumns = `
	id, wallet_address, priority, status, attempts, max_attempts,
	batch_id, requested_by, error_message, created_at, updated_at`

func scanQueueItem(row pgx.Row) (*models.AnalysisQueueItem, error) {
	var item models.AnalysisQueueItem
	err := row.Scan(
		&item.ID,
		&item.WalletAddress,
		&item.Priority,
		&item.Status,
		&item.Attempts,
		&item.MaxAttempts,
		&item.BatchID,
		&item.RequestedBy,
		&item.ErrorMessage,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Enqueue adds a wallet to the analysis queue. If the wallet already has a
// queued or processing item, the existing item's priority is raised instead
// of inserting a duplicate; the returned item reflects the surviving row.
func (r *QueueRepository) Enqueue(ctx context.Context, item *models.AnalysisQueueItem) (*models.AnalysisQueueItem, error) {
	if err := ValidateWalletAddress(item.WalletAddress); err != nil {
		return nil, err
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Priority == 0 {
		item.Priority = types.PriorityLow
	}
	if item.MaxAttempts == 0 {
		item.MaxAttempts = 3
	}
	now := time.Now()
	item.Status = types.QueueStatusQueued
	item.CreatedAt = now
	item.UpdatedAt = now

	existing, err := r.activeItem(ctx, item.WalletAddress)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if item.Priority > existing.Priority {
			query := `UPDATE analysis_queue SET priority = $2, updated_at = $3 WHERE id = $1`
			if _, err := r.db.Pool().Exec(ctx, query, existing.ID, item.Priority, now); err != nil {
				return nil, fmt.Errorf("failed to raise queue priority: %w", err)
			}
			existing.Priority = item.Priority
			existing.UpdatedAt = now
		}
		return existing, nil
	}

	// The partial unique index on active items makes this race-safe: if a
	// concurrent enqueue won, fall back to the surviving row.
	query := `
		INSERT INTO analysis_queue (
			id, wallet_address, priority, status, attempts, max_attempts,
			batch_id, requested_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (wallet_address) WHERE status IN ('queued', 'processing') DO NOTHING
	`
	result, err := r.db.Pool().Exec(ctx, query,
		item.ID,
		item.WalletAddress,
		item.Priority,
		item.Status,
		item.Attempts,
		item.MaxAttempts,
		item.BatchID,
		item.RequestedBy,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue wallet: %w", err)
	}
	if result.RowsAffected() == 0 {
		winner, err := r.activeItem(ctx, item.WalletAddress)
		if err != nil {
			return nil, err
		}
		if winner != nil {
			return winner, nil
		}
		return nil, fmt.Errorf("failed to enqueue wallet: insert conflicted with no surviving item")
	}
	return item, nil
}

// activeItem returns the queued or processing item for a wallet, if any
func (r *QueueRepository) activeItem(ctx context.Context, address string) (*models.AnalysisQueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM analysis_queue
		WHERE wallet_address = $1 AND status IN ($2, $3)
		LIMIT 1
	`
	item, err := scanQueueItem(r.db.Pool().QueryRow(ctx, query, address,
		types.QueueStatusQueued, types.QueueStatusProcessing))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check active queue item: %w", err)
	}
	return item, nil
}

// Get retrieves a queue item by ID
func (r *QueueRepository) Get(ctx context.Context, id string) (*models.AnalysisQueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM analysis_queue WHERE id = $1`
	item, err := scanQueueItem(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found, return nil without error
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return item, nil
}

// Claim atomically claims up to limit queued items, marking them processing
// and incrementing their attempt count. Claim order is priority descending,
// then enqueue time ascending. SKIP LOCKED keeps concurrent workers from
// claiming the same rows.
func (r *QueueRepository) Claim(ctx context.Context, limit int) ([]*models.AnalysisQueueItem, error) {
	query := `
		UPDATE analysis_queue
		SET status = $1, attempts = attempts + 1, updated_at = $2
		WHERE id IN (
			SELECT id FROM analysis_queue
			WHERE status = $3
			ORDER BY priority DESC, created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	rows, err := r.db.Pool().Query(ctx, query,
		types.QueueStatusProcessing, time.Now(), types.QueueStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue items: %w", err)
	}
	defer rows.Close()

	var items []*models.AnalysisQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Complete marks a queue item as completed
func (r *QueueRepository) Complete(ctx context.Context, id string) error {
	query := `UPDATE analysis_queue SET status = $2, error_message = NULL, updated_at = $3 WHERE id = $1`
	result, err := r.db.Pool().Exec(ctx, query, id, types.QueueStatusCompleted, time.Now())
	if err != nil {
		return fmt.Errorf("failed to complete queue item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("queue item not found: %s", id)
	}
	return nil
}

// Release handles a failed attempt: the item goes back to queued for another
// try, or to failed once its attempts are exhausted. Returns the resulting
// status.
func (r *QueueRepository) Release(ctx context.Context, id string, errorMessage string) (types.QueueStatus, error) {
	query := `
		UPDATE analysis_queue
		SET status = CASE WHEN attempts >= max_attempts THEN $2::text ELSE $3::text END,
			error_message = $4,
			updated_at = $5
		WHERE id = $1
		RETURNING status
	`
	var status types.QueueStatus
	err := r.db.Pool().QueryRow(ctx, query, id,
		types.QueueStatusFailed, types.QueueStatusQueued, errorMessage, time.Now()).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("queue item not found: %s", id)
		}
		return "", fmt.Errorf("failed to release queue item: %w", err)
	}
	return status, nil
}

// ReleaseStuck requeues processing items whose claim is older than the
// cutoff. Covers workers that died mid-batch.
func (r *QueueRepository) ReleaseStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE analysis_queue
		SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4
	`
	result, err := r.db.Pool().Exec(ctx, query,
		types.QueueStatusQueued, time.Now(), types.QueueStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stuck queue items: %w", err)
	}
	return result.RowsAffected(), nil
}

// QueueStats holds per-status counts for the analysis queue
type QueueStats struct {
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Stats returns per-status counts for the analysis queue
func (r *QueueRepository) Stats(ctx context.Context) (*QueueStats, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE status = 'queued'),
			   COUNT(*) FILTER (WHERE status = 'processing'),
			   COUNT(*) FILTER (WHERE status = 'completed'),
			   COUNT(*) FILTER (WHERE status = 'failed')
		FROM analysis_queue
	`
	var stats QueueStats
	err := r.db.Pool().QueryRow(ctx, query).Scan(
		&stats.Queued,
		&stats.Processing,
		&stats.Completed,
		&stats.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute queue stats: %w", err)
	}
	return &stats, nil
}

// PruneCompleted deletes completed items older than the cutoff
func (r *QueueRepository) PruneCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM analysis_queue WHERE status = $1 AND updated_at < $2`
	result, err := r.db.Pool().Exec(ctx, query, types.QueueStatusCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune completed queue items: %w", err)
	}
	return result.RowsAffected(), nil
}
