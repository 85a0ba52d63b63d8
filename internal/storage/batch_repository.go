package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wallet-intelligence/internal/models"
)

// BatchRepository handles wallet batch persistence
type BatchRepository struct {
	db *PostgresDB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *PostgresDB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create creates a new wallet batch record
func (r *BatchRepository) Create(ctx context.Context, batch *models.WalletBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO wallet_batches (
			id, name, uploaded_by, source_filename,
			total_wallets, valid_wallets, invalid_wallets, processed, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		batch.ID,
		batch.Name,
		batch.UploadedBy,
		batch.SourceFilename,
		batch.TotalWallets,
		batch.ValidWallets,
		batch.InvalidWallets,
		batch.Processed,
		batch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// Get retrieves a batch by ID
func (r *BatchRepository) Get(ctx context.Context, id string) (*models.WalletBatch, error) {
	query := `
		SELECT id, name, uploaded_by, source_filename,
			   total_wallets, valid_wallets, invalid_wallets, processed, created_at
		FROM wallet_batches
		WHERE id = $1
	`

	var batch models.WalletBatch
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&batch.ID,
		&batch.Name,
		&batch.UploadedBy,
		&batch.SourceFilename,
		&batch.TotalWallets,
		&batch.ValidWallets,
		&batch.InvalidWallets,
		&batch.Processed,
		&batch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found, return nil without error
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &batch, nil
}

// List retrieves batches ordered by creation time, newest first
func (r *BatchRepository) List(ctx context.Context, limit, offset int) ([]*models.WalletBatch, error) {
	query := `
		SELECT id, name, uploaded_by, source_filename,
			   total_wallets, valid_wallets, invalid_wallets, processed, created_at
		FROM wallet_batches
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []*models.WalletBatch
	for rows.Next() {
		var batch models.WalletBatch
		err := rows.Scan(
			&batch.ID,
			&batch.Name,
			&batch.UploadedBy,
			&batch.SourceFilename,
			&batch.TotalWallets,
			&batch.ValidWallets,
			&batch.InvalidWallets,
			&batch.Processed,
			&batch.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, &batch)
	}
	return batches, rows.Err()
}

// UpdateCounts records the final row tallies after a CSV ingest completes
func (r *BatchRepository) UpdateCounts(ctx context.Context, id string, total, valid, invalid int) error {
	query := `
		UPDATE wallet_batches
		SET total_wallets = $2, valid_wallets = $3, invalid_wallets = $4
		WHERE id = $1
	`
	result, err := r.db.Pool().Exec(ctx, query, id, total, valid, invalid)
	if err != nil {
		return fmt.Errorf("failed to update batch counts: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("batch not found: %s", id)
	}
	return nil
}

// IncrementProcessed bumps the processed counter after a batch wallet
// finishes analysis.
func (r *BatchRepository) IncrementProcessed(ctx context.Context, id string) error {
	query := `UPDATE wallet_batches SET processed = processed + 1 WHERE id = $1`
	_, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment batch progress: %w", err)
	}
	return nil
}
