package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/types"
)

var base58AddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// CollectionStore is the subset of the intelligence repository the
// collection service needs.
type CollectionStore interface {
	InsertIfAbsent(ctx context.Context, w *models.WalletIntelligence) (bool, error)
	MergeSource(ctx context.Context, address string, source types.CollectionSource, userID *string) error
	Get(ctx context.Context, address string) (*models.WalletIntelligence, error)
}

// QueueStore enqueues wallets for analysis
type QueueStore interface {
	Enqueue(ctx context.Context, item *models.AnalysisQueueItem) (*models.AnalysisQueueItem, error)
}

// BatchStore persists CSV upload batches
type BatchStore interface {
	Create(ctx context.Context, batch *models.WalletBatch) error
	UpdateCounts(ctx context.Context, id string, total, valid, invalid int) error
}

// CollectionService registers wallet addresses from the various intake
// channels and schedules them for analysis.
type CollectionService struct {
	store       CollectionStore
	queue       QueueStore
	batches     BatchStore
	maxAttempts int
}

// NewCollectionService creates a new collection service
func NewCollectionService(store CollectionStore, queue QueueStore, batches BatchStore, maxAttempts int) *CollectionService {
	return &CollectionService{
		store:       store,
		queue:       queue,
		batches:     batches,
		maxAttempts: maxAttempts,
	}
}

// CollectInput describes one wallet to collect
type CollectInput struct {
	WalletAddress string
	Source        types.CollectionSource
	UserID        *string
	BatchID       *string
	RequestedBy   *string
}

// CollectResult reports the outcome of a collect call
type CollectResult struct {
	WalletAddress string            `json:"walletAddress"`
	AlreadyKnown  bool              `json:"alreadyKnown"`
	QueueItemID   string            `json:"queueItemId,omitempty"`
	Priority      types.Priority    `json:"priority"`
	Status        types.QueueStatus `json:"queueStatus,omitempty"`
}

// Collect registers a wallet address. A new wallet gets a pending
// intelligence record and an analysis queue item at its source priority.
// A known wallet gets its metadata merged (additional source, connection
// count) without re-scoring; collection is idempotent.
func (s *CollectionService) Collect(ctx context.Context, input CollectInput) (*CollectResult, error) {
	address := strings.TrimSpace(input.WalletAddress)
	if !base58AddressRegex.MatchString(address) {
		return nil, &types.ServiceError{
			Code:    "INVALID_WALLET_ADDRESS",
			Message: fmt.Sprintf("invalid wallet address format: %s", address),
			Details: map[string]any{"address": address},
		}
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"wallet": address,
		"source": input.Source,
	})

	record := &models.WalletIntelligence{
		WalletAddress:    address,
		CollectionSource: input.Source,
		AssociatedUserID: input.UserID,
		BatchID:          input.BatchID,
	}

	inserted, err := s.store.InsertIfAbsent(ctx, record)
	if err != nil {
		return nil, err
	}

	result := &CollectResult{
		WalletAddress: address,
		AlreadyKnown:  !inserted,
		Priority:      types.PriorityForSource(input.Source),
	}

	if !inserted {
		if err := s.store.MergeSource(ctx, address, input.Source, input.UserID); err != nil {
			return nil, err
		}
		logger.Debug("wallet already known, merged collection metadata")
		return result, nil
	}

	item, err := s.queue.Enqueue(ctx, &models.AnalysisQueueItem{
		WalletAddress: address,
		Priority:      result.Priority,
		MaxAttempts:   s.maxAttempts,
		BatchID:       input.BatchID,
		RequestedBy:   input.RequestedBy,
	})
	if err != nil {
		return nil, err
	}

	result.QueueItemID = item.ID
	result.Status = item.Status
	logger.WithField("priority", item.Priority).Info("wallet collected and queued for analysis")
	return result, nil
}

// RequestAnalysis force-enqueues a known wallet at critical priority.
// Used by the manual re-analysis endpoint and the staleness sweep.
func (s *CollectionService) RequestAnalysis(ctx context.Context, address string, priority types.Priority, requestedBy *string) (*models.AnalysisQueueItem, error) {
	record, err := s.store.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, &types.ServiceError{
			Code:    "WALLET_NOT_FOUND",
			Message: fmt.Sprintf("wallet not found: %s", address),
			Details: map[string]any{"address": address},
		}
	}

	return s.queue.Enqueue(ctx, &models.AnalysisQueueItem{
		WalletAddress: address,
		Priority:      priority,
		MaxAttempts:   s.maxAttempts,
		RequestedBy:   requestedBy,
	})
}

// CSVIngestResult reports the outcome of a CSV upload
type CSVIngestResult struct {
	BatchID        string   `json:"batchId"`
	TotalRows      int      `json:"totalRows"`
	ValidWallets   int      `json:"validWallets"`
	InvalidWallets int      `json:"invalidWallets"`
	Duplicates     int      `json:"duplicates"`
	InvalidSamples []string `json:"invalidSamples,omitempty"`
}

const invalidSampleLimit = 10

// IngestCSV parses wallet addresses from the first column of a CSV stream
// and collects each valid one under a new batch. Parsing is lenient: a
// header row, quoting, and ragged rows are tolerated; each cell just has
// to look like a base58 address after trimming.
func (s *CollectionService) IngestCSV(ctx context.Context, r io.Reader, batchName, filename, uploadedBy string) (*CSVIngestResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // tolerate ragged rows
	reader.TrimLeadingSpace = true

	batch := &models.WalletBatch{
		Name:           batchName,
		UploadedBy:     uploadedBy,
		SourceFilename: filename,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}

	result := &CSVIngestResult{BatchID: batch.ID}
	seen := make(map[string]bool)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &types.ServiceError{
				Code:    "INVALID_CSV",
				Message: fmt.Sprintf("failed to parse CSV at row %d: %v", result.TotalRows+1, err),
			}
		}
		if len(row) == 0 {
			continue
		}

		result.TotalRows++
		address := strings.TrimSpace(strings.Trim(row[0], `"'`))

		if !base58AddressRegex.MatchString(address) {
			// First invalid row is usually the header; count the rest
			if result.TotalRows == 1 {
				result.TotalRows--
				continue
			}
			result.InvalidWallets++
			if len(result.InvalidSamples) < invalidSampleLimit {
				result.InvalidSamples = append(result.InvalidSamples, address)
			}
			continue
		}

		if seen[address] {
			result.Duplicates++
			continue
		}
		seen[address] = true

		if _, err := s.Collect(ctx, CollectInput{
			WalletAddress: address,
			Source:        types.SourceCSVUpload,
			BatchID:       &batch.ID,
			RequestedBy:   &uploadedBy,
		}); err != nil {
			return nil, fmt.Errorf("failed to collect wallet %s from batch: %w", address, err)
		}
		result.ValidWallets++
	}

	if err := s.batches.UpdateCounts(ctx, batch.ID, result.TotalRows, result.ValidWallets, result.InvalidWallets); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"batchId": batch.ID,
		"valid":   result.ValidWallets,
		"invalid": result.InvalidWallets,
	}).Info("CSV batch ingested")

	return result, nil
}
