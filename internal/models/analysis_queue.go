package models

import (
	"time"

	"github.com/wallet-intelligence/internal/types"
)

// AnalysisQueueItem is one unit of pending scoring work.
// Lifecycle: queued -> processing -> completed, or back to queued on a
// retryable failure until Attempts reaches MaxAttempts, then failed.
type AnalysisQueueItem struct {
	ID            string            `json:"id" db:"id"`
	WalletAddress string            `json:"walletAddress" db:"wallet_address"`
	Priority      types.Priority    `json:"priority" db:"priority"`
	Status        types.QueueStatus `json:"status" db:"status"`
	Attempts      int               `json:"attempts" db:"attempts"`
	MaxAttempts   int               `json:"maxAttempts" db:"max_attempts"`
	BatchID       *string           `json:"batchId,omitempty" db:"batch_id"`
	RequestedBy   *string           `json:"requestedBy,omitempty" db:"requested_by"`
	ErrorMessage  *string           `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt     time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time         `json:"updatedAt" db:"updated_at"`
}
