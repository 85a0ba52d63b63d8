package models

import "time"

// WalletBatch groups the wallets ingested from a single CSV upload.
// Counts are mutated as the batch moves through analysis.
type WalletBatch struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	UploadedBy     string    `json:"uploadedBy" db:"uploaded_by"`
	SourceFilename string    `json:"sourceFilename" db:"source_filename"`
	TotalWallets   int       `json:"totalWallets" db:"total_wallets"`
	ValidWallets   int       `json:"validWallets" db:"valid_wallets"`
	InvalidWallets int       `json:"invalidWallets" db:"invalid_wallets"`
	Processed      int       `json:"processed" db:"processed"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}
