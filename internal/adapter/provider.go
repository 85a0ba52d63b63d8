// Package adapter provides on-chain data providers for wallet analysis.
package adapter

import (
	"context"

	"github.com/wallet-intelligence/internal/types"
)

// SnapshotProvider gathers an on-chain activity snapshot for a wallet.
// Implementations must return a usable snapshot or an error; partial data
// with zeroed fields is acceptable when individual lookups fail.
type SnapshotProvider interface {
	GatherSnapshot(ctx context.Context, address string) (*types.WalletSnapshot, error)
}
