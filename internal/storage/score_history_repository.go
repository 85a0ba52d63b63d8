package storage

import (
	"context"
	"fmt"

	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/types"
)

// ScoreHistoryRepository handles the append-only score event log in ClickHouse
type ScoreHistoryRepository struct {
	db *ClickHouseDB
}

// NewScoreHistoryRepository creates a new score history repository
func NewScoreHistoryRepository(db *ClickHouseDB) *ScoreHistoryRepository {
	return &ScoreHistoryRepository{db: db}
}

// Insert appends a single score event
func (r *ScoreHistoryRepository) Insert(ctx context.Context, event *models.ScoreEvent) error {
	if err := ValidateWalletAddress(event.WalletAddress); err != nil {
		return err
	}

	query := `
		INSERT INTO score_events (
			wallet_address, trading_score, portfolio_score, liquidity_score,
			activity_score, defi_engagement_score, social_credit_score,
			risk_level, confidence, fallback, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.db.Conn().Exec(ctx, query,
		event.WalletAddress,
		int32(event.TradingScore),
		int32(event.PortfolioScore),
		int32(event.LiquidityScore),
		int32(event.ActivityScore),
		int32(event.DeFiEngagementScore),
		int32(event.SocialCreditScore),
		string(event.RiskLevel),
		event.Confidence,
		event.Fallback,
		event.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert score event: %w", err)
	}
	return nil
}

// BatchInsert appends multiple score events in a single batch
func (r *ScoreHistoryRepository) BatchInsert(ctx context.Context, events []*models.ScoreEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO score_events (
			wallet_address, trading_score, portfolio_score, liquidity_score,
			activity_score, defi_engagement_score, social_credit_score,
			risk_level, confidence, fallback, analyzed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, event := range events {
		if err := ValidateWalletAddress(event.WalletAddress); err != nil {
			return fmt.Errorf("invalid address %s: %w", event.WalletAddress, err)
		}

		err = batch.Append(
			event.WalletAddress,
			int32(event.TradingScore),
			int32(event.PortfolioScore),
			int32(event.LiquidityScore),
			int32(event.ActivityScore),
			int32(event.DeFiEngagementScore),
			int32(event.SocialCreditScore),
			string(event.RiskLevel),
			event.Confidence,
			event.Fallback,
			event.AnalyzedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append score event for %s: %w", event.WalletAddress, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send score event batch: %w", err)
	}
	return nil
}

// GetByWallet retrieves score events for a wallet, newest first
func (r *ScoreHistoryRepository) GetByWallet(ctx context.Context, address string, limit int) ([]*models.ScoreEvent, error) {
	if err := ValidateWalletAddress(address); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT wallet_address, trading_score, portfolio_score, liquidity_score,
			   activity_score, defi_engagement_score, social_credit_score,
			   risk_level, confidence, fallback, analyzed_at
		FROM score_events
		WHERE wallet_address = ?
		ORDER BY analyzed_at DESC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query score events: %w", err)
	}
	defer rows.Close()

	var events []*models.ScoreEvent
	for rows.Next() {
		var event models.ScoreEvent
		var trading, portfolio, liquidity, activity, defi, composite int32
		var riskLevel string
		err := rows.Scan(
			&event.WalletAddress,
			&trading,
			&portfolio,
			&liquidity,
			&activity,
			&defi,
			&composite,
			&riskLevel,
			&event.Confidence,
			&event.Fallback,
			&event.AnalyzedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score event: %w", err)
		}
		event.TradingScore = int(trading)
		event.PortfolioScore = int(portfolio)
		event.LiquidityScore = int(liquidity)
		event.ActivityScore = int(activity)
		event.DeFiEngagementScore = int(defi)
		event.SocialCreditScore = int(composite)
		event.RiskLevel = types.RiskLevel(riskLevel)
		events = append(events, &event)
	}
	return events, rows.Err()
}

// CountByWallet counts score events for a wallet
func (r *ScoreHistoryRepository) CountByWallet(ctx context.Context, address string) (uint64, error) {
	if err := ValidateWalletAddress(address); err != nil {
		return 0, err
	}

	var count uint64
	query := `SELECT COUNT(*) FROM score_events WHERE wallet_address = ?`
	if err := r.db.Conn().QueryRow(ctx, query, address).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count score events: %w", err)
	}
	return count, nil
}
