package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/types"
)

// Solana address regex pattern (base58 alphabet, 32-44 characters)
var solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// IntelligenceRepository handles wallet intelligence persistence
type IntelligenceRepository struct {
	db *PostgresDB
}

// NewIntelligenceRepository creates a new intelligence repository
func NewIntelligenceRepository(db *PostgresDB) *IntelligenceRepository {
	return &IntelligenceRepository{db: db}
}

// ValidateWalletAddress validates a Solana wallet address format.
// Base58 is case-sensitive, so no normalization is applied.
func ValidateWalletAddress(address string) error {
	if !solanaAddressRegex.MatchString(address) {
		return &types.ServiceError{
			Code:    "INVALID_WALLET_ADDRESS",
			Message: fmt.Sprintf("invalid wallet address format: %s (must be 32-44 base58 characters)", address),
			Details: map[string]any{
				"address": address,
				"format":  "[1-9A-HJ-NP-Za-km-z]{32,44}",
			},
		}
	}
	return nil
}

const intelligenceColumns = `
	wallet_address, trading_score, portfolio_score, liquidity_score,
	activity_score, defi_engagement_score, social_credit_score,
	risk_level, analysis_status, marketing_segment, communication_style,
	preferred_token_types, risk_tolerance, investment_profile, portfolio_size,
	analysis_data, collection_source, additional_sources, connection_count,
	associated_user_id, batch_id, error_message,
	collected_at, last_analyzed, updated_at`

func scanIntelligence(row pgx.Row) (*models.WalletIntelligence, error) {
	var w models.WalletIntelligence
	err := row.Scan(
		&w.WalletAddress,
		&w.TradingScore,
		&w.PortfolioScore,
		&w.LiquidityScore,
		&w.ActivityScore,
		&w.DeFiEngagementScore,
		&w.SocialCreditScore,
		&w.RiskLevel,
		&w.AnalysisStatus,
		&w.MarketingSegment,
		&w.CommunicationStyle,
		&w.PreferredTokenTypes,
		&w.RiskTolerance,
		&w.InvestmentProfile,
		&w.PortfolioSize,
		&w.AnalysisData,
		&w.CollectionSource,
		&w.AdditionalSources,
		&w.ConnectionCount,
		&w.AssociatedUserID,
		&w.BatchID,
		&w.ErrorMessage,
		&w.CollectedAt,
		&w.LastAnalyzed,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// InsertIfAbsent inserts a new wallet intelligence record unless one already
// exists for the address. The unique index on wallet_address makes this safe
// under concurrent collection; returns true when a row was inserted.
func (r *IntelligenceRepository) InsertIfAbsent(ctx context.Context, w *models.WalletIntelligence) (bool, error) {
	if err := ValidateWalletAddress(w.WalletAddress); err != nil {
		return false, err
	}

	if w.RiskLevel == "" {
		w.RiskLevel = types.RiskUnknown
	}
	if w.AnalysisStatus == "" {
		w.AnalysisStatus = types.AnalysisPending
	}
	now := time.Now()
	if w.CollectedAt.IsZero() {
		w.CollectedAt = now
	}
	w.UpdatedAt = now

	query := `
		INSERT INTO wallet_intelligence (
			wallet_address, risk_level, analysis_status,
			collection_source, connection_count, associated_user_id, batch_id,
			collected_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (wallet_address) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		w.WalletAddress,
		w.RiskLevel,
		w.AnalysisStatus,
		w.CollectionSource,
		1,
		w.AssociatedUserID,
		w.BatchID,
		w.CollectedAt,
		w.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert wallet intelligence: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// Get retrieves a wallet intelligence record by address
func (r *IntelligenceRepository) Get(ctx context.Context, address string) (*models.WalletIntelligence, error) {
	if err := ValidateWalletAddress(address); err != nil {
		return nil, err
	}

	query := `SELECT ` + intelligenceColumns + ` FROM wallet_intelligence WHERE wallet_address = $1`

	w, err := scanIntelligence(r.db.Pool().QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found, return nil without error
		}
		return nil, fmt.Errorf("failed to get wallet intelligence: %w", err)
	}
	return w, nil
}

// MergeSource records a repeat collection of an existing wallet: the new
// source is appended to additional_sources (if not already present) and the
// connection count is incremented.
func (r *IntelligenceRepository) MergeSource(ctx context.Context, address string, source types.CollectionSource, userID *string) error {
	if err := ValidateWalletAddress(address); err != nil {
		return err
	}

	query := `
		UPDATE wallet_intelligence
		SET additional_sources = CASE
				WHEN collection_source = $2 OR $2 = ANY(additional_sources) THEN additional_sources
				ELSE array_append(additional_sources, $2)
			END,
			connection_count = connection_count + 1,
			associated_user_id = COALESCE($3, associated_user_id),
			updated_at = $4
		WHERE wallet_address = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, address, string(source), userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to merge collection source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", address)
	}
	return nil
}

// MarkProcessing transitions a record into the processing state
func (r *IntelligenceRepository) MarkProcessing(ctx context.Context, address string) error {
	if err := ValidateWalletAddress(address); err != nil {
		return err
	}

	query := `
		UPDATE wallet_intelligence
		SET analysis_status = $2, error_message = NULL, updated_at = $3
		WHERE wallet_address = $1
	`
	_, err := r.db.Pool().Exec(ctx, query, address, types.AnalysisProcessing, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark wallet processing: %w", err)
	}
	return nil
}

// MarkFailed records a terminal analysis failure for a wallet
func (r *IntelligenceRepository) MarkFailed(ctx context.Context, address string, errorMessage string) error {
	if err := ValidateWalletAddress(address); err != nil {
		return err
	}

	query := `
		UPDATE wallet_intelligence
		SET analysis_status = $2, error_message = $3, updated_at = $4
		WHERE wallet_address = $1
	`
	_, err := r.db.Pool().Exec(ctx, query, address, types.AnalysisFailed, errorMessage, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark wallet failed: %w", err)
	}
	return nil
}

// UpdateScores writes a completed analysis: scores, risk level, marketing
// labels, and the raw analysis blob.
func (r *IntelligenceRepository) UpdateScores(ctx context.Context, w *models.WalletIntelligence) error {
	if err := ValidateWalletAddress(w.WalletAddress); err != nil {
		return err
	}

	now := time.Now()
	w.LastAnalyzed = &now
	w.UpdatedAt = now
	w.AnalysisStatus = types.AnalysisCompleted

	query := `
		UPDATE wallet_intelligence
		SET trading_score = $2, portfolio_score = $3, liquidity_score = $4,
			activity_score = $5, defi_engagement_score = $6, social_credit_score = $7,
			risk_level = $8, analysis_status = $9,
			marketing_segment = $10, communication_style = $11, preferred_token_types = $12,
			risk_tolerance = $13, investment_profile = $14, portfolio_size = $15,
			analysis_data = $16, error_message = NULL,
			last_analyzed = $17, updated_at = $18
		WHERE wallet_address = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		w.WalletAddress,
		w.TradingScore,
		w.PortfolioScore,
		w.LiquidityScore,
		w.ActivityScore,
		w.DeFiEngagementScore,
		w.SocialCreditScore,
		w.RiskLevel,
		w.AnalysisStatus,
		w.MarketingSegment,
		w.CommunicationStyle,
		w.PreferredTokenTypes,
		w.RiskTolerance,
		w.InvestmentProfile,
		w.PortfolioSize,
		w.AnalysisData,
		w.LastAnalyzed,
		w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update wallet scores: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", w.WalletAddress)
	}
	return nil
}

// IntelligenceFilters defines filters for listing wallet intelligence records
type IntelligenceFilters struct {
	RiskLevel *types.RiskLevel
	Source    *types.CollectionSource
	Status    *types.AnalysisStatus
	MinScore  *int
	BatchID   *string
	Limit     int
	Offset    int
}

// List retrieves wallet intelligence records with optional filters and pagination
func (r *IntelligenceRepository) List(ctx context.Context, filters *IntelligenceFilters) ([]*models.WalletIntelligence, error) {
	query := `SELECT ` + intelligenceColumns + ` FROM wallet_intelligence WHERE 1=1`
	args := []any{}
	argPos := 1

	if filters != nil {
		if filters.RiskLevel != nil {
			query += fmt.Sprintf(" AND risk_level = $%d", argPos)
			args = append(args, *filters.RiskLevel)
			argPos++
		}
		if filters.Source != nil {
			query += fmt.Sprintf(" AND (collection_source = $%d OR $%d = ANY(additional_sources))", argPos, argPos)
			args = append(args, string(*filters.Source))
			argPos++
		}
		if filters.Status != nil {
			query += fmt.Sprintf(" AND analysis_status = $%d", argPos)
			args = append(args, *filters.Status)
			argPos++
		}
		if filters.MinScore != nil {
			query += fmt.Sprintf(" AND social_credit_score >= $%d", argPos)
			args = append(args, *filters.MinScore)
			argPos++
		}
		if filters.BatchID != nil {
			query += fmt.Sprintf(" AND batch_id = $%d", argPos)
			args = append(args, *filters.BatchID)
			argPos++
		}
	}

	query += " ORDER BY social_credit_score DESC, wallet_address"

	if filters != nil {
		if filters.Limit > 0 {
			query += fmt.Sprintf(" LIMIT $%d", argPos)
			args = append(args, filters.Limit)
			argPos++
		}
		if filters.Offset > 0 {
			query += fmt.Sprintf(" OFFSET $%d", argPos)
			args = append(args, filters.Offset)
		}
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet intelligence: %w", err)
	}
	defer rows.Close()

	var wallets []*models.WalletIntelligence
	for rows.Next() {
		w, err := scanIntelligence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet intelligence: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// Count returns the number of records matching the filters (ignoring pagination)
func (r *IntelligenceRepository) Count(ctx context.Context, filters *IntelligenceFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM wallet_intelligence WHERE 1=1`
	args := []any{}
	argPos := 1

	if filters != nil {
		if filters.RiskLevel != nil {
			query += fmt.Sprintf(" AND risk_level = $%d", argPos)
			args = append(args, *filters.RiskLevel)
			argPos++
		}
		if filters.Source != nil {
			query += fmt.Sprintf(" AND (collection_source = $%d OR $%d = ANY(additional_sources))", argPos, argPos)
			args = append(args, string(*filters.Source))
			argPos++
		}
		if filters.Status != nil {
			query += fmt.Sprintf(" AND analysis_status = $%d", argPos)
			args = append(args, *filters.Status)
			argPos++
		}
		if filters.MinScore != nil {
			query += fmt.Sprintf(" AND social_credit_score >= $%d", argPos)
			args = append(args, *filters.MinScore)
			argPos++
		}
		if filters.BatchID != nil {
			query += fmt.Sprintf(" AND batch_id = $%d", argPos)
			args = append(args, *filters.BatchID)
		}
	}

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count wallet intelligence: %w", err)
	}
	return count, nil
}

// ListStale returns addresses of completed wallets whose last analysis is
// older than the cutoff. Used by the periodic re-analysis sweep.
func (r *IntelligenceRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT wallet_address
		FROM wallet_intelligence
		WHERE analysis_status = $1 AND last_analyzed < $2
		ORDER BY last_analyzed ASC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, types.AnalysisCompleted, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale wallets: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan wallet address: %w", err)
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

// IntelligenceStats holds aggregate dashboard statistics
type IntelligenceStats struct {
	TotalWallets    int64            `json:"totalWallets"`
	AnalyzedWallets int64            `json:"analyzedWallets"`
	PendingWallets  int64            `json:"pendingWallets"`
	FailedWallets   int64            `json:"failedWallets"`
	AverageScore    float64          `json:"averageScore"`
	RiskBreakdown   map[string]int64 `json:"riskBreakdown"`
	SourceBreakdown map[string]int64 `json:"sourceBreakdown"`
}

// Stats computes aggregate statistics across all wallet intelligence records
func (r *IntelligenceRepository) Stats(ctx context.Context) (*IntelligenceStats, error) {
	stats := &IntelligenceStats{
		RiskBreakdown:   make(map[string]int64),
		SourceBreakdown: make(map[string]int64),
	}

	query := `
		SELECT COUNT(*),
			   COUNT(*) FILTER (WHERE analysis_status = 'completed'),
			   COUNT(*) FILTER (WHERE analysis_status IN ('pending_analysis', 'processing')),
			   COUNT(*) FILTER (WHERE analysis_status = 'failed'),
			   COALESCE(AVG(social_credit_score) FILTER (WHERE analysis_status = 'completed'), 0)
		FROM wallet_intelligence
	`
	err := r.db.Pool().QueryRow(ctx, query).Scan(
		&stats.TotalWallets,
		&stats.AnalyzedWallets,
		&stats.PendingWallets,
		&stats.FailedWallets,
		&stats.AverageScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute wallet stats: %w", err)
	}

	riskQuery := `SELECT risk_level, COUNT(*) FROM wallet_intelligence GROUP BY risk_level`
	rows, err := r.db.Pool().Query(ctx, riskQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to compute risk breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan risk breakdown: %w", err)
		}
		stats.RiskBreakdown[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sourceQuery := `SELECT collection_source, COUNT(*) FROM wallet_intelligence GROUP BY collection_source`
	srcRows, err := r.db.Pool().Query(ctx, sourceQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to compute source breakdown: %w", err)
	}
	defer srcRows.Close()

	for srcRows.Next() {
		var source string
		var count int64
		if err := srcRows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source breakdown: %w", err)
		}
		stats.SourceBreakdown[source] = count
	}
	return stats, srcRows.Err()
}

// Delete removes a wallet intelligence record
func (r *IntelligenceRepository) Delete(ctx context.Context, address string) error {
	if err := ValidateWalletAddress(address); err != nil {
		return err
	}

	query := `DELETE FROM wallet_intelligence WHERE wallet_address = $1`
	result, err := r.db.Pool().Exec(ctx, query, address)
	if err != nil {
		return fmt.Errorf("failed to delete wallet intelligence: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", address)
	}
	return nil
}
