package models

import (
	"time"

	"github.com/wallet-intelligence/internal/types"
)

// WalletIntelligence is the scored reputation record for a wallet.
// One row per wallet address (unique index on wallet_address); re-collection
// merges metadata into the existing row rather than inserting a duplicate.
type WalletIntelligence struct {
	WalletAddress string `json:"walletAddress" db:"wallet_address"`

	// Sub-scores (each 0-100) and the composite social credit score (0-1000).
	TradingScore        int `json:"tradingScore" db:"trading_score"`
	PortfolioScore      int `json:"portfolioScore" db:"portfolio_score"`
	LiquidityScore      int `json:"liquidityScore" db:"liquidity_score"`
	ActivityScore       int `json:"activityScore" db:"activity_score"`
	DeFiEngagementScore int `json:"defiEngagementScore" db:"defi_engagement_score"`
	SocialCreditScore   int `json:"socialCreditScore" db:"social_credit_score"`

	RiskLevel      types.RiskLevel      `json:"riskLevel" db:"risk_level"`
	AnalysisStatus types.AnalysisStatus `json:"analysisStatus" db:"analysis_status"`

	// Marketing-oriented classification, AI-derived and advisory.
	MarketingSegment    string   `json:"marketingSegment,omitempty" db:"marketing_segment"`
	CommunicationStyle  string   `json:"communicationStyle,omitempty" db:"communication_style"`
	PreferredTokenTypes []string `json:"preferredTokenTypes,omitempty" db:"preferred_token_types"`
	RiskTolerance       string   `json:"riskTolerance,omitempty" db:"risk_tolerance"`
	InvestmentProfile   string   `json:"investmentProfile,omitempty" db:"investment_profile"`
	PortfolioSize       string   `json:"portfolioSize,omitempty" db:"portfolio_size"`

	// AnalysisData carries the raw snapshot + insights blob from the last run.
	AnalysisData []byte `json:"analysisData,omitempty" db:"analysis_data"`

	CollectionSource  types.CollectionSource `json:"collectionSource" db:"collection_source"`
	AdditionalSources []string               `json:"additionalSources,omitempty" db:"additional_sources"`
	ConnectionCount   int                    `json:"connectionCount" db:"connection_count"`
	AssociatedUserID  *string                `json:"associatedUserId,omitempty" db:"associated_user_id"`
	BatchID           *string                `json:"batchId,omitempty" db:"batch_id"`
	ErrorMessage      *string                `json:"errorMessage,omitempty" db:"error_message"`

	CollectedAt  time.Time  `json:"collectedAt" db:"collected_at"`
	LastAnalyzed *time.Time `json:"lastAnalyzed,omitempty" db:"last_analyzed"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}
