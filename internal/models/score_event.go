package models

import (
	"time"

	"github.com/wallet-intelligence/internal/types"
)

// ScoreEvent is one row of the append-only score history log in ClickHouse.
// A row is written every time an analysis completes, so score drift over
// time can be queried per wallet.
type ScoreEvent struct {
	WalletAddress       string          `json:"walletAddress"`
	TradingScore        int             `json:"tradingScore"`
	PortfolioScore      int             `json:"portfolioScore"`
	LiquidityScore      int             `json:"liquidityScore"`
	ActivityScore       int             `json:"activityScore"`
	DeFiEngagementScore int             `json:"defiEngagementScore"`
	SocialCreditScore   int             `json:"socialCreditScore"`
	RiskLevel           types.RiskLevel `json:"riskLevel"`
	Confidence          float64         `json:"confidence"`
	Fallback            bool            `json:"fallback"` // AI interpretation fell back to defaults
	AnalyzedAt          time.Time       `json:"analyzedAt"`
}
