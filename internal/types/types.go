// Package types provides common type definitions for the wallet intelligence system.
package types

import "time"

// RiskLevel buckets a wallet's assessed risk. It acts as a multiplicative
// penalty/bonus on the composite social credit score.
type RiskLevel string

const (
	// RiskLow represents a wallet with a clean activity profile
	RiskLow RiskLevel = "low"
	// RiskMedium represents a wallet with minor risk indicators
	RiskMedium RiskLevel = "medium"
	// RiskHigh represents a wallet with several risk indicators
	RiskHigh RiskLevel = "high"
	// RiskCritical represents a wallet with strong risk indicators
	RiskCritical RiskLevel = "critical"
	// RiskUnknown represents a wallet that has not been analyzed yet
	RiskUnknown RiskLevel = "unknown"
)

// Valid reports whether the risk level is one of the known buckets.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical, RiskUnknown:
		return true
	}
	return false
}

// Multiplier returns the composite-score factor for the risk level.
// Ordering is part of the scoring contract: critical < high < medium < low.
func (r RiskLevel) Multiplier() float64 {
	switch r {
	case RiskCritical:
		return 0.3
	case RiskHigh:
		return 0.6
	case RiskMedium:
		return 0.8
	case RiskLow:
		return 1.1
	default:
		return 1.0
	}
}

// CollectionSource records how a wallet address entered the system.
type CollectionSource string

const (
	// SourceFlutterbyeConnect represents addresses pushed by the Flutterbye platform webhook
	SourceFlutterbyeConnect CollectionSource = "flutterbye_connect"
	// SourcePerpetraderConnect represents addresses pushed by the PerpeTrader platform webhook
	SourcePerpetraderConnect CollectionSource = "perpetrader_connect"
	// SourceManualEntry represents addresses entered by an operator
	SourceManualEntry CollectionSource = "manual_entry"
	// SourceCSVUpload represents addresses ingested from a CSV batch
	SourceCSVUpload CollectionSource = "csv_upload"
	// SourceTokenAnalysis represents addresses discovered during token holder analysis
	SourceTokenAnalysis CollectionSource = "token_analysis"
	// SourceAutomatic represents addresses re-enqueued by the periodic sweep
	SourceAutomatic CollectionSource = "automatic_collection"
)

// Priority orders analysis queue items. Higher values are claimed first.
type Priority int

const (
	// PriorityLow is used for bulk CSV ingestion
	PriorityLow Priority = 1
	// PriorityMedium is used for secondary platform webhooks
	PriorityMedium Priority = 2
	// PriorityHigh is used for primary platform webhooks
	PriorityHigh Priority = 3
	// PriorityCritical is used for manual entry and forced re-analysis
	PriorityCritical Priority = 4
)

// PriorityForSource maps a collection source to its analysis priority.
func PriorityForSource(source CollectionSource) Priority {
	switch source {
	case SourceManualEntry:
		return PriorityCritical
	case SourceFlutterbyeConnect:
		return PriorityHigh
	case SourcePerpetraderConnect:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// AnalysisStatus tracks the lifecycle of a wallet intelligence record.
type AnalysisStatus string

const (
	// AnalysisPending represents a record waiting for its first analysis
	AnalysisPending AnalysisStatus = "pending_analysis"
	// AnalysisProcessing represents a record currently being analyzed
	AnalysisProcessing AnalysisStatus = "processing"
	// AnalysisCompleted represents a record with a populated score
	AnalysisCompleted AnalysisStatus = "completed"
	// AnalysisFailed represents a record whose analysis exhausted its retries
	AnalysisFailed AnalysisStatus = "failed"
)

// QueueStatus tracks the lifecycle of an analysis queue item.
// Transitions: queued -> processing -> completed | queued (retry) | failed.
type QueueStatus string

const (
	// QueueStatusQueued represents an item waiting to be claimed
	QueueStatusQueued QueueStatus = "queued"
	// QueueStatusProcessing represents an item claimed by a worker
	QueueStatusProcessing QueueStatus = "processing"
	// QueueStatusCompleted represents a successfully analyzed item
	QueueStatusCompleted QueueStatus = "completed"
	// QueueStatusFailed represents an item whose attempts are exhausted
	QueueStatusFailed QueueStatus = "failed"
)

// AccessTier selects the API rate-limit bucket for a caller.
type AccessTier string

const (
	// TierFree is the default tier for unauthenticated callers
	TierFree AccessTier = "free"
	// TierPartner is for platform integrations pushing webhooks
	TierPartner AccessTier = "partner"
	// TierAdmin is for internal dashboard and batch tooling
	TierAdmin AccessTier = "admin"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// TokenShare is one entry of a wallet's top-token percentage breakdown.
type TokenShare struct {
	Mint    string  `json:"mint"`
	Symbol  string  `json:"symbol"`
	Percent float64 `json:"percent"` // share of the wallet's token portfolio, 0-100
}

// DeFiActivity summarizes a wallet's DeFi protocol usage.
type DeFiActivity struct {
	DexCount           int  `json:"dexCount"` // distinct DEX programs interacted with
	LiquidityProviding bool `json:"liquidityProviding"`
	Staking            bool `json:"staking"`
	Lending            bool `json:"lending"`
	ProtocolsUsed      int  `json:"protocolsUsed"` // distinct DeFi programs overall
}

// WalletSnapshot is the on-chain activity snapshot the scorer consumes.
// Field names and types are a contract: the deterministic scorer and the
// AI prompt builder both depend on this shape.
type WalletSnapshot struct {
	Address              string       `json:"address"`
	BalanceSOL           float64      `json:"balanceSol"`
	TokenCount           int          `json:"tokenCount"`
	NFTCount             int          `json:"nftCount"`
	TxCount              int64        `json:"txCount"`
	SuccessRate          float64      `json:"successRate"` // fraction of successful transactions, 0-1
	TxLast30Days         int          `json:"txLast30Days"`
	AccountAgeDays       int          `json:"accountAgeDays"`
	UniqueCounterparties int          `json:"uniqueCounterparties"`
	TopTokens            []TokenShare `json:"topTokens"`
	DeFi                 DeFiActivity `json:"defi"`
	RiskIndicators       []string     `json:"riskIndicators"`
	GatheredAt           time.Time    `json:"gatheredAt"`
}

// AIInsights holds the qualitative labels produced by the interpretation
// step. Advisory only: the deterministic scorer is the authoritative path,
// and the risk assessment overrides it only above a confidence threshold.
type AIInsights struct {
	BehaviorPattern     string    `json:"behaviorPattern"`
	RiskAssessment      RiskLevel `json:"riskAssessment"`
	PortfolioQuality    string    `json:"portfolioQuality"`
	MarketingSegment    string    `json:"marketingSegment"`
	CommunicationStyle  string    `json:"communicationStyle"`
	PreferredTokenTypes []string  `json:"preferredTokenTypes"`
	RiskTolerance       string    `json:"riskTolerance"`
	InvestmentProfile   string    `json:"investmentProfile"`
	InfluenceScore      float64   `json:"influenceScore"`  // 0-100
	ConfidenceScore     float64   `json:"confidenceScore"` // 0-1
	Fallback            bool      `json:"fallback"`        // true when defaults were substituted
}

// ScoreBundle is the output of the deterministic scorer.
type ScoreBundle struct {
	TradingScore        float64   `json:"tradingScore"`
	PortfolioScore      float64   `json:"portfolioScore"`
	LiquidityScore      float64   `json:"liquidityScore"`
	ActivityScore       float64   `json:"activityScore"`
	DeFiEngagementScore float64   `json:"defiEngagementScore"`
	RiskLevel           RiskLevel `json:"riskLevel"`
	SocialCreditScore   float64   `json:"socialCreditScore"` // composite, clamped to [0, 1000]
	PortfolioSize       string    `json:"portfolioSize"`     // bucket: empty/small/medium/large/whale
}
