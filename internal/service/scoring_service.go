// Package service implements the wallet analysis business logic.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/wallet-intelligence/internal/adapter"
	"github.com/wallet-intelligence/internal/ai"
	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/types"
)

// IntelligenceStore is the subset of the intelligence repository the
// scoring service needs.
type IntelligenceStore interface {
	Get(ctx context.Context, address string) (*models.WalletIntelligence, error)
	MarkProcessing(ctx context.Context, address string) error
	MarkFailed(ctx context.Context, address string, errorMessage string) error
	UpdateScores(ctx context.Context, w *models.WalletIntelligence) error
}

// ScoreEventStore appends completed analyses to the score history log.
// May be nil when ClickHouse is not deployed.
type ScoreEventStore interface {
	Insert(ctx context.Context, event *models.ScoreEvent) error
}

// WalletCacheInvalidator invalidates cached wallet reads after a score change
type WalletCacheInvalidator interface {
	InvalidateWallet(ctx context.Context, address string) error
}

// ScoringService runs the full analysis pipeline for a single wallet:
// gather snapshot, interpret, score, persist.
type ScoringService struct {
	provider            adapter.SnapshotProvider
	interpreter         ai.Interpreter
	store               IntelligenceStore
	history             ScoreEventStore
	cache               WalletCacheInvalidator
	confidenceThreshold float64
}

// NewScoringService creates a new scoring service. history and cache are
// optional.
func NewScoringService(
	provider adapter.SnapshotProvider,
	interpreter ai.Interpreter,
	store IntelligenceStore,
	history ScoreEventStore,
	cache WalletCacheInvalidator,
	confidenceThreshold float64,
) *ScoringService {
	return &ScoringService{
		provider:            provider,
		interpreter:         interpreter,
		store:               store,
		history:             history,
		cache:               cache,
		confidenceThreshold: confidenceThreshold,
	}
}

// ComputeScores derives the full score bundle from a snapshot and the AI
// insights. Pure and deterministic for a given input: the weights and caps
// below are a compatibility contract, do not adjust them independently.
func (s *ScoringService) ComputeScores(snapshot *types.WalletSnapshot, insights *types.AIInsights) types.ScoreBundle {
	trading := clampScore(TradingScore(snapshot))
	portfolio := clampScore(PortfolioScore(snapshot))
	liquidity := clampScore(LiquidityScore(snapshot))
	activity := clampScore(ActivityScore(snapshot))
	defi := clampScore(DeFiEngagementScore(snapshot))

	risk := s.resolveRiskLevel(snapshot, insights, trading)

	// The AI confidence scales the composite. When interpretation fell back
	// (no provider or a failed call) the deterministic path is authoritative
	// and the factor is 1.
	confidence := insights.ConfidenceScore
	if insights.Fallback {
		confidence = 1.0
	}

	composite := (trading*3 + portfolio*2.5 + liquidity*2 + activity*2.5) * risk.Multiplier() * confidence
	if composite < 0 {
		composite = 0
	}
	if composite > 1000 {
		composite = 1000
	}

	return types.ScoreBundle{
		TradingScore:        trading,
		PortfolioScore:      portfolio,
		LiquidityScore:      liquidity,
		ActivityScore:       activity,
		DeFiEngagementScore: defi,
		RiskLevel:           risk,
		SocialCreditScore:   composite,
		PortfolioSize:       PortfolioSizeBucket(snapshot),
	}
}

// resolveRiskLevel picks the risk level for scoring. The AI label is
// advisory: it wins only above the confidence threshold, otherwise the
// level is derived from the snapshot's risk indicators and trading score.
func (s *ScoringService) resolveRiskLevel(snapshot *types.WalletSnapshot, insights *types.AIInsights, trading float64) types.RiskLevel {
	if !insights.Fallback &&
		insights.RiskAssessment.Valid() &&
		insights.RiskAssessment != types.RiskUnknown &&
		insights.ConfidenceScore >= s.confidenceThreshold {
		return insights.RiskAssessment
	}
	return DeriveRiskLevel(len(snapshot.RiskIndicators), trading)
}

// TradingScore scores transaction volume, reliability, and recency.
// min(txCount/10, 30) + min(successRate*40, 40) + min(last30Days*2, 30)
func TradingScore(s *types.WalletSnapshot) float64 {
	return math.Min(float64(s.TxCount)/10, 30) +
		math.Min(s.SuccessRate*40, 40) +
		math.Min(float64(s.TxLast30Days)*2, 30)
}

// PortfolioScore scores holdings breadth and balance.
// min(tokenCount*3, 40) + min(balance*10, 30) + 15 if NFTs + defiProtocolsUsed
func PortfolioScore(s *types.WalletSnapshot) float64 {
	score := math.Min(float64(s.TokenCount)*3, 40) +
		math.Min(s.BalanceSOL*10, 30) +
		float64(s.DeFi.ProtocolsUsed)
	if s.NFTCount > 0 {
		score += 15
	}
	return score
}

// LiquidityScore scores liquid holdings.
// min(balance*20, 50) + top-token contribution (USDC share*0.3, others
// share*0.2) capped at 50
func LiquidityScore(s *types.WalletSnapshot) float64 {
	score := math.Min(s.BalanceSOL*20, 50)

	var tokenContribution float64
	for _, t := range s.TopTokens {
		if t.Symbol == "USDC" {
			tokenContribution += t.Percent * 0.3
		} else {
			tokenContribution += t.Percent * 0.2
		}
	}
	return score + math.Min(tokenContribution, 50)
}

// ActivityScore scores how alive the wallet is, with a freshness bonus
// that decays over account age.
// min(txCount/5, 40) + min(last30Days*3, 30) + max(0, 30 - ageDays/30)
func ActivityScore(s *types.WalletSnapshot) float64 {
	return math.Min(float64(s.TxCount)/5, 40) +
		math.Min(float64(s.TxLast30Days)*3, 30) +
		math.Max(0, 30-float64(s.AccountAgeDays)/30)
}

// DeFiEngagementScore scores protocol usage breadth.
// dexCount*10 + 20 if LP + 15 if staking + 25 if lending + min(protocols*2, 30)
func DeFiEngagementScore(s *types.WalletSnapshot) float64 {
	score := float64(s.DeFi.DexCount) * 10
	if s.DeFi.LiquidityProviding {
		score += 20
	}
	if s.DeFi.Staking {
		score += 15
	}
	if s.DeFi.Lending {
		score += 25
	}
	return score + math.Min(float64(s.DeFi.ProtocolsUsed)*2, 30)
}

// DeriveRiskLevel maps risk indicator count and trading score to a risk
// bucket when no trusted AI assessment is available.
func DeriveRiskLevel(indicatorCount int, tradingScore float64) types.RiskLevel {
	switch {
	case indicatorCount == 0 && tradingScore > 70:
		return types.RiskLow
	case indicatorCount <= 1 && tradingScore > 50:
		return types.RiskMedium
	case indicatorCount >= 3 || tradingScore < 30:
		return types.RiskCritical
	default:
		return types.RiskHigh
	}
}

// PortfolioSizeBucket classifies the wallet's holdings into a coarse bucket
func PortfolioSizeBucket(s *types.WalletSnapshot) string {
	switch {
	case s.BalanceSOL == 0 && s.TokenCount == 0:
		return "empty"
	case s.BalanceSOL < 1:
		return "small"
	case s.BalanceSOL < 10:
		return "medium"
	case s.BalanceSOL < 100:
		return "large"
	default:
		return "whale"
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// analysisBlob is the raw analysis payload stored alongside the scores
type analysisBlob struct {
	Snapshot *types.WalletSnapshot `json:"snapshot"`
	Insights *types.AIInsights     `json:"insights"`
	Scores   types.ScoreBundle     `json:"scores"`
}

// AnalyzeWallet runs the full pipeline for one wallet and persists the
// result. Storage failures are returned to the caller so queue retry
// semantics apply.
func (s *ScoringService) AnalyzeWallet(ctx context.Context, address string) (*models.WalletIntelligence, error) {
	logger := logging.FromContext(ctx).WithField("wallet", address)

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

	if err := s.store.MarkProcessing(ctx, address); err != nil {
		return nil, err
	}

	snapshot, err := s.provider.GatherSnapshot(ctx, address)
	if err != nil {
		if markErr := s.store.MarkFailed(ctx, address, err.Error()); markErr != nil {
			logger.WithError(markErr).Error("failed to record analysis failure")
		}
		return nil, fmt.Errorf("snapshot gathering failed: %w", err)
	}

	insights := s.interpreter.Interpret(ctx, snapshot)
	bundle := s.ComputeScores(snapshot, insights)

	blob, err := json.Marshal(analysisBlob{
		Snapshot: snapshot,
		Insights: insights,
		Scores:   bundle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize analysis data: %w", err)
	}

	record.TradingScore = int(math.Round(bundle.TradingScore))
	record.PortfolioScore = int(math.Round(bundle.PortfolioScore))
	record.LiquidityScore = int(math.Round(bundle.LiquidityScore))
	record.ActivityScore = int(math.Round(bundle.ActivityScore))
	record.DeFiEngagementScore = int(math.Round(bundle.DeFiEngagementScore))
	record.SocialCreditScore = int(math.Round(bundle.SocialCreditScore))
	record.RiskLevel = bundle.RiskLevel
	record.PortfolioSize = bundle.PortfolioSize
	record.MarketingSegment = insights.MarketingSegment
	record.CommunicationStyle = insights.CommunicationStyle
	record.PreferredTokenTypes = insights.PreferredTokenTypes
	record.RiskTolerance = insights.RiskTolerance
	record.InvestmentProfile = insights.InvestmentProfile
	record.AnalysisData = blob

	if err := s.store.UpdateScores(ctx, record); err != nil {
		return nil, err
	}

	if s.history != nil {
		event := &models.ScoreEvent{
			WalletAddress:       address,
			TradingScore:        record.TradingScore,
			PortfolioScore:      record.PortfolioScore,
			LiquidityScore:      record.LiquidityScore,
			ActivityScore:       record.ActivityScore,
			DeFiEngagementScore: record.DeFiEngagementScore,
			SocialCreditScore:   record.SocialCreditScore,
			RiskLevel:           record.RiskLevel,
			Confidence:          insights.ConfidenceScore,
			Fallback:            insights.Fallback,
			AnalyzedAt:          time.Now().UTC(),
		}
		if err := s.history.Insert(ctx, event); err != nil {
			// History is append-only telemetry; its failure must not fail
			// the analysis
			logger.WithError(err).Warn("failed to append score event")
		}
	}

	if s.cache != nil {
		if err := s.cache.InvalidateWallet(ctx, address); err != nil {
			logger.WithError(err).Warn("failed to invalidate wallet cache")
		}
	}

	logger.WithFields(map[string]interface{}{
		"socialCreditScore": record.SocialCreditScore,
		"riskLevel":         record.RiskLevel,
		"fallback":          insights.Fallback,
	}).Info("wallet analysis completed")

	return record, nil
}
