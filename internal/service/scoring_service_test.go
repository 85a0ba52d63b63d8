package service

import (
	"math"
	"testing"

	"github.com/wallet-intelligence/internal/types"
)

// TestTradingScore tests the trading sub-score formula
func TestTradingScore(t *testing.T) {
	tests := []struct {
		name     string
		snapshot types.WalletSnapshot
		expected float64
	}{
		{
			name:     "empty wallet",
			snapshot: types.WalletSnapshot{},
			expected: 0,
		},
		{
			name: "volume capped at 30",
			snapshot: types.WalletSnapshot{
				TxCount: 10000,
			},
			expected: 30,
		},
		{
			name: "perfect success rate",
			snapshot: types.WalletSnapshot{
				SuccessRate: 1.0,
			},
			expected: 40,
		},
		{
			name: "recent activity capped at 30",
			snapshot: types.WalletSnapshot{
				TxLast30Days: 100,
			},
			expected: 30,
		},
		{
			name: "all components maxed",
			snapshot: types.WalletSnapshot{
				TxCount:      1000,
				SuccessRate:  1.0,
				TxLast30Days: 50,
			},
			expected: 100,
		},
		{
			name: "partial components",
			snapshot: types.WalletSnapshot{
				TxCount:      100, // 10
				SuccessRate:  0.5, // 20
				TxLast30Days: 5,   // 10
			},
			expected: 40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TradingScore(&tt.snapshot)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("TradingScore() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestPortfolioScore tests the portfolio sub-score formula
func TestPortfolioScore(t *testing.T) {
	tests := []struct {
		name     string
		snapshot types.WalletSnapshot
		expected float64
	}{
		{
			name:     "empty wallet",
			snapshot: types.WalletSnapshot{},
			expected: 0,
		},
		{
			name: "token count capped at 40",
			snapshot: types.WalletSnapshot{
				TokenCount: 100,
			},
			expected: 40,
		},
		{
			name: "NFT holder bonus",
			snapshot: types.WalletSnapshot{
				NFTCount: 3,
			},
			expected: 15,
		},
		{
			name: "balance capped at 30",
			snapshot: types.WalletSnapshot{
				BalanceSOL: 500,
			},
			expected: 30,
		},
		{
			name: "protocols add uncapped here",
			snapshot: types.WalletSnapshot{
				DeFi: types.DeFiActivity{ProtocolsUsed: 7},
			},
			expected: 7,
		},
		{
			name: "combined",
			snapshot: types.WalletSnapshot{
				TokenCount: 5,   // 15
				BalanceSOL: 2,   // 20
				NFTCount:   1,   // 15
				DeFi:       types.DeFiActivity{ProtocolsUsed: 3}, // 3
			},
			expected: 53,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PortfolioScore(&tt.snapshot)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("PortfolioScore() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestLiquidityScore tests the liquidity sub-score formula, including the
// USDC preference in the top-token contribution
func TestLiquidityScore(t *testing.T) {
	tests := []struct {
		name     string
		snapshot types.WalletSnapshot
		expected float64
	}{
		{
			name:     "empty wallet",
			snapshot: types.WalletSnapshot{},
			expected: 0,
		},
		{
			name: "balance capped at 50",
			snapshot: types.WalletSnapshot{
				BalanceSOL: 10,
			},
			expected: 50,
		},
		{
			name: "USDC weighted above other tokens",
			snapshot: types.WalletSnapshot{
				TopTokens: []types.TokenShare{
					{Symbol: "USDC", Percent: 100},
				},
			},
			expected: 30,
		},
		{
			name: "non-USDC token",
			snapshot: types.WalletSnapshot{
				TopTokens: []types.TokenShare{
					{Symbol: "BONK", Percent: 100},
				},
			},
			expected: 20,
		},
		{
			name: "token contribution capped at 50",
			snapshot: types.WalletSnapshot{
				TopTokens: []types.TokenShare{
					{Symbol: "USDC", Percent: 100},
					{Symbol: "USDT", Percent: 100},
					{Symbol: "BONK", Percent: 100},
				},
			},
			expected: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LiquidityScore(&tt.snapshot)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("LiquidityScore() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestActivityScore tests the activity sub-score formula, including the
// freshness bonus decay
func TestActivityScore(t *testing.T) {
	tests := []struct {
		name     string
		snapshot types.WalletSnapshot
		expected float64
	}{
		{
			name:     "brand new empty wallet gets full freshness bonus",
			snapshot: types.WalletSnapshot{},
			expected: 30,
		},
		{
			name: "freshness bonus fully decayed",
			snapshot: types.WalletSnapshot{
				AccountAgeDays: 900, // 30 - 900/30 = 0
			},
			expected: 0,
		},
		{
			name: "old account keeps non-negative bonus",
			snapshot: types.WalletSnapshot{
				AccountAgeDays: 3000,
			},
			expected: 0,
		},
		{
			name: "active wallet",
			snapshot: types.WalletSnapshot{
				TxCount:        100, // 20
				TxLast30Days:   5,   // 15
				AccountAgeDays: 300, // 30 - 10 = 20
			},
			expected: 55,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActivityScore(&tt.snapshot)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("ActivityScore() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestDeFiEngagementScore tests the DeFi sub-score formula
func TestDeFiEngagementScore(t *testing.T) {
	tests := []struct {
		name     string
		defi     types.DeFiActivity
		expected float64
	}{
		{
			name:     "no DeFi usage",
			defi:     types.DeFiActivity{},
			expected: 0,
		},
		{
			name: "all flags set",
			defi: types.DeFiActivity{
				DexCount:           2,
				LiquidityProviding: true,
				Staking:            true,
				Lending:            true,
				ProtocolsUsed:      5,
			},
			expected: 2*10 + 20 + 15 + 25 + 10,
		},
		{
			name: "protocol breadth capped at 30",
			defi: types.DeFiActivity{
				ProtocolsUsed: 100,
			},
			expected: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeFiEngagementScore(&types.WalletSnapshot{DeFi: tt.defi})
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("DeFiEngagementScore() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestDeriveRiskLevel tests the rule-based risk derivation
func TestDeriveRiskLevel(t *testing.T) {
	tests := []struct {
		name       string
		indicators int
		trading    float64
		expected   types.RiskLevel
	}{
		{"clean and active", 0, 80, types.RiskLow},
		{"clean but moderate trading", 0, 60, types.RiskMedium},
		{"one indicator with decent trading", 1, 60, types.RiskMedium},
		{"many indicators", 3, 90, types.RiskCritical},
		{"low trading score", 0, 10, types.RiskCritical},
		{"two indicators, mid trading", 2, 40, types.RiskHigh},
		{"boundary: trading exactly 70 is not low", 0, 70, types.RiskMedium},
		{"boundary: trading exactly 30 is not critical", 2, 30, types.RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveRiskLevel(tt.indicators, tt.trading)
			if got != tt.expected {
				t.Errorf("DeriveRiskLevel(%d, %v) = %v, want %v", tt.indicators, tt.trading, got, tt.expected)
			}
		})
	}
}

// TestPortfolioSizeBucket tests the holdings classification
func TestPortfolioSizeBucket(t *testing.T) {
	tests := []struct {
		name     string
		snapshot types.WalletSnapshot
		expected string
	}{
		{"no balance no tokens", types.WalletSnapshot{}, "empty"},
		{"tokens but no SOL", types.WalletSnapshot{TokenCount: 2}, "small"},
		{"dust balance", types.WalletSnapshot{BalanceSOL: 0.5}, "small"},
		{"a few SOL", types.WalletSnapshot{BalanceSOL: 5}, "medium"},
		{"tens of SOL", types.WalletSnapshot{BalanceSOL: 50}, "large"},
		{"hundreds of SOL", types.WalletSnapshot{BalanceSOL: 500}, "whale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PortfolioSizeBucket(&tt.snapshot)
			if got != tt.expected {
				t.Errorf("PortfolioSizeBucket() = %q, want %q", got, tt.expected)
			}
		})
	}
}

// TestComputeScores_FallbackConfidence verifies that fallback insights do
// not zero out the composite score: the deterministic path is authoritative
// when no AI assessment is available.
func TestComputeScores_FallbackConfidence(t *testing.T) {
	svc := NewScoringService(nil, nil, nil, nil, nil, 0.5)

	snapshot := &types.WalletSnapshot{
		TxCount:      500,
		SuccessRate:  0.95,
		TxLast30Days: 20,
		TokenCount:   8,
		BalanceSOL:   12,
	}

	fallback := &types.AIInsights{
		RiskAssessment:  types.RiskUnknown,
		ConfidenceScore: 0,
		Fallback:        true,
	}
	bundle := svc.ComputeScores(snapshot, fallback)
	if bundle.SocialCreditScore <= 0 {
		t.Errorf("fallback composite = %v, want > 0", bundle.SocialCreditScore)
	}

	// A confident AI run with the same deterministic inputs but a lower
	// confidence must scale the composite down.
	lowConfidence := &types.AIInsights{
		RiskAssessment:  types.RiskUnknown,
		ConfidenceScore: 0.5,
		Fallback:        false,
	}
	scaled := svc.ComputeScores(snapshot, lowConfidence)
	if scaled.SocialCreditScore >= bundle.SocialCreditScore {
		t.Errorf("low-confidence composite %v should be below fallback composite %v",
			scaled.SocialCreditScore, bundle.SocialCreditScore)
	}
}

// TestComputeScores_AIRiskOverride verifies the AI risk label only wins
// above the confidence threshold.
func TestComputeScores_AIRiskOverride(t *testing.T) {
	svc := NewScoringService(nil, nil, nil, nil, nil, 0.5)

	// Snapshot that derives to low risk: no indicators, trading > 70
	snapshot := &types.WalletSnapshot{
		TxCount:      1000,
		SuccessRate:  1.0,
		TxLast30Days: 50,
	}

	confident := &types.AIInsights{
		RiskAssessment:  types.RiskCritical,
		ConfidenceScore: 0.9,
	}
	bundle := svc.ComputeScores(snapshot, confident)
	if bundle.RiskLevel != types.RiskCritical {
		t.Errorf("confident AI label ignored: got %v, want critical", bundle.RiskLevel)
	}

	hesitant := &types.AIInsights{
		RiskAssessment:  types.RiskCritical,
		ConfidenceScore: 0.3,
	}
	bundle = svc.ComputeScores(snapshot, hesitant)
	if bundle.RiskLevel != types.RiskLow {
		t.Errorf("low-confidence AI label should not override: got %v, want low", bundle.RiskLevel)
	}

	unknown := &types.AIInsights{
		RiskAssessment:  types.RiskUnknown,
		ConfidenceScore: 0.9,
	}
	bundle = svc.ComputeScores(snapshot, unknown)
	if bundle.RiskLevel != types.RiskLow {
		t.Errorf("unknown AI label should not override: got %v, want low", bundle.RiskLevel)
	}
}
