// Package ai provides LLM-based qualitative interpretation of wallet
// activity snapshots. The interpretation is advisory: it never blocks the
// deterministic scoring path, and any failure degrades to fixed defaults.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wallet-intelligence/internal/config"
	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/types"
)

const (
	anthropicURL = "https://api.anthropic.com/v1/messages"
	openAIURL    = "https://api.openai.com/v1/chat/completions"

	defaultAnthropicModel = "claude-sonnet-4-20250514"
	defaultOpenAIModel    = "gpt-4o"
)

// Interpreter produces qualitative wallet insights from a snapshot.
type Interpreter interface {
	Interpret(ctx context.Context, snapshot *types.WalletSnapshot) *types.AIInsights
	IsEnabled() bool
}

// Engine talks to an LLM provider (Anthropic or OpenAI) over raw HTTP.
type Engine struct {
	cfg    *config.AIConfig
	client *http.Client

	provider string
	apiKey   string
	model    string
	url      string
}

// NewEngine creates an AI engine. The provider is taken from config or
// auto-detected from whichever API key is set; with no key the engine is
// disabled and Interpret always returns fallback insights.
func NewEngine(cfg *config.AIConfig) *Engine {
	e := &Engine{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}

	provider := cfg.Provider
	if provider == "" {
		if cfg.AnthropicAPIKey != "" {
			provider = "anthropic"
		} else if cfg.OpenAIAPIKey != "" {
			provider = "openai"
		}
	}

	switch provider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			break
		}
		e.provider = "anthropic"
		e.apiKey = cfg.AnthropicAPIKey
		e.model = cfg.Model
		if e.model == "" {
			e.model = defaultAnthropicModel
		}
		e.url = anthropicURL
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			break
		}
		e.provider = "openai"
		e.apiKey = cfg.OpenAIAPIKey
		e.model = cfg.Model
		if e.model == "" {
			e.model = defaultOpenAIModel
		}
		e.url = openAIURL
	}

	logger := logging.GetGlobalLogger()
	if e.provider != "" {
		logger.WithFields(map[string]interface{}{
			"provider": e.provider,
			"model":    e.model,
		}).Info("AI engine initialized")
	} else {
		logger.Warn("no AI provider configured, interpretation runs in fallback mode")
	}

	return e
}

// IsEnabled reports whether an LLM provider is configured
func (e *Engine) IsEnabled() bool {
	return e.provider != ""
}

// Interpret produces insights for a snapshot. It never returns an error:
// any provider failure, malformed response, or out-of-range field results
// in FallbackInsights with the Fallback flag set.
func (e *Engine) Interpret(ctx context.Context, snapshot *types.WalletSnapshot) *types.AIInsights {
	logger := logging.FromContext(ctx).WithField("wallet", snapshot.Address)

	if !e.IsEnabled() {
		return FallbackInsights()
	}

	resp, err := e.callLLM(ctx, buildPrompt(snapshot))
	if err != nil {
		logger.WithError(err).Warn("AI interpretation failed, using fallback")
		return FallbackInsights()
	}

	var insights types.AIInsights
	if err := json.Unmarshal(extractJSON(resp), &insights); err != nil {
		logger.WithError(err).Warn("AI response was not valid JSON, using fallback")
		return FallbackInsights()
	}

	sanitize(&insights)
	return &insights
}

// FallbackInsights returns the conservative defaults used when no AI
// interpretation is available.
func FallbackInsights() *types.AIInsights {
	return &types.AIInsights{
		BehaviorPattern:    "unknown",
		RiskAssessment:     types.RiskUnknown,
		PortfolioQuality:   "unknown",
		MarketingSegment:   "general",
		CommunicationStyle: "neutral",
		RiskTolerance:      "unknown",
		InvestmentProfile:  "unknown",
		InfluenceScore:     0,
		ConfidenceScore:    0,
		Fallback:           true,
	}
}

func buildPrompt(s *types.WalletSnapshot) string {
	var topTokens strings.Builder
	for _, t := range s.TopTokens {
		topTokens.WriteString(fmt.Sprintf("  - %s: %.1f%%\n", t.Symbol, t.Percent))
	}
	if topTokens.Len() == 0 {
		topTokens.WriteString("  (none)\n")
	}

	risks := strings.Join(s.RiskIndicators, ", ")
	if risks == "" {
		risks = "(none)"
	}

	return fmt.Sprintf(`You are an expert Solana on-chain analyst. Analyze this wallet's activity snapshot and classify its owner.

WALLET: %s
- SOL balance: %.4f
- Token holdings: %d fungible tokens, %d NFTs
- Transactions (recent window): %d total, %.0f%% successful, %d in last 30 days
- Account age: %d days
- Unique counterparties: %d
- DeFi: %d DEXs used, LP=%v, staking=%v, lending=%v, %d protocols total
- Top token shares:
%s- Risk indicators: %s

Return a JSON object with exactly these fields:
{
  "behaviorPattern": "trader|holder|flipper|bot|inactive|mixed",
  "riskAssessment": "low|medium|high|critical",
  "portfolioQuality": "diversified|concentrated|speculative|stable|empty",
  "marketingSegment": "defi_power_user|nft_collector|casual_trader|whale|newcomer|general",
  "communicationStyle": "technical|casual|visual|neutral",
  "preferredTokenTypes": ["stablecoins","memecoins","bluechips","nfts"],
  "riskTolerance": "conservative|moderate|aggressive|unknown",
  "investmentProfile": "long_term|swing|day_trader|unknown",
  "influenceScore": 0-100,
  "confidenceScore": 0.0-1.0

}

Set confidenceScore low when the snapshot has little activity to judge from.
Return ONLY valid JSON, no other text.`,
		s.Address,
		s.BalanceSOL,
		s.TokenCount, s.NFTCount,
		s.TxCount, s.SuccessRate*100, s.TxLast30Days,
		s.AccountAgeDays,
		s.UniqueCounterparties,
		s.DeFi.DexCount, s.DeFi.LiquidityProviding, s.DeFi.Staking, s.DeFi.Lending, s.DeFi.ProtocolsUsed,
		topTokens.String(),
		risks,
	)
}

// sanitize clamps and defaults fields so downstream code never sees
// out-of-range model output.
func sanitize(insights *types.AIInsights) {
	if !insights.RiskAssessment.Valid() || insights.RiskAssessment == "" {
		insights.RiskAssessment = types.RiskUnknown
	}
	if insights.ConfidenceScore < 0 {
		insights.ConfidenceScore = 0
	}
	if insights.ConfidenceScore > 1 {
		insights.ConfidenceScore = 1
	}
	if insights.InfluenceScore < 0 {
		insights.InfluenceScore = 0
	}
	if insights.InfluenceScore > 100 {
		insights.InfluenceScore = 100
	}
	if insights.BehaviorPattern == "" {
		insights.BehaviorPattern = "unknown"
	}
	if insights.MarketingSegment == "" {
		insights.MarketingSegment = "general"
	}
	if insights.CommunicationStyle == "" {
		insights.CommunicationStyle = "neutral"
	}
	if insights.RiskTolerance == "" {
		insights.RiskTolerance = "unknown"
	}
	if insights.InvestmentProfile == "" {
		insights.InvestmentProfile = "unknown"
	}
	if insights.PortfolioQuality == "" {
		insights.PortfolioQuality = "unknown"
	}
}

func (e *Engine) callLLM(ctx context.Context, prompt string) (string, error) {
	switch e.provider {
	case "anthropic":
		return e.callAnthropic(ctx, prompt)
	case "openai":
		return e.callOpenAI(ctx, prompt)
	default:
		return "", fmt.Errorf("no AI provider configured")
	}
}

func (e *Engine) callAnthropic(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":      e.model,
		"max_tokens": e.cfg.MaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("empty response from anthropic")
	}
	return result.Content[0].Text, nil
}

func (e *Engine) callOpenAI(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model": e.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens": e.cfg.MaxTokens,
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai API error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai")
	}
	return result.Choices[0].Message.Content, nil
}

// extractJSON strips markdown code fences and surrounding prose from an
// LLM response, returning the outermost JSON object.
func extractJSON(s string) []byte {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return []byte(s[start : end+1])
	}
	return []byte(s)
}
