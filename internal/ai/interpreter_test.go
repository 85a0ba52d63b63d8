package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wallet-intelligence/internal/config"
	"github.com/wallet-intelligence/internal/types"
)

func testAIConfig() *config.AIConfig {
	return &config.AIConfig{
		MaxTokens:      1024,
		RequestTimeout: 5 * time.Second,
	}
}

// TestEngine_DisabledFallsBack tests that an engine without API keys always
// produces fallback insights
func TestEngine_DisabledFallsBack(t *testing.T) {
	engine := NewEngine(testAIConfig())
	if engine.IsEnabled() {
		t.Fatal("engine enabled without API keys")
	}

	insights := engine.Interpret(context.Background(), &types.WalletSnapshot{Address: "test"})
	if !insights.Fallback {
		t.Error("fallback flag not set")
	}
	if insights.RiskAssessment != types.RiskUnknown {
		t.Errorf("risk = %v, want unknown", insights.RiskAssessment)
	}
	if insights.ConfidenceScore != 0 {
		t.Errorf("confidence = %v, want 0", insights.ConfidenceScore)
	}
}

// TestEngine_ProviderAutoDetect tests provider selection from API keys
func TestEngine_ProviderAutoDetect(t *testing.T) {
	cfg := testAIConfig()
	cfg.AnthropicAPIKey = "key"
	engine := NewEngine(cfg)
	if engine.provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", engine.provider)
	}
	if engine.model != defaultAnthropicModel {
		t.Errorf("model = %q, want default", engine.model)
	}

	cfg = testAIConfig()
	cfg.OpenAIAPIKey = "key"
	engine = NewEngine(cfg)
	if engine.provider != "openai" {
		t.Errorf("provider = %q, want openai", engine.provider)
	}
}

// TestEngine_InterpretAnthropic tests a successful interpretation round
// trip against a stubbed provider endpoint
func TestEngine_InterpretAnthropic(t *testing.T) {
	modelOutput := "```json\n{\"behaviorPattern\":\"trader\",\"riskAssessment\":\"low\",\"confidenceScore\":0.85,\"influenceScore\":150}\n```"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"text": modelOutput}},
		})
	}))
	defer server.Close()

	cfg := testAIConfig()
	cfg.AnthropicAPIKey = "test-key"
	engine := NewEngine(cfg)
	engine.url = server.URL

	insights := engine.Interpret(context.Background(), &types.WalletSnapshot{Address: "wallet"})
	if insights.Fallback {
		t.Fatal("successful interpretation marked fallback")
	}
	if insights.BehaviorPattern != "trader" {
		t.Errorf("behavior = %q, want trader", insights.BehaviorPattern)
	}
	if insights.RiskAssessment != types.RiskLow {
		t.Errorf("risk = %v, want low", insights.RiskAssessment)
	}
	if insights.ConfidenceScore != 0.85 {
		t.Errorf("confidence = %v, want 0.85", insights.ConfidenceScore)
	}
	// Out-of-range influence is clamped, empty labels are defaulted
	if insights.InfluenceScore != 100 {
		t.Errorf("influence = %v, want clamped to 100", insights.InfluenceScore)
	}
	if insights.MarketingSegment != "general" {
		t.Errorf("segment = %q, want defaulted to general", insights.MarketingSegment)
	}
}

// TestEngine_ProviderErrorFallsBack tests that HTTP errors degrade to
// fallback insights instead of failing the analysis
func TestEngine_ProviderErrorFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testAIConfig()
	cfg.AnthropicAPIKey = "test-key"
	engine := NewEngine(cfg)
	engine.url = server.URL

	insights := engine.Interpret(context.Background(), &types.WalletSnapshot{Address: "wallet"})
	if !insights.Fallback {
		t.Error("provider error did not fall back")
	}
}

// TestEngine_BadJSONFallsBack tests that non-JSON model output degrades to
// fallback insights
func TestEngine_BadJSONFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"text":"I cannot analyze this wallet."}]}`))
	}))
	defer server.Close()

	cfg := testAIConfig()
	cfg.AnthropicAPIKey = "test-key"
	engine := NewEngine(cfg)
	engine.url = server.URL

	insights := engine.Interpret(context.Background(), &types.WalletSnapshot{Address: "wallet"})
	if !insights.Fallback {
		t.Error("unparseable response did not fall back")
	}
}

// TestExtractJSON tests fence and prose stripping
func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", `Sure! {"a":1} Hope that helps.`, `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"no object at all", "no json here", "no json here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(extractJSON(tt.input))
			if got != tt.expected {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestSanitize tests clamping and defaulting of model output
func TestSanitize(t *testing.T) {
	insights := &types.AIInsights{
		RiskAssessment:  "apocalyptic",
		ConfidenceScore: 3.7,
		InfluenceScore:  -5,
	}
	sanitize(insights)

	if insights.RiskAssessment != types.RiskUnknown {
		t.Errorf("risk = %v, want unknown", insights.RiskAssessment)
	}
	if insights.ConfidenceScore != 1 {
		t.Errorf("confidence = %v, want clamped to 1", insights.ConfidenceScore)
	}
	if insights.InfluenceScore != 0 {
		t.Errorf("influence = %v, want clamped to 0", insights.InfluenceScore)
	}
	if insights.BehaviorPattern != "unknown" || insights.MarketingSegment != "general" {
		t.Errorf("empty labels not defaulted: %+v", insights)
	}
}
