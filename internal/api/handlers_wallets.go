package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/storage"
	"github.com/wallet-intelligence/internal/types"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxHistoryLimit = 200
)

// ListWalletsResponse is the paginated wallet list response
type ListWalletsResponse struct {
	Wallets []*models.WalletIntelligence `json:"wallets"`
	Total   int64                        `json:"total"`
	Limit   int                          `json:"limit"`
	Offset  int                          `json:"offset"`
}

// parseListFilters builds repository filters from query parameters
func parseListFilters(r *http.Request) (*storage.IntelligenceFilters, error) {
	filters := &storage.IntelligenceFilters{
		Limit: defaultPageSize,
	}

	q := r.URL.Query()

	if v := q.Get("riskLevel"); v != "" {
		level := types.RiskLevel(v)
		if !level.Valid() {
			return nil, fmt.Errorf("invalid riskLevel: %s", v)
		}
		filters.RiskLevel = &level
	}
	if v := q.Get("source"); v != "" {
		source := types.CollectionSource(v)
		filters.Source = &source
	}
	if v := q.Get("status"); v != "" {
		status := types.AnalysisStatus(v)
		filters.Status = &status
	}
	if v := q.Get("minScore"); v != "" {
		minScore, err := strconv.Atoi(v)
		if err != nil || minScore < 0 {
			return nil, fmt.Errorf("invalid minScore: %s", v)
		}
		filters.MinScore = &minScore
	}
	if v := q.Get("batchId"); v != "" {
		batchID := v
		filters.BatchID = &batchID
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return nil, fmt.Errorf("invalid limit: %s", v)
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
		filters.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("invalid offset: %s", v)
		}
		filters.Offset = offset
	}

	return filters, nil
}

// handleListWallets lists wallet intelligence records sorted by score,
// with optional filters. Results are cached per query string.
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	filters, err := parseListFilters(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	cacheKey := s.cache.GenerateListKey(r.URL.RawQuery)
	var cached ListWalletsResponse
	if hit, err := s.cache.Get(r.Context(), cacheKey, &cached); err == nil && hit {
		respondJSON(w, http.StatusOK, &cached)
		return
	}

	wallets, err := s.wallets.List(r.Context(), filters)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	total, err := s.wallets.Count(r.Context(), filters)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	if wallets == nil {
		wallets = []*models.WalletIntelligence{}
	}
	response := &ListWalletsResponse{
		Wallets: wallets,
		Total:   total,
		Limit:   filters.Limit,
		Offset:  filters.Offset,
	}

	if err := s.cache.Set(r.Context(), cacheKey, response); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("failed to cache wallet list")
	}

	respondJSON(w, http.StatusOK, response)
}

// handleGetWallet retrieves a single wallet intelligence record
func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["walletAddress"]
	if err := storage.ValidateWalletAddress(address); err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	cacheKey := s.cache.GenerateWalletKey(address)
	var cached models.WalletIntelligence
	if hit, err := s.cache.Get(r.Context(), cacheKey, &cached); err == nil && hit {
		respondJSON(w, http.StatusOK, &cached)
		return
	}

	wallet, err := s.wallets.Get(r.Context(), address)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}
	if wallet == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Wallet not found: "+address, nil)
		return
	}

	if err := s.cache.Set(r.Context(), cacheKey, wallet); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("failed to cache wallet record")
	}

	respondJSON(w, http.StatusOK, wallet)
}

// handleGetWalletHistory retrieves the score history for a wallet from the
// append-only ClickHouse log, newest first.
func (s *Server) handleGetWalletHistory(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["walletAddress"]
	if err := storage.ValidateWalletAddress(address); err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	limit := defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid limit: "+v, nil)
			return
		}
		limit = parsed
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
	}

	events, err := s.history.GetByWallet(r.Context(), address, limit)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}
	if events == nil {
		events = []*models.ScoreEvent{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"walletAddress": address,
		"events":        events,
	})
}

// handleStats serves aggregate dashboard statistics, cached briefly to keep
// repeated dashboard polls off Postgres.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	cacheKey := s.cache.GenerateStatsKey()
	var cached storage.IntelligenceStats
	if hit, err := s.cache.Get(r.Context(), cacheKey, &cached); err == nil && hit {
		respondJSON(w, http.StatusOK, &cached)
		return
	}

	stats, err := s.wallets.Stats(r.Context())
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	if err := s.cache.Set(r.Context(), cacheKey, stats); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("failed to cache stats")
	}

	respondJSON(w, http.StatusOK, stats)
}

// exportCSVHeader is the fixed column order for CSV exports. Consumers key
// on these names, so changes here are breaking.
var exportCSVHeader = []string{
	"wallet_address",
	"social_credit_score",
	"trading_score",
	"portfolio_score",
	"liquidity_score",
	"activity_score",
	"defi_engagement_score",
	"risk_level",
	"analysis_status",
	"collection_source",
	"collected_at",
	"last_analyzed",
}

// handleExport exports wallet intelligence records as JSON or CSV
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "format must be json or csv", nil)
		return
	}

	filters, err := parseListFilters(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	// Exports are not paginated by default
	if r.URL.Query().Get("limit") == "" {
		filters.Limit = 0
	}

	wallets, err := s.wallets.List(r.Context(), filters)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	if format == "json" {
		if wallets == nil {
			wallets = []*models.WalletIntelligence{}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"wallets":    wallets,
			"count":      len(wallets),
			"exportedAt": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="wallet-intelligence-export.csv"`)
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(exportCSVHeader); err != nil {
		return
	}
	for _, wallet := range wallets {
		lastAnalyzed := ""
		if wallet.LastAnalyzed != nil {
			lastAnalyzed = wallet.LastAnalyzed.UTC().Format(time.RFC3339)
		}
		record := []string{
			wallet.WalletAddress,
			strconv.Itoa(wallet.SocialCreditScore),
			strconv.Itoa(wallet.TradingScore),
			strconv.Itoa(wallet.PortfolioScore),
			strconv.Itoa(wallet.LiquidityScore),
			strconv.Itoa(wallet.ActivityScore),
			strconv.Itoa(wallet.DeFiEngagementScore),
			string(wallet.RiskLevel),
			string(wallet.AnalysisStatus),
			string(wallet.CollectionSource),
			wallet.CollectedAt.UTC().Format(time.RFC3339),
			lastAnalyzed,
		}
		if err := writer.Write(record); err != nil {
			return
		}
	}
}

// handleListBatches lists CSV upload batches
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageSize
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid limit: "+v, nil)
			return
		}
		limit = parsed
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid offset: "+v, nil)
			return
		}
		offset = parsed
	}

	batches, err := s.batches.List(r.Context(), limit, offset)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}
	if batches == nil {
		batches = []*models.WalletBatch{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"limit":   limit,
		"offset":  offset,
	})
}

// handleGetBatch retrieves one CSV upload batch with its progress counters
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["batchId"]

	batch, err := s.batches.Get(r.Context(), id)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}
	if batch == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Batch not found: "+id, nil)
		return
	}

	respondJSON(w, http.StatusOK, batch)
}
