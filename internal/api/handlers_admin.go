package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wallet-intelligence/internal/storage"
	"github.com/wallet-intelligence/internal/types"
)

// handleAnalyzeWallet force-enqueues a known wallet for re-analysis at the
// highest priority. If the wallet is already queued its priority is raised
// instead of adding a duplicate item.
func (s *Server) handleAnalyzeWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["walletAddress"]
	if err := storage.ValidateWalletAddress(address); err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	item, err := s.collector.RequestAnalysis(r.Context(), address, types.PriorityCritical, callerID(r))
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"walletAddress": address,
		"queueItemId":   item.ID,
		"priority":      item.Priority,
		"status":        item.Status,
	})
}

// ProcessQueueRequest is the body for a synchronous queue drain
type ProcessQueueRequest struct {
	BatchSize int `json:"batchSize"`
}

// handleProcessQueue runs one synchronous drain pass over the analysis
// queue. Normally the background worker drains the queue on a schedule;
// this endpoint exists for dashboards and operational tooling.
func (s *Server) handleProcessQueue(w http.ResponseWriter, r *http.Request) {
	req := ProcessQueueRequest{BatchSize: s.config.Queue.DefaultBatchSize}
	if r.ContentLength > 0 {
		if err := parseJSONBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
			return
		}
	}
	if req.BatchSize <= 0 {
		req.BatchSize = s.config.Queue.DefaultBatchSize
	}

	result, err := s.processor.ProcessQueue(r.Context(), req.BatchSize)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleQueueStats reports analysis queue depth by status
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
