package api

import (
	"net/http"

	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/service"
	"github.com/wallet-intelligence/internal/types"
)

// maxCSVUploadBytes bounds in-memory multipart parsing (10 MB).
const maxCSVUploadBytes = 10 << 20

// CollectManualRequest is the body for manual wallet collection. Tags and
// notes are operator annotations; they are accepted but not persisted on
// the intelligence record.
type CollectManualRequest struct {
	WalletAddress string   `json:"walletAddress"`
	UserID        *string  `json:"userId,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// handleCollectManual registers a single wallet entered by an operator.
// Manual entries analyze at the highest priority.
func (s *Server) handleCollectManual(w http.ResponseWriter, r *http.Request) {
	var req CollectManualRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}
	if req.WalletAddress == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "walletAddress is required", nil)
		return
	}

	requestedBy := callerID(r)
	result, err := s.collector.Collect(r.Context(), service.CollectInput{
		WalletAddress: req.WalletAddress,
		Source:        types.SourceManualEntry,
		UserID:        req.UserID,
		RequestedBy:   requestedBy,
	})
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleCollectCSV ingests a batch of wallet addresses from an uploaded CSV
// file. The whole batch is parsed synchronously; analysis itself happens
// asynchronously through the queue.
func (s *Server) handleCollectCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxCSVUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid multipart form: "+err.Error(), nil)
		return
	}

	file, header, err := r.FormFile("csvFile")
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "csvFile is required", nil)
		return
	}
	defer file.Close()

	batchName := r.FormValue("batchName")
	if batchName == "" {
		batchName = header.Filename
	}

	uploadedBy := r.Header.Get("X-User-ID")
	result, err := s.collector.IngestCSV(r.Context(), file, batchName, header.Filename, uploadedBy)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// WebhookRequest is the body pushed by partner platforms on wallet connect
type WebhookRequest struct {
	WalletAddress string  `json:"walletAddress"`
	UserID        *string `json:"userId,omitempty"`
}

// webhookHandler builds the collect handler for a partner platform webhook.
// Repeated pushes for the same wallet within the dedup window are absorbed
// without touching Postgres.
func (s *Server) webhookHandler(source types.CollectionSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WebhookRequest
		if err := parseJSONBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
			return
		}
		if req.WalletAddress == "" {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "walletAddress is required", nil)
			return
		}

		first, err := s.cache.MarkWebhookSeen(r.Context(), string(source), req.WalletAddress)
		if err != nil {
			// Dedup is an optimization; a cache failure must not drop the push
			logging.FromContext(r.Context()).WithError(err).Warn("webhook dedup check failed, collecting anyway")
			first = true
		}
		if !first {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"walletAddress": req.WalletAddress,
				"duplicate":     true,
			})
			return
		}

		result, err := s.collector.Collect(r.Context(), service.CollectInput{
			WalletAddress: req.WalletAddress,
			Source:        source,
			UserID:        req.UserID,
		})
		if err != nil {
			status, code, message := mapServiceError(err)
			respondError(w, status, code, message, nil)
			return
		}

		respondJSON(w, http.StatusOK, result)
	}
}

// callerID extracts the requesting user from headers, if present
func callerID(r *http.Request) *string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return &id
	}
	return nil
}
