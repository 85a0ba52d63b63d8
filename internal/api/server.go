// Package api provides the HTTP API for the wallet intelligence service.
package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-intelligence/internal/config"
	"github.com/wallet-intelligence/internal/logging"
	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/service"
	"github.com/wallet-intelligence/internal/storage"
	"github.com/wallet-intelligence/internal/types"
	"github.com/wallet-intelligence/internal/worker"
)

// WalletCollector is the collection service surface the API needs
type WalletCollector interface {
	Collect(ctx context.Context, input service.CollectInput) (*service.CollectResult, error)
	IngestCSV(ctx context.Context, r io.Reader, batchName, filename, uploadedBy string) (*service.CSVIngestResult, error)
	RequestAnalysis(ctx context.Context, address string, priority types.Priority, requestedBy *string) (*models.AnalysisQueueItem, error)
}

// WalletReader serves wallet intelligence read queries
type WalletReader interface {
	Get(ctx context.Context, address string) (*models.WalletIntelligence, error)
	List(ctx context.Context, filters *storage.IntelligenceFilters) ([]*models.WalletIntelligence, error)
	Count(ctx context.Context, filters *storage.IntelligenceFilters) (int64, error)
	Stats(ctx context.Context) (*storage.IntelligenceStats, error)
}

// HistoryReader serves score history queries
type HistoryReader interface {
	GetByWallet(ctx context.Context, address string, limit int) ([]*models.ScoreEvent, error)
}

// QueueDrainer runs a synchronous queue drain pass
type QueueDrainer interface {
	ProcessQueue(ctx context.Context, maxBatchSize int) (*worker.ProcessResult, error)
}

// QueueInspector reports analysis queue statistics
type QueueInspector interface {
	Stats(ctx context.Context) (*storage.QueueStats, error)
}

// BatchReader serves CSV batch read queries
type BatchReader interface {
	Get(ctx context.Context, id string) (*models.WalletBatch, error)
	List(ctx context.Context, limit, offset int) ([]*models.WalletBatch, error)
}

// Server represents the HTTP API server
type Server struct {
	config      *config.Config
	router      *mux.Router
	httpServer  *http.Server
	rateLimiter *RateLimiter

	collector WalletCollector
	wallets   WalletReader
	history   HistoryReader
	processor QueueDrainer
	queue     QueueInspector
	batches   BatchReader
	cache     *storage.CacheService
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	collector WalletCollector,
	wallets WalletReader,
	history HistoryReader,
	processor QueueDrainer,
	queue QueueInspector,
	batches BatchReader,
	cache *storage.CacheService,
) *Server {
	s := &Server{
		config:      cfg,
		router:      mux.NewRouter(),
		rateLimiter: NewRateLimiter(cfg.RateLimit.FreeTierRPS, cfg.RateLimit.PartnerTierRPS, cfg.RateLimit.AdminTierRPS),
		collector:   collector,
		wallets:     wallets,
		history:     history,
		processor:   processor,
		queue:       queue,
		batches:     batches,
		cache:       cache,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// setupMiddleware configures the middleware chain. Order matters: logging
// first so every request is recorded, recovery before anything that can
// panic, rate limiting after CORS so preflights are never throttled.
func (s *Server) setupMiddleware() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(s.rateLimiter))
	s.router.Use(CompressionMiddleware)
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")

	api := s.router.PathPrefix("/api/flutterai").Subrouter()

	// Collection endpoints
	api.HandleFunc("/collect/manual", s.handleCollectManual).Methods("POST", "OPTIONS")
	api.HandleFunc("/collect/csv-upload", s.handleCollectCSV).Methods("POST", "OPTIONS")
	api.HandleFunc("/collect/flutterbye-webhook", s.webhookHandler(types.SourceFlutterbyeConnect)).Methods("POST", "OPTIONS")
	api.HandleFunc("/collect/perpetrader-webhook", s.webhookHandler(types.SourcePerpetraderConnect)).Methods("POST", "OPTIONS")

	// Intelligence read endpoints
	api.HandleFunc("/wallets", s.handleListWallets).Methods("GET", "OPTIONS")
	api.HandleFunc("/wallets/{walletAddress}", s.handleGetWallet).Methods("GET", "OPTIONS")
	api.HandleFunc("/wallets/{walletAddress}/history", s.handleGetWalletHistory).Methods("GET", "OPTIONS")
	api.HandleFunc("/stats", s.handleStats).Methods("GET", "OPTIONS")
	api.HandleFunc("/export", s.handleExport).Methods("GET", "OPTIONS")

	// Batch endpoints
	api.HandleFunc("/batches", s.handleListBatches).Methods("GET", "OPTIONS")
	api.HandleFunc("/batches/{batchId}", s.handleGetBatch).Methods("GET", "OPTIONS")

	// Analysis control endpoints
	api.HandleFunc("/analyze/{walletAddress}", s.handleAnalyzeWallet).Methods("POST", "OPTIONS")
	api.HandleFunc("/process-queue", s.handleProcessQueue).Methods("POST", "OPTIONS")
	api.HandleFunc("/queue/stats", s.handleQueueStats).Methods("GET", "OPTIONS")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the configured router, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "wallet-intelligence",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
