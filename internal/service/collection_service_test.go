package service

import (
	"context"
	"strings"
	"testing"

	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/types"
)

const (
	testWallet  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testWallet2 = "So11111111111111111111111111111111111111112"
)

type fakeCollectionStore struct {
	wallets map[string]*models.WalletIntelligence
	merged  []string
}

func newFakeCollectionStore() *fakeCollectionStore {
	return &fakeCollectionStore{wallets: make(map[string]*models.WalletIntelligence)}
}

func (f *fakeCollectionStore) InsertIfAbsent(_ context.Context, w *models.WalletIntelligence) (bool, error) {
	if _, ok := f.wallets[w.WalletAddress]; ok {
		return false, nil
	}
	f.wallets[w.WalletAddress] = w
	return true, nil
}

func (f *fakeCollectionStore) MergeSource(_ context.Context, address string, source types.CollectionSource, _ *string) error {
	f.merged = append(f.merged, address+":"+string(source))
	return nil
}

func (f *fakeCollectionStore) Get(_ context.Context, address string) (*models.WalletIntelligence, error) {
	return f.wallets[address], nil
}

type fakeQueueStore struct {
	items []*models.AnalysisQueueItem
}

func (f *fakeQueueStore) Enqueue(_ context.Context, item *models.AnalysisQueueItem) (*models.AnalysisQueueItem, error) {
	item.ID = "queue-item-1"
	item.Status = types.QueueStatusQueued
	f.items = append(f.items, item)
	return item, nil
}

type fakeBatchStore struct {
	batches map[string]*models.WalletBatch
	counts  map[string][3]int
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{
		batches: make(map[string]*models.WalletBatch),
		counts:  make(map[string][3]int),
	}
}

func (f *fakeBatchStore) Create(_ context.Context, batch *models.WalletBatch) error {
	batch.ID = "batch-1"
	f.batches[batch.ID] = batch
	return nil
}

func (f *fakeBatchStore) UpdateCounts(_ context.Context, id string, total, valid, invalid int) error {
	f.counts[id] = [3]int{total, valid, invalid}
	return nil
}

func newTestCollectionService() (*CollectionService, *fakeCollectionStore, *fakeQueueStore, *fakeBatchStore) {
	store := newFakeCollectionStore()
	queue := &fakeQueueStore{}
	batches := newFakeBatchStore()
	return NewCollectionService(store, queue, batches, 3), store, queue, batches
}

// TestCollect_InvalidAddress tests rejection of malformed addresses
func TestCollect_InvalidAddress(t *testing.T) {
	svc, _, queue, _ := newTestCollectionService()

	invalid := []string{
		"",
		"not-a-wallet!",
		"0x1234567890123456789012345678901234567890", // Ethereum, contains 0
		"short",
		strings.Repeat("A", 45), // too long
	}

	for _, addr := range invalid {
		_, err := svc.Collect(context.Background(), CollectInput{
			WalletAddress: addr,
			Source:        types.SourceManualEntry,
		})
		if err == nil {
			t.Errorf("Collect(%q) succeeded, want error", addr)
			continue
		}
		svcErr, ok := err.(*types.ServiceError)
		if !ok || svcErr.Code != "INVALID_WALLET_ADDRESS" {
			t.Errorf("Collect(%q) error = %v, want INVALID_WALLET_ADDRESS", addr, err)
		}
	}

	if len(queue.items) != 0 {
		t.Errorf("invalid addresses were enqueued: %d items", len(queue.items))
	}
}

// TestCollect_NewWallet tests that a new wallet is stored and queued at its
// source priority
func TestCollect_NewWallet(t *testing.T) {
	svc, store, queue, _ := newTestCollectionService()

	result, err := svc.Collect(context.Background(), CollectInput{
		WalletAddress: testWallet,
		Source:        types.SourceFlutterbyeConnect,
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if result.AlreadyKnown {
		t.Error("new wallet reported as already known")
	}
	if result.Priority != types.PriorityHigh {
		t.Errorf("priority = %v, want %v", result.Priority, types.PriorityHigh)
	}
	if result.QueueItemID == "" {
		t.Error("new wallet was not enqueued")
	}
	if _, ok := store.wallets[testWallet]; !ok {
		t.Error("wallet record was not stored")
	}
	if len(queue.items) != 1 {
		t.Fatalf("queue items = %d, want 1", len(queue.items))
	}
	if queue.items[0].MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", queue.items[0].MaxAttempts)
	}
}

// TestCollect_KnownWallet tests idempotence: re-collection merges metadata
// without re-queueing
func TestCollect_KnownWallet(t *testing.T) {
	svc, store, queue, _ := newTestCollectionService()

	if _, err := svc.Collect(context.Background(), CollectInput{
		WalletAddress: testWallet,
		Source:        types.SourceCSVUpload,
	}); err != nil {
		t.Fatalf("first Collect() error = %v", err)
	}

	result, err := svc.Collect(context.Background(), CollectInput{
		WalletAddress: testWallet,
		Source:        types.SourcePerpetraderConnect,
	})
	if err != nil {
		t.Fatalf("second Collect() error = %v", err)
	}

	if !result.AlreadyKnown {
		t.Error("known wallet not reported as already known")
	}
	if result.QueueItemID != "" {
		t.Error("known wallet was re-enqueued")
	}
	if len(queue.items) != 1 {
		t.Errorf("queue items = %d, want 1", len(queue.items))
	}
	if len(store.merged) != 1 {
		t.Fatalf("merge calls = %d, want 1", len(store.merged))
	}
	if store.merged[0] != testWallet+":perpetrader_connect" {
		t.Errorf("unexpected merge: %s", store.merged[0])
	}
}

// TestRequestAnalysis_UnknownWallet tests the not-found path
func TestRequestAnalysis_UnknownWallet(t *testing.T) {
	svc, _, _, _ := newTestCollectionService()

	_, err := svc.RequestAnalysis(context.Background(), testWallet, types.PriorityCritical, nil)
	if err == nil {
		t.Fatal("RequestAnalysis() succeeded for unknown wallet")
	}
	svcErr, ok := err.(*types.ServiceError)
	if !ok || svcErr.Code != "WALLET_NOT_FOUND" {
		t.Errorf("error = %v, want WALLET_NOT_FOUND", err)
	}
}

// TestRequestAnalysis_KnownWallet tests force re-analysis enqueueing
func TestRequestAnalysis_KnownWallet(t *testing.T) {
	svc, _, queue, _ := newTestCollectionService()

	if _, err := svc.Collect(context.Background(), CollectInput{
		WalletAddress: testWallet,
		Source:        types.SourceManualEntry,
	}); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	item, err := svc.RequestAnalysis(context.Background(), testWallet, types.PriorityCritical, nil)
	if err != nil {
		t.Fatalf("RequestAnalysis() error = %v", err)
	}
	if item.Priority != types.PriorityCritical {
		t.Errorf("priority = %v, want %v", item.Priority, types.PriorityCritical)
	}
	if len(queue.items) != 2 {
		t.Errorf("queue items = %d, want 2", len(queue.items))
	}
}

// TestIngestCSV tests CSV parsing: header skip, invalid rows, duplicates
func TestIngestCSV(t *testing.T) {
	svc, _, queue, batches := newTestCollectionService()

	csvData := strings.Join([]string{
		"wallet_address,label",
		testWallet + ",alpha",
		testWallet2 + ",beta",
		"definitely-not-base58!,gamma",
		testWallet + ",duplicate",
		"",
	}, "\n")

	result, err := svc.IngestCSV(context.Background(), strings.NewReader(csvData), "test batch", "wallets.csv", "operator")
	if err != nil {
		t.Fatalf("IngestCSV() error = %v", err)
	}

	if result.BatchID != "batch-1" {
		t.Errorf("batch ID = %q, want batch-1", result.BatchID)
	}
	if result.ValidWallets != 2 {
		t.Errorf("valid = %d, want 2", result.ValidWallets)
	}
	if result.InvalidWallets != 1 {
		t.Errorf("invalid = %d, want 1", result.InvalidWallets)
	}
	if result.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", result.Duplicates)
	}
	if len(result.InvalidSamples) != 1 || result.InvalidSamples[0] != "definitely-not-base58!" {
		t.Errorf("invalid samples = %v", result.InvalidSamples)
	}
	if len(queue.items) != 2 {
		t.Errorf("queue items = %d, want 2", len(queue.items))
	}
	for _, item := range queue.items {
		if item.Priority != types.PriorityLow {
			t.Errorf("CSV item priority = %v, want %v", item.Priority, types.PriorityLow)
		}
		if item.BatchID == nil || *item.BatchID != "batch-1" {
			t.Errorf("CSV item batch = %v, want batch-1", item.BatchID)
		}
	}

	counts, ok := batches.counts["batch-1"]
	if !ok {
		t.Fatal("batch counts were not persisted")
	}
	if counts != [3]int{4, 2, 1} {
		t.Errorf("batch counts = %v, want [4 2 1]", counts)
	}
}

// TestIngestCSV_NoHeader tests that a file of bare addresses works
func TestIngestCSV_NoHeader(t *testing.T) {
	svc, _, _, _ := newTestCollectionService()

	csvData := testWallet + "\n" + testWallet2 + "\n"
	result, err := svc.IngestCSV(context.Background(), strings.NewReader(csvData), "bare", "bare.csv", "operator")
	if err != nil {
		t.Fatalf("IngestCSV() error = %v", err)
	}
	if result.ValidWallets != 2 {
		t.Errorf("valid = %d, want 2", result.ValidWallets)
	}
	if result.TotalRows != 2 {
		t.Errorf("total = %d, want 2", result.TotalRows)
	}
}
