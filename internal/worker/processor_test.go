package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wallet-intelligence/internal/models"
	"github.com/wallet-intelligence/internal/types"
)

type fakeQueue struct {
	mu        sync.Mutex
	items     []*models.AnalysisQueueItem
	completed []string
	released  map[string]string
	failAfter int // attempts at which Release reports terminal failure
}

func newFakeQueue(failAfter int, items ...*models.AnalysisQueueItem) *fakeQueue {
	return &fakeQueue{
		items:     items,
		released:  make(map[string]string),
		failAfter: failAfter,
	}
}

func (f *fakeQueue) Claim(_ context.Context, limit int) ([]*models.AnalysisQueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.items) {
		limit = len(f.items)
	}
	claimed := f.items[:limit]
	f.items = f.items[limit:]
	for _, item := range claimed {
		item.Attempts++
		item.Status = types.QueueStatusProcessing
	}
	return claimed, nil
}

func (f *fakeQueue) Complete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeQueue) Release(_ context.Context, id string, errorMessage string) (types.QueueStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released[id] = errorMessage
	// Mirror the repository semantics: terminal once attempts are exhausted
	if f.failAfter <= 1 {
		return types.QueueStatusFailed, nil
	}
	return types.QueueStatusQueued, nil
}

func (f *fakeQueue) ReleaseStuck(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	analyzed []string
	failFor  map[string]error
}

func (f *fakeAnalyzer) AnalyzeWallet(_ context.Context, address string) (*models.WalletIntelligence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzed = append(f.analyzed, address)
	if err, ok := f.failFor[address]; ok {
		return nil, err
	}
	return &models.WalletIntelligence{WalletAddress: address}, nil
}

type fakeBatches struct {
	mu        sync.Mutex
	processed map[string]int
}

func (f *fakeBatches) IncrementProcessed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processed == nil {
		f.processed = make(map[string]int)
	}
	f.processed[id]++
	return nil
}

type fakeRecords struct {
	mu     sync.Mutex
	failed map[string]string
}

func (f *fakeRecords) MarkFailed(_ context.Context, address string, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = make(map[string]string)
	}
	f.failed[address] = errorMessage
	return nil
}

func queueItem(id, wallet string) *models.AnalysisQueueItem {
	return &models.AnalysisQueueItem{
		ID:            id,
		WalletAddress: wallet,
		Priority:      types.PriorityLow,
		Status:        types.QueueStatusQueued,
		MaxAttempts:   3,
	}
}

// TestProcessQueue_EmptyQueue tests the no-work path
func TestProcessQueue_EmptyQueue(t *testing.T) {
	queue := newFakeQueue(3)
	p := NewProcessor(queue, &fakeAnalyzer{}, nil, nil, 2, 100)

	result, err := p.ProcessQueue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessQueue() error = %v", err)
	}
	if result.Claimed != 0 || result.Completed != 0 {
		t.Errorf("result = %+v, want all zero", result)
	}
}

// TestProcessQueue_AllSucceed tests the happy path with batch progress
func TestProcessQueue_AllSucceed(t *testing.T) {
	batchID := "batch-1"
	items := []*models.AnalysisQueueItem{
		queueItem("q1", "wallet1111111111111111111111111111111111111"),
		queueItem("q2", "wallet2222222222222222222222222222222222222"),
	}
	items[0].BatchID = &batchID

	queue := newFakeQueue(3, items...)
	analyzer := &fakeAnalyzer{}
	batches := &fakeBatches{}
	p := NewProcessor(queue, analyzer, batches, nil, 2, 100)

	result, err := p.ProcessQueue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessQueue() error = %v", err)
	}

	if result.Claimed != 2 || result.Completed != 2 || result.Requeued != 0 || result.Failed != 0 {
		t.Errorf("result = %+v, want 2 claimed, 2 completed", result)
	}
	if len(queue.completed) != 2 {
		t.Errorf("completed queue items = %d, want 2", len(queue.completed))
	}
	if batches.processed[batchID] != 1 {
		t.Errorf("batch progress = %d, want 1", batches.processed[batchID])
	}
}

// TestProcessQueue_RetryableFailure tests that a failed analysis with
// attempts remaining is requeued, not terminally failed
func TestProcessQueue_RetryableFailure(t *testing.T) {
	wallet := "wallet1111111111111111111111111111111111111"
	queue := newFakeQueue(3, queueItem("q1", wallet))
	analyzer := &fakeAnalyzer{failFor: map[string]error{wallet: errors.New("rpc timeout")}}
	records := &fakeRecords{}
	p := NewProcessor(queue, analyzer, nil, records, 2, 100)

	result, err := p.ProcessQueue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessQueue() error = %v", err)
	}

	if result.Requeued != 1 || result.Failed != 0 {
		t.Errorf("result = %+v, want 1 requeued", result)
	}
	if queue.released["q1"] != "rpc timeout" {
		t.Errorf("release message = %q, want rpc timeout", queue.released["q1"])
	}
	if len(records.failed) != 0 {
		t.Errorf("record marked failed on retryable failure: %v", records.failed)
	}
}

// TestProcessQueue_TerminalFailure tests that exhausted attempts mark the
// wallet record failed
func TestProcessQueue_TerminalFailure(t *testing.T) {
	wallet := "wallet1111111111111111111111111111111111111"
	queue := newFakeQueue(1, queueItem("q1", wallet)) // Release reports terminal
	analyzer := &fakeAnalyzer{failFor: map[string]error{wallet: errors.New("account does not exist")}}
	records := &fakeRecords{}
	p := NewProcessor(queue, analyzer, nil, records, 2, 100)

	result, err := p.ProcessQueue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessQueue() error = %v", err)
	}

	if result.Failed != 1 || result.Requeued != 0 {
		t.Errorf("result = %+v, want 1 failed", result)
	}
	if records.failed[wallet] != "account does not exist" {
		t.Errorf("record failure = %q, want analysis error", records.failed[wallet])
	}
}

// TestProcessQueue_RespectsBatchSize tests that only batchSize items are
// claimed per pass
func TestProcessQueue_RespectsBatchSize(t *testing.T) {
	queue := newFakeQueue(3,
		queueItem("q1", "wallet1111111111111111111111111111111111111"),
		queueItem("q2", "wallet2222222222222222222222222222222222222"),
		queueItem("q3", "wallet3333333333333333333333333333333333333"),
	)
	analyzer := &fakeAnalyzer{}
	p := NewProcessor(queue, analyzer, nil, nil, 2, 100)

	result, err := p.ProcessQueue(context.Background(), 2)
	if err != nil {
		t.Fatalf("ProcessQueue() error = %v", err)
	}
	if result.Claimed != 2 {
		t.Errorf("claimed = %d, want 2", result.Claimed)
	}
	if len(queue.items) != 1 {
		t.Errorf("remaining queue items = %d, want 1", len(queue.items))
	}
}
