package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wallet-intelligence/internal/models"
)

const testCacheWallet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func newTestCacheService(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client)

	return NewCacheService(cache, 30*time.Second, 5*time.Minute), mr
}

// TestCacheService_SetGet tests JSON roundtripping through the cache
func TestCacheService_SetGet(t *testing.T) {
	svc, _ := newTestCacheService(t)
	ctx := context.Background()

	record := &models.WalletIntelligence{
		WalletAddress:     testCacheWallet,
		SocialCreditScore: 742,
	}

	key := svc.GenerateWalletKey(testCacheWallet)
	if err := svc.Set(ctx, key, record); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	var got models.WalletIntelligence
	hit, err := svc.Get(ctx, key, &got)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !hit {
		t.Fatal("Get() miss, want hit")
	}
	if got.WalletAddress != testCacheWallet || got.SocialCreditScore != 742 {
		t.Errorf("got %+v, want original record", got)
	}
}

// TestCacheService_GetMiss tests that a missing key is a miss, not an error
func TestCacheService_GetMiss(t *testing.T) {
	svc, _ := newTestCacheService(t)

	var got models.WalletIntelligence
	hit, err := svc.Get(context.Background(), svc.GenerateWalletKey(testCacheWallet), &got)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if hit {
		t.Error("Get() hit on empty cache")
	}
}

// TestCacheService_KeysAreCaseSensitive tests that base58 addresses are not
// folded: two addresses differing only in case must not collide
func TestCacheService_KeysAreCaseSensitive(t *testing.T) {
	svc, _ := newTestCacheService(t)

	upper := svc.GenerateWalletKey("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	lower := svc.GenerateWalletKey("epjfwdd5aufqssqem2qn1xzybapc8g4wegGkZwyTDt1v")
	if upper == lower {
		t.Error("cache keys fold case, base58 addresses would collide")
	}
}

// TestCacheService_InvalidateWallet tests that the record, list, and stats
// caches are all invalidated together
func TestCacheService_InvalidateWallet(t *testing.T) {
	svc, _ := newTestCacheService(t)
	ctx := context.Background()

	walletKey := svc.GenerateWalletKey(testCacheWallet)
	listKey := svc.GenerateListKey("riskLevel=low")
	statsKey := svc.GenerateStatsKey()

	for _, key := range []string{walletKey, listKey, statsKey} {
		if err := svc.Set(ctx, key, map[string]string{"k": "v"}); err != nil {
			t.Fatalf("Set(%q) error = %v", key, err)
		}
	}

	if err := svc.InvalidateWallet(ctx, testCacheWallet); err != nil {
		t.Fatalf("InvalidateWallet() error = %v", err)
	}

	for _, key := range []string{walletKey, listKey, statsKey} {
		var got map[string]string
		hit, err := svc.Get(ctx, key, &got)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", key, err)
		}
		if hit {
			t.Errorf("key %q survived invalidation", key)
		}
	}
}

// TestCacheService_MarkWebhookSeen tests webhook deduplication: first push
// wins, repeats within the window are suppressed, and the window expires
func TestCacheService_MarkWebhookSeen(t *testing.T) {
	svc, mr := newTestCacheService(t)
	ctx := context.Background()

	first, err := svc.MarkWebhookSeen(ctx, "flutterbye_connect", testCacheWallet)
	if err != nil {
		t.Fatalf("MarkWebhookSeen() error = %v", err)
	}
	if !first {
		t.Error("first push reported as duplicate")
	}

	second, err := svc.MarkWebhookSeen(ctx, "flutterbye_connect", testCacheWallet)
	if err != nil {
		t.Fatalf("MarkWebhookSeen() error = %v", err)
	}
	if second {
		t.Error("repeat push not deduplicated")
	}

	// A different source is a separate dedup scope
	otherSource, err := svc.MarkWebhookSeen(ctx, "perpetrader_connect", testCacheWallet)
	if err != nil {
		t.Fatalf("MarkWebhookSeen() error = %v", err)
	}
	if !otherSource {
		t.Error("different source was deduplicated against the first")
	}

	// After the window expires the push counts as first again
	mr.FastForward(6 * time.Minute)
	expired, err := svc.MarkWebhookSeen(ctx, "flutterbye_connect", testCacheWallet)
	if err != nil {
		t.Fatalf("MarkWebhookSeen() error = %v", err)
	}
	if !expired {
		t.Error("push after window expiry reported as duplicate")
	}
}
