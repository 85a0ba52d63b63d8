package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheService provides high-level caching for wallet intelligence reads
// and webhook deduplication.
type CacheService struct {
	redis        *RedisCache
	ttl          time.Duration
	webhookDedup time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl, webhookDedup time.Duration) *CacheService {
	return &CacheService{
		redis:        redis,
		ttl:          ttl,
		webhookDedup: webhookDedup,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyWallet is for single wallet intelligence records
	CacheKeyWallet CacheKeyType = "wallet"
	// CacheKeyWalletList is for wallet list query results
	CacheKeyWalletList CacheKeyType = "wallets"
	// CacheKeyStats is for aggregate statistics
	CacheKeyStats CacheKeyType = "stats"
	// CacheKeyWebhook is for webhook deduplication markers
	CacheKeyWebhook CacheKeyType = "webhook"
)

// GenerateCacheKey generates a cache key for a given type and parameters.
// Format: <type>:<param1>:<param2>:...
// Solana addresses are case-sensitive base58, so parameters are not folded.
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := append([]string{string(keyType)}, params...)
	return strings.Join(parts, ":")
}

// GenerateWalletKey generates a cache key for a wallet intelligence record
func (c *CacheService) GenerateWalletKey(address string) string {
	return c.GenerateCacheKey(CacheKeyWallet, address)
}

// GenerateListKey generates a cache key for a wallet list query
func (c *CacheService) GenerateListKey(queryHash string) string {
	return c.GenerateCacheKey(CacheKeyWalletList, queryHash)
}

// GenerateStatsKey generates a cache key for dashboard statistics
func (c *CacheService) GenerateStatsKey() string {
	return c.GenerateCacheKey(CacheKeyStats, "dashboard")
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.redis.Set(ctx, key, data, ttl)
}

// Get retrieves a value from cache and deserializes it
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		// Key not found is not an error, just a cache miss
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidatePattern removes all keys matching a pattern
func (c *CacheService) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.redis.Keys(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to find keys matching pattern: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	return c.redis.Del(ctx, keys...)
}

// InvalidateWallet invalidates the record cache for a wallet plus any list
// and stats results that may include it.
func (c *CacheService) InvalidateWallet(ctx context.Context, address string) error {
	if err := c.Invalidate(ctx, c.GenerateWalletKey(address)); err != nil {
		return fmt.Errorf("failed to invalidate wallet cache: %w", err)
	}

	if err := c.InvalidatePattern(ctx, string(CacheKeyWalletList)+":*"); err != nil {
		return fmt.Errorf("failed to invalidate list cache: %w", err)
	}

	return c.Invalidate(ctx, c.GenerateStatsKey())
}

// MarkWebhookSeen records a webhook push for dedup purposes. Returns true if
// this is the first push for the (source, address) pair within the window.
func (c *CacheService) MarkWebhookSeen(ctx context.Context, source, address string) (bool, error) {
	key := c.GenerateCacheKey(CacheKeyWebhook, source, address)
	first, err := c.redis.SetNX(ctx, key, "1", c.webhookDedup)
	if err != nil {
		return false, fmt.Errorf("failed to mark webhook seen: %w", err)
	}
	return first, nil
}

// Exists checks if a key exists in cache
func (c *CacheService) Exists(ctx context.Context, key string) (bool, error) {
	return c.redis.Exists(ctx, key)
}

// GetTTL returns the configured TTL for this cache service
func (c *CacheService) GetTTL() time.Duration {
	return c.ttl
}
