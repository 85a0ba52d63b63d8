// Package config provides configuration management for the wallet intelligence service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Solana    SolanaConfig
	AI        AIConfig
	Queue     QueueConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// SolanaConfig holds Solana RPC configuration
type SolanaConfig struct {
	RPCURL          string
	RequestTimeout  time.Duration
	SignatureWindow int // max signatures fetched per snapshot (default: 1000)
	TopTokenCount   int // token shares reported to the scorer (default: 5)
}

// AIConfig holds AI interpretation configuration.
// Provider is auto-detected from the configured API keys when empty.
type AIConfig struct {
	Provider            string // "anthropic" or "openai"
	AnthropicAPIKey     string
	OpenAIAPIKey        string
	Model               string
	MaxTokens           int
	RequestTimeout      time.Duration
	RequestsPerSecond   float64 // pacing for batch analysis calls
	ConfidenceThreshold float64 // min confidence for AI risk label override
}

// QueueConfig holds analysis queue configuration
type QueueConfig struct {
	MaxAttempts      int
	DefaultBatchSize int
	Workers          int           // bounded parallelism inside a batch
	DrainInterval    time.Duration // how often the worker drains the queue
	ReanalyzeAfter   time.Duration // staleness bound for the daily sweep
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL          time.Duration
	WebhookDedup time.Duration // suppression window for repeated webhook pushes
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	FreeTierRPS    int
	PartnerTierRPS int
	AdminTierRPS   int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "wallet_intelligence"),
				User:           getEnv("POSTGRES_USER", "intel"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "wallet_intelligence"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Solana: SolanaConfig{
			RPCURL:          getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
			RequestTimeout:  getEnvAsDuration("SOLANA_REQUEST_TIMEOUT", 30*time.Second),
			SignatureWindow: getEnvAsInt("SOLANA_SIGNATURE_WINDOW", 1000),
			TopTokenCount:   getEnvAsInt("SOLANA_TOP_TOKEN_COUNT", 5),
		},
		AI: AIConfig{
			Provider:            getEnv("AI_PROVIDER", ""),
			AnthropicAPIKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
			Model:               getEnv("AI_MODEL", ""),
			MaxTokens:           getEnvAsInt("AI_MAX_TOKENS", 1024),
			RequestTimeout:      getEnvAsDuration("AI_REQUEST_TIMEOUT", 60*time.Second),
			RequestsPerSecond:   getEnvAsFloat("AI_REQUESTS_PER_SECOND", 2.0),
			ConfidenceThreshold: getEnvAsFloat("AI_CONFIDENCE_THRESHOLD", 0.5),
		},
		Queue: QueueConfig{
			MaxAttempts:      getEnvAsInt("QUEUE_MAX_ATTEMPTS", 3),
			DefaultBatchSize: getEnvAsInt("QUEUE_DEFAULT_BATCH_SIZE", 5),
			Workers:          getEnvAsInt("QUEUE_WORKERS", 3),
			DrainInterval:    getEnvAsDuration("QUEUE_DRAIN_INTERVAL", time.Minute),
			ReanalyzeAfter:   getEnvAsDuration("QUEUE_REANALYZE_AFTER", 7*24*time.Hour),
		},
		Cache: CacheConfig{
			TTL:          getEnvAsDuration("CACHE_TTL", 30*time.Second),
			WebhookDedup: getEnvAsDuration("CACHE_WEBHOOK_DEDUP", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			FreeTierRPS:    getEnvAsInt("RATE_LIMIT_FREE_TIER", 10),
			PartnerTierRPS: getEnvAsInt("RATE_LIMIT_PARTNER_TIER", 100),
			AdminTierRPS:   getEnvAsInt("RATE_LIMIT_ADMIN_TIER", 1000),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
