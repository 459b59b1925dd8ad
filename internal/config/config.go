// Package config loads the frozen, validated configuration record consumed by
// every subsystem. It replaces the "dynamically typed configuration dict"
// pattern the source system used (spec §9) with one struct built once at
// startup, in the teacher's getEnv*-helper style (internal/config/config.go).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is immutable after Load returns. Every field maps to one of the
// enumerated knobs in spec §6.
type Config struct {
	// Redis hot store
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SQL (DSW target)
	DatabaseURL string // postgres://... or a sqlite file path

	// Order Manager
	MinOrderIntervalMs int
	LockTimeoutMs      int

	// Priority Queue Dispatcher
	QueueWorkers        int
	QueueMaxSize        int
	QueueStaleThreshold time.Duration
	QueueRebalanceEvery time.Duration
	QueueFairnessEveryM int

	// Broker Adapter
	BrokerSubmitTimeoutMs int
	BrokerRetryMax        int
	BrokerRetryBaseMs     int
	BrokerRetryCapMs      int
	SessionInactiveTTLMs  int
	SessionHealthWindow   time.Duration
	SessionErrorRatePct   float64
	SessionAuthFailMax    int
	BrokerEventBufferSize int
	SessionEncryptionKey  string

	// Mock Matching Engine
	PaperMatchTimeoutMs int
	PaperBufferSize     int

	// DB Sync Worker
	DSWBatchSize             int
	DSWIntervalMinMs         int
	DSWIntervalMaxMs         int
	DSWHighWaterMark         int
	DSWLowWaterMark          int
	DSWCompressThresholdByte int
	DSWMaxSQLRetries         int

	Debug bool
}

// Load builds a Config from the process environment, applying the spec §6
// defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DatabaseURL: getEnv("DATABASE_URL", "data/tradecore.db"),

		MinOrderIntervalMs: getEnvInt("ORDER_MIN_INTERVAL_MS", 1000),
		LockTimeoutMs:      getEnvInt("ORDER_LOCK_TIMEOUT_MS", 30_000),

		QueueWorkers:        getEnvInt("QUEUE_WORKERS", 4),
		QueueMaxSize:        getEnvInt("QUEUE_MAX_SIZE", 10_000),
		QueueStaleThreshold: getEnvDuration("QUEUE_STALE_THRESHOLD", 60*time.Second),
		QueueRebalanceEvery: getEnvDuration("QUEUE_REBALANCE_EVERY", 5*time.Minute),
		QueueFairnessEveryM: getEnvInt("QUEUE_FAIRNESS_EVERY_M", 8),

		BrokerSubmitTimeoutMs: getEnvInt("BROKER_SUBMIT_TIMEOUT_MS", 10_000),
		BrokerRetryMax:        getEnvInt("BROKER_RETRY_MAX", 3),
		BrokerRetryBaseMs:     getEnvInt("BROKER_RETRY_BASE_MS", 500),
		BrokerRetryCapMs:      getEnvInt("BROKER_RETRY_CAP_MS", 10_000),
		SessionInactiveTTLMs:  getEnvInt("SESSION_INACTIVE_TTL_MS", 28_800_000),
		SessionHealthWindow:   getEnvDuration("SESSION_HEALTH_WINDOW", 60*time.Second),
		SessionErrorRatePct:   getEnvFloat("SESSION_ERROR_RATE_PCT", 50.0),
		SessionAuthFailMax:    getEnvInt("SESSION_AUTH_FAIL_MAX", 3),
		BrokerEventBufferSize: getEnvInt("BROKER_EVENT_BUFFER_SIZE", 1024),
		SessionEncryptionKey:  getEnv("SESSION_ENCRYPTION_KEY", ""),

		PaperMatchTimeoutMs: getEnvInt("PAPER_MATCH_TIMEOUT_MS", 60_000),
		PaperBufferSize:     getEnvInt("PAPER_BUFFER_SIZE", 256),

		DSWBatchSize:             getEnvInt("DSW_BATCH_SIZE", 64),
		DSWIntervalMinMs:         getEnvInt("DSW_INTERVAL_MIN_MS", 100),
		DSWIntervalMaxMs:         getEnvInt("DSW_INTERVAL_MAX_MS", 5000),
		DSWHighWaterMark:         getEnvInt("DSW_HIGH_WATER_MARK", 32),
		DSWLowWaterMark:          getEnvInt("DSW_LOW_WATER_MARK", 4),
		DSWCompressThresholdByte: getEnvInt("DSW_COMPRESS_THRESHOLD_BYTES", 1024),
		DSWMaxSQLRetries:         getEnvInt("DSW_MAX_SQL_RETRIES", 5),

		Debug: getEnvBool("DEBUG", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.QueueWorkers <= 0 {
		return fmt.Errorf("config: QUEUE_WORKERS must be positive, got %d", c.QueueWorkers)
	}
	if c.DSWIntervalMinMs <= 0 || c.DSWIntervalMaxMs < c.DSWIntervalMinMs {
		return fmt.Errorf("config: DSW interval bounds invalid (min=%d max=%d)", c.DSWIntervalMinMs, c.DSWIntervalMaxMs)
	}
	if c.DSWLowWaterMark >= c.DSWHighWaterMark {
		return fmt.Errorf("config: DSW_LOW_WATER_MARK must be below DSW_HIGH_WATER_MARK")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1" || v == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
