package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Database (also the queue backend)
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/banksync.db"`

	// Sync scheduler
	SyncEnabled  bool          `env:"SYNC_ENABLED" envDefault:"true"`
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"15m"`

	// IMAP
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"10s"`
	FetchLimit      int           `env:"FETCH_LIMIT" envDefault:"0"` // 0 = no cap

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required"` // 64 hex chars (AES-256)

	// Queue consumer
	WorkerConcurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"5"`
	MaxAttempts        int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryBackoff       time.Duration `env:"RETRY_BACKOFF" envDefault:"30s"` // base for exponential
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MIN" envDefault:"100"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// The key is hex-encoded: 64 chars decode to the 32 bytes AES-256 needs
	key, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be 64 hex chars (32 bytes), got %d bytes", len(key))
	}

	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}
