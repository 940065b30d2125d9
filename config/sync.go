package config

import "time"

// SyncConfig contains reconciliation pass configuration.
type SyncConfig struct {
	// Interval between passes. Zero runs a single pass and exits.
	Interval time.Duration `env:"INTERVAL" envDefault:"0s"`

	// WriteConcurrency bounds the number of in-flight fan-out writes.
	WriteConcurrency int `env:"WRITE_CONCURRENCY" envDefault:"8"`

	// DeleteBatchSize bounds the identifiers sent in one store delete call.
	DeleteBatchSize int `env:"DELETE_BATCH_SIZE" envDefault:"500"`

	// BootstrapBatchSize bounds the keys written per pipelined bootstrap round trip.
	BootstrapBatchSize int `env:"BOOTSTRAP_BATCH_SIZE" envDefault:"1000"`

	// MaxDeleteFraction skips the deletes when a sweep would remove more than this fraction
	// of the bootstrapped identifiers. Zero disables the guard.
	MaxDeleteFraction float64 `env:"MAX_DELETE_FRACTION" envDefault:"0"`

	// PassTimeout bounds a whole pass. Zero means no limit.
	PassTimeout time.Duration `env:"PASS_TIMEOUT" envDefault:"0s"`
}

// Sanitize applies guardrails to sync configuration values.
func (c *SyncConfig) Sanitize() {
	if c.Interval < 0 {
		c.Interval = 0
	}
	if c.WriteConcurrency < 1 {
		c.WriteConcurrency = 1
	}
	if c.DeleteBatchSize < 1 {
		c.DeleteBatchSize = 500
	}
	if c.BootstrapBatchSize < 1 {
		c.BootstrapBatchSize = 1000
	}
	if c.MaxDeleteFraction < 0 || c.MaxDeleteFraction >= 1 {
		c.MaxDeleteFraction = 0
	}
	if c.PassTimeout < 0 {
		c.PassTimeout = 0
	}
}

// CacheConfig contains session dedup cache configuration.
type CacheConfig struct {
	// SessionTTL bounds how long a session dedup entry lives in Redis.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// LocalCapacity is the size of the in-process LRU fronting Redis.
	LocalCapacity int `env:"LOCAL_CAPACITY" envDefault:"10000"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.LocalCapacity < 0 {
		c.LocalCapacity = 0
	}
}
