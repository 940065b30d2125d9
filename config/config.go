package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: PostgreSQL, Redis and document store configuration
//   - source.go: listing source (HTTP JSON paginator) configuration
//   - sync.go: reconciliation pass and session cache configuration
//   - observability.go: metrics and failure notifications
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging).
	// Set DEV=true or GO_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres  DBConfig        `envPrefix:"DB_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	DocStore  DocStoreConfig
	Mongo     MongoConfig     `envPrefix:"MONGO_"`
	Firestore FirestoreConfig `envPrefix:"FIRESTORE_"`

	// Listing source configuration
	Source SourceConfig `envPrefix:"SOURCE_"`

	// Reconciliation configuration
	Sync  SyncConfig  `envPrefix:"SYNC_"`
	Cache CacheConfig `envPrefix:"CACHE_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.DocStore.Sanitize()
	c.Mongo.Sanitize()
	c.Source.Sanitize()
	c.Sync.Sanitize()
	c.Cache.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode falls back to GO_ENV when DEV is not set.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		goEnv := strings.ToLower(os.Getenv("GO_ENV"))
		c.IsDev = goEnv == "development" || goEnv == "dev"
	}
}
