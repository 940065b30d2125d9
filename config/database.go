package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"jobsync"`
	Password string `env:"PASSWORD"                envDefault:"jobsync"`
	Name     string `env:"NAME"                    envDefault:"jobsync"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	// MaxOpenConns bounds the pool; it should cover SYNC_WRITE_CONCURRENCY.
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"25"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// DocStoreBackend selects the document store implementation.
type DocStoreBackend string

const (
	// DocStoreMongo stores documents in a MongoDB collection.
	DocStoreMongo DocStoreBackend = "mongo"
	// DocStoreFirestore stores documents in a Firestore collection.
	DocStoreFirestore DocStoreBackend = "firestore"
)

// DocStoreConfig selects the document store backend.
type DocStoreConfig struct {
	Backend DocStoreBackend `env:"DOCSTORE_BACKEND" envDefault:"mongo"`
}

// Sanitize normalises the backend name and falls back to Mongo for unknown values.
func (c *DocStoreConfig) Sanitize() {
	c.Backend = DocStoreBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	switch c.Backend {
	case DocStoreMongo, DocStoreFirestore:
	default:
		c.Backend = DocStoreMongo
	}
}

// MongoConfig contains MongoDB configuration.
type MongoConfig struct {
	URI            string        `env:"URI"             envDefault:"mongodb://localhost:27017"`
	Database       string        `env:"DATABASE"        envDefault:"jobsync"`
	Collection     string        `env:"COLLECTION"      envDefault:"job_listings"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to Mongo configuration values.
func (c *MongoConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// FirestoreConfig contains Firestore configuration.
type FirestoreConfig struct {
	ProjectID  string `env:"PROJECT_ID"`
	Collection string `env:"COLLECTION" envDefault:"job_listings"`
}
