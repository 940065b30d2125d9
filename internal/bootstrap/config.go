package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/target/jobsync/config"
)

// InitLogger initializes the structured logger. Development mode logs at debug level.
func InitLogger(isDev bool) *slog.Logger {
	level := slog.LevelInfo
	if isDev {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateSyncConfig checks the settings a reconciliation pass cannot run without.
func ValidateSyncConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	var errs []error
	if cfg.Source.BaseURL == "" {
		errs = append(errs, errors.New("SOURCE_BASE_URL is required"))
	}
	errs = append(errs, validateDocStore(cfg))
	return errors.Join(errs...)
}

// validateDocStore checks the selected document store backend is configured.
func validateDocStore(cfg *config.AppConfig) error {
	switch cfg.DocStore.Backend {
	case config.DocStoreFirestore:
		if cfg.Firestore.ProjectID == "" {
			return errors.New("FIRESTORE_PROJECT_ID is required when DOCSTORE_BACKEND=firestore")
		}
		if cfg.Firestore.Collection == "" {
			return errors.New("FIRESTORE_COLLECTION is required when DOCSTORE_BACKEND=firestore")
		}
	default:
		if cfg.Mongo.URI == "" {
			return errors.New("MONGO_URI is required when DOCSTORE_BACKEND=mongo")
		}
		if cfg.Mongo.Database == "" || cfg.Mongo.Collection == "" {
			return errors.New("MONGO_DATABASE and MONGO_COLLECTION are required when DOCSTORE_BACKEND=mongo")
		}
	}
	return nil
}
