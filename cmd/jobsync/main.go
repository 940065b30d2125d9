package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/jobsync/config"
	"github.com/target/jobsync/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger(false)
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.IsDev {
		logger = bootstrap.InitLogger(true)
	}

	if err = bootstrap.ValidateSyncConfig(&cfg); err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg)

	if !cfg.Postgres.RunMigrationsOnStart {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	return bootstrap.RunSync(&cfg, logger)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	mode := "single-pass"
	if cfg.Sync.Interval > 0 {
		mode = "periodic"
	}
	logger.InfoContext(ctx, "starting jobsync",
		"mode", mode,
		"interval", cfg.Sync.Interval,
		"source", cfg.Source.BaseURL,
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
		"docstore", cfg.DocStore.Backend,
		"write_concurrency", cfg.Sync.WriteConcurrency,
	)
}
