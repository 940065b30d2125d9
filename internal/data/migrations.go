package data

import (
	"context"
	"database/sql"

	"github.com/target/jobsync/internal/migrate"
)

// RunMigrations creates or upgrades the listings schema by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}

// MigrationStatus lists embedded migrations and whether each is applied.
func MigrationStatus(ctx context.Context, db *sql.DB) ([]migrate.Status, error) {
	return migrate.List(ctx, db)
}
