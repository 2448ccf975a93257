package migration

import (
	"context"

	"atomsense/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createSensitivityRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create sensitivity_runs table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createSensitivityRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sensitivity_runs (
			id TEXT PRIMARY KEY,
			encoding TEXT NOT NULL,
			fingerprint VARCHAR(64) NOT NULL,
			config JSONB NOT NULL,
			thresholds JSONB NOT NULL,
			annotations JSONB NOT NULL,
			elements JSONB NOT NULL,
			payload JSONB NOT NULL,
			unscored JSONB NOT NULL,
			runtime_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_sensitivity_runs_created_at ON sensitivity_runs(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_sensitivity_runs_fingerprint ON sensitivity_runs(fingerprint);
	`)
	return err
}
