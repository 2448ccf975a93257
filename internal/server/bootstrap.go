package server

import (
	"context"

	"atomsense/internal/config"
	"atomsense/internal/container"
	"atomsense/internal/errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Bootstrap builds a container from cfg, connecting to PostgreSQL when a
// database URL is configured and falling back to the in-memory store otherwise.
func Bootstrap(ctx context.Context, cfg *config.Config) (*container.Container, error) {
	c, err := container.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create application container")
	}

	if !cfg.Database.Enabled() {
		c.InitInMemory()
		return c, nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to connect to database"))
	}
	if err := c.InitWithDatabase(ctx, db); err != nil {
		db.Close()
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to initialize container"))
	}
	return c, nil
}
