package container

import (
	"context"
	"fmt"

	"atomsense/adapters/chemservice"
	"atomsense/adapters/colorscale"
	"atomsense/adapters/memory"
	"atomsense/adapters/postgres"
	"atomsense/app"
	"atomsense/internal"
	"atomsense/internal/config"
	"atomsense/internal/migration"
	"atomsense/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB *sqlx.DB

	// Adapters
	Chem   *chemservice.Client
	Colors *colorscale.Registry
	Runs   ports.RunRepository

	// Application services
	Sensitivity *app.SensitivityService
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	chem, err := chemservice.NewClient(chemservice.Config{
		BaseURL: cfg.ChemService.URL,
		APIKey:  cfg.ChemService.APIKey,
		Model:   cfg.ChemService.Model,
		Timeout: cfg.ChemService.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chemistry service client: %w", err)
	}

	colors, err := colorscale.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build colour scales: %w", err)
	}

	return &Container{
		Config: cfg,
		Logger: internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)),
		Chem:   chem,
		Colors: colors,
	}, nil
}

// InitWithDatabase stores runs in PostgreSQL, migrating the schema first
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	c.DB = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	if err := migration.NewRunner().Run(ctx, db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	c.Runs = postgres.NewRunRepository(db)
	c.initServices()
	c.Logger.Info("container initialized with PostgreSQL run store")
	return nil
}

// InitInMemory keeps runs in process memory
func (c *Container) InitInMemory() {
	c.Runs = memory.NewRunRepository()
	c.initServices()
	c.Logger.Info("container initialized with in-memory run store")
}

func (c *Container) initServices() {
	c.Sensitivity = app.NewSensitivityService(c.Chem, c.Chem, c.Chem, c.Colors, c.Runs, c.Logger)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
