// Package postgres implements storage.Backend on PostgreSQL through the GORM
// backend. When the server is unreachable the connection falls back to a local
// SQLite file so recordings are never dropped.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/OCAP2/mocap/internal/config"
	"github.com/OCAP2/mocap/internal/database"
	gormstorage "github.com/OCAP2/mocap/internal/storage/gorm"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Config holds the connection settings and the SQLite fallback location.
type Config struct {
	Postgres     config.PostgresConfig
	FallbackPath string
}

// Dependencies holds the loggers and clock for the backend.
type Dependencies struct {
	Logger   *slog.Logger
	DBLogger zerolog.Logger
	Clock    clockwork.Clock
}

// Backend implements storage.Backend on a database.Manager connection.
type Backend struct {
	*gormstorage.Backend
	manager *database.Manager
}

// New connects to the database. It only fails when neither Postgres nor the
// fallback can be opened.
func New(cfg Config, deps Dependencies) (*Backend, error) {
	m := database.NewManager(deps.DBLogger)
	if err := m.Connect(cfg.Postgres, cfg.FallbackPath); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:     m.DB,
			Logger: deps.Logger,
			Clock:  deps.Clock,
		}),
		manager: m,
	}, nil
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if err := b.manager.Setup(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	return b.manager.Close()
}

// UsingFallback reports whether recordings go to the local SQLite file.
func (b *Backend) UsingFallback() bool {
	return b.manager.ShouldSaveLocal
}
