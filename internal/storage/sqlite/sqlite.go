// Package sqlitestorage implements storage.Backend on SQLite. It wraps the
// GORM backend; the SQLite-specific concerns are opening the database (in
// memory or on disk) and periodically dumping an in-memory database to disk
// via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/mocap/internal/database"
	gormstorage "github.com/OCAP2/mocap/internal/storage/gorm"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	// Path of the database file. Empty keeps the database in memory.
	Path string
	// MemoryName names the shared in-memory database; defaults to "mocap".
	MemoryName   string
	DumpInterval time.Duration
	DumpPath     string // Path for periodic VACUUM INTO dumps
}

// Dependencies holds the loggers used by the backend and its dump loop.
type Dependencies struct {
	Logger   *slog.Logger
	DBLogger zerolog.Logger
	Clock    clockwork.Clock
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db        *gorm.DB
	cfg       Config
	deps      Dependencies
	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New opens the SQLite database and creates the backend.
func New(cfg Config, deps Dependencies) (*Backend, error) {
	var (
		db  *gorm.DB
		err error
	)
	if cfg.Path == "" {
		name := cfg.MemoryName
		if name == "" {
			name = "mocap"
		}
		db, err = database.GetSqliteMemoryDB(name)
	} else {
		db, err = database.GetSqliteDBStandalone(cfg.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:     db,
			Logger: deps.Logger,
			Clock:  deps.Clock,
		}),
		db:       db,
		cfg:      cfg,
		deps:     deps,
		stopChan: make(chan struct{}),
	}, nil
}

func (b *Backend) inMemory() bool {
	return b.cfg.Path == ""
}

// Init migrates the schema and starts the dump goroutine for in-memory databases.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.inMemory() && b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			database.DumpLoop(b.db, b.cfg.DumpPath, b.cfg.DumpInterval, b.deps.DBLogger, b.stopChan)
		}()
	}

	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the connection.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopChan)
		b.wg.Wait()

		if b.inMemory() && b.cfg.DumpPath != "" {
			if dumpErr := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); dumpErr != nil {
				b.deps.DBLogger.Error().Err(dumpErr).Msg("Final dump failed")
				err = dumpErr
			}
		}

		sqlDB, dbErr := b.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		if closeErr := sqlDB.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}
