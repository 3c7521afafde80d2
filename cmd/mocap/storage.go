package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/OCAP2/mocap/internal/config"
	"github.com/OCAP2/mocap/internal/storage"
	filestorage "github.com/OCAP2/mocap/internal/storage/file"
	"github.com/OCAP2/mocap/internal/storage/memory"
	pgstorage "github.com/OCAP2/mocap/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/mocap/internal/storage/sqlite"
)

type storageDeps struct {
	Logger   *slog.Logger
	DBLogger zerolog.Logger
}

func (a *app) storageDeps() storageDeps {
	return storageDeps{Logger: a.log, DBLogger: a.dbLog}
}

func createStorageBackend(cfg config.StorageConfig, deps storageDeps) (storage.Backend, error) {
	switch cfg.Type {
	case "memory":
		deps.Logger.Info("Memory storage backend selected")
		return memory.New(memory.Config{
			OutputDir:      cfg.Memory.OutputDir,
			CompressOutput: cfg.Memory.CompressOutput,
		}, memory.Dependencies{Logger: deps.Logger}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         cfg.SQLite.Path,
			DumpPath:     cfg.SQLite.DumpPath,
			DumpInterval: cfg.SQLite.DumpInterval,
		}, sqlitestorage.Dependencies{Logger: deps.Logger, DBLogger: deps.DBLogger})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		deps.Logger.Info("SQLite storage backend selected", "path", cfg.SQLite.Path, "dumpPath", cfg.SQLite.DumpPath)
		return backend, nil

	case "postgres":
		fallback := cfg.SQLite.DumpPath
		if fallback == "" {
			fallback = filepath.Join(".", "mocap_fallback.db")
		}
		backend, err := pgstorage.New(pgstorage.Config{
			Postgres:     cfg.Postgres,
			FallbackPath: fallback,
		}, pgstorage.Dependencies{Logger: deps.Logger, DBLogger: deps.DBLogger})
		if err != nil {
			return nil, err
		}
		if backend.UsingFallback() {
			deps.Logger.Warn("Postgres unreachable, using SQLite fallback", "path", fallback)
		} else {
			deps.Logger.Info("Postgres storage backend selected", "host", cfg.Postgres.Host)
		}
		return backend, nil

	case "file", "":
		deps.Logger.Info("File storage backend selected", "root", cfg.File.Root)
		return filestorage.New(filestorage.Config{
			Root:  cfg.File.Root,
			Watch: cfg.File.Watch,
		}, filestorage.Dependencies{Logger: deps.Logger}), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
