package sqlitestorage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/OCAP2/mocap/internal/database"
	"github.com/OCAP2/mocap/internal/storage"
	gormstorage "github.com/OCAP2/mocap/internal/storage/gorm"
	"github.com/OCAP2/mocap/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var _ storage.Backend = (*Backend)(nil)

var memSeq atomic.Int64

func memoryName() string {
	return fmt.Sprintf("sqlite_test_%d", memSeq.Add(1))
}

func TestContract_File(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		b, err := New(Config{Path: filepath.Join(t.TempDir(), "rec.db")}, Dependencies{})
		require.NoError(t, err)
		require.NoError(t, b.Init())
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestContract_Memory(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		b, err := New(Config{MemoryName: memoryName()}, Dependencies{})
		require.NoError(t, err)
		require.NoError(t, b.Init())
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestClose_DumpsMemoryDB(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dump := filepath.Join(t.TempDir(), "dump.db")
	b, err := New(Config{
		MemoryName:   memoryName(),
		DumpPath:     dump,
		DumpInterval: 1 << 40, // never fires during the test
	}, Dependencies{})
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.Save(storagetest.Recording(5), "take"))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = os.Stat(dump)
	require.NoError(t, err)

	// The dump is a regular SQLite file readable by the GORM backend.
	db, err := database.GetSqliteDBStandalone(dump)
	require.NoError(t, err)
	reopened := gormstorage.New(gormstorage.Dependencies{DB: db})
	require.NoError(t, reopened.Init())

	rec, err := reopened.Load("take")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.FrameCount)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestFileBackend_NoDump(t *testing.T) {
	dir := t.TempDir()
	b, err := New(Config{
		Path:     filepath.Join(dir, "rec.db"),
		DumpPath: filepath.Join(dir, "dump.db"),
	}, Dependencies{})
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())

	_, err = os.Stat(filepath.Join(dir, "dump.db"))
	assert.True(t, os.IsNotExist(err))
}
