package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend    = (*Backend)(nil)
	_ storage.Uploadable = (*Backend)(nil)
)

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		b := New(Config{}, Dependencies{})
		require.NoError(t, b.Init())
		return b
	})
}

func TestLoad_Corrupt(t *testing.T) {
	b := New(Config{}, Dependencies{})
	require.NoError(t, b.Save(storagetest.Recording(3), "take"))

	b.mu.Lock()
	bl := b.blobs["take"]
	bl.data = bl.data[:len(bl.data)-1]
	b.blobs["take"] = bl
	b.mu.Unlock()

	_, err := b.Load("take")
	assert.ErrorIs(t, err, storage.ErrCorrupt)

	// The header is intact, so metadata is still served.
	meta, ok := b.Metadata("take")
	require.True(t, ok)
	assert.Equal(t, 3, meta.FrameCount)
}

func TestSave_ExportsJSON(t *testing.T) {
	dir := t.TempDir()
	b := New(Config{OutputDir: dir, CompressOutput: true}, Dependencies{})

	assert.Empty(t, b.GetExportedFilePath())
	require.NoError(t, b.Save(storagetest.Recording(6), "take"))

	path := b.GetExportedFilePath()
	assert.Equal(t, filepath.Join(dir, "take.json.gz"), path)
	_, err := os.Stat(path)
	require.NoError(t, err)

	meta := b.GetExportMetadata()
	assert.Equal(t, "take", meta.SessionID)
	assert.Equal(t, 6, meta.FrameCount)
}

func TestSave_ExportFailureKeepsRecording(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	b := New(Config{OutputDir: blocker}, Dependencies{})

	require.NoError(t, b.Save(storagetest.Recording(4), "take"))

	rec, err := b.Load("take")
	require.NoError(t, err)
	assert.Equal(t, 4, rec.FrameCount)
	assert.Empty(t, b.GetExportedFilePath())
}
