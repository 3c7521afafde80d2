package filestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func newTestBackend(t *testing.T, watch bool) *Backend {
	t.Helper()
	b := New(Config{Root: filepath.Join(t.TempDir(), "recordings"), Watch: watch}, Dependencies{})
	require.NoError(t, b.Init())
	return b
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return newTestBackend(t, false)
	})
}

func TestLoad_CorruptFileIsReported(t *testing.T) {
	b := newTestBackend(t, false)
	defer b.Close()

	require.NoError(t, b.Save(storagetest.Recording(5), "good"))
	require.NoError(t, os.WriteFile(filepath.Join(b.Root(), "bad"+Extension), []byte("MOCPgarbage"), 0o644))

	_, err := b.Load("bad")
	assert.ErrorIs(t, err, storage.ErrCorrupt)

	_, ok := b.Metadata("bad")
	assert.False(t, ok)

	// Other recordings are unaffected.
	rec, err := b.Load("good")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.FrameCount)
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	b := newTestBackend(t, false)
	defer b.Close()

	require.NoError(t, b.Save(storagetest.Recording(2), "take"))
	require.NoError(t, os.WriteFile(filepath.Join(b.Root(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(b.Root(), ".partial"+Extension), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(b.Root(), "dir"+Extension), 0o755))

	names, err := b.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"take"}, names)
}

func TestMetadata_Cached(t *testing.T) {
	b := newTestBackend(t, false)
	defer b.Close()

	require.NoError(t, b.Save(storagetest.Recording(4), "take"))
	_, ok := b.Metadata("take")
	require.True(t, ok)
	_, ok = b.Metadata("take")
	require.True(t, ok)

	hits, misses := b.CacheStats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestMetadata_OutOfBandChange(t *testing.T) {
	b := newTestBackend(t, false)
	defer b.Close()

	require.NoError(t, b.Save(storagetest.Recording(4), "take"))
	meta, ok := b.Metadata("take")
	require.True(t, ok)
	assert.Equal(t, 4, meta.FrameCount)

	// Replace the file behind the backend's back.
	other := New(Config{Root: b.Root()}, Dependencies{})
	require.NoError(t, other.Save(storagetest.Recording(11), "take"))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(b.Root(), "take"+Extension), later, later))

	meta, ok = b.Metadata("take")
	require.True(t, ok)
	assert.Equal(t, 11, meta.FrameCount)
}

func TestUsage_MissingRoot(t *testing.T) {
	b := New(Config{Root: filepath.Join(t.TempDir(), "never-created")}, Dependencies{})
	assert.Zero(t, b.TotalStorageUsed())
	names, err := b.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestWatcher_StopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := newTestBackend(t, true)
	require.NoError(t, b.Save(storagetest.Recording(3), "take"))
	_, ok := b.Metadata("take")
	require.True(t, ok)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
