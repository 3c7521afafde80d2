package postgres

import (
	"path/filepath"
	"testing"

	"github.com/OCAP2/mocap/internal/config"
	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/internal/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

// unreachable points at a port nothing listens on.
var unreachable = config.PostgresConfig{
	Host: "127.0.0.1", Port: "1", Username: "x", Password: "x", Database: "x", SSLMode: "disable",
}

func newFallbackBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{
		Postgres:     unreachable,
		FallbackPath: filepath.Join(t.TempDir(), "fallback.db"),
	}, Dependencies{})
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestFallback(t *testing.T) {
	b := newFallbackBackend(t)
	assert.True(t, b.UsingFallback())
}

func TestContract_Fallback(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return newFallbackBackend(t)
	})
}
