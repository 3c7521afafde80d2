// Package storagetest runs the shared behavioural checks every storage.Backend must pass.
package storagetest

import (
	"errors"
	"testing"

	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Recording returns a small skeletal recording with n samples spaced 1/30 s apart.
func Recording(n int) *core.Recording {
	samples := make([]core.PoseSample, n)
	for i := range samples {
		samples[i] = core.PoseSample{
			Time:     float64(i) / 30,
			Position: core.Vec3{X: float64(i) * 0.1, Y: 1, Z: -float64(i) * 0.05},
			Rotation: core.Quat{Y: 0.1305261922, W: 0.9914448614},
			Tracked:  i%5 != 4,
			Joints: []core.JointSample{
				{Joint: core.JointHead, Position: core.Vec3{Y: 1.7}, Rotation: core.IdentityQuat(), Tracked: true},
				{Joint: core.JointLeftFoot, Position: core.Vec3{X: -0.1}, Rotation: core.IdentityQuat(), Tracked: i%3 != 0},
			},
		}
	}
	return core.NewRecording(samples)
}

// Run exercises newBackend against the storage contract. newBackend must return
// an initialized, empty backend; Run closes it.
func Run(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	t.Run("RoundTrip", func(t *testing.T) {
		b := open(t, newBackend)
		rec := Recording(45)
		require.NoError(t, b.Save(rec, "take_1"))

		got, err := b.Load("take_1")
		require.NoError(t, err)
		assert.Equal(t, rec.FrameCount, got.FrameCount)
		assert.Equal(t, rec.Duration, got.Duration)
		if diff := cmp.Diff(rec, got, cmpopts.EquateApprox(0, 1e-12), cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("MetadataMatchesLoad", func(t *testing.T) {
		b := open(t, newBackend)
		require.NoError(t, b.Save(Recording(12), "take"))

		meta, ok := b.Metadata("take")
		require.True(t, ok)
		got, err := b.Load("take")
		require.NoError(t, err)

		assert.Equal(t, "take", meta.Name)
		assert.Equal(t, got.FrameCount, meta.FrameCount)
		assert.Equal(t, got.Duration, meta.Duration)
		assert.Positive(t, meta.FileSize)
		assert.False(t, meta.CreatedAt.IsZero())
	})

	t.Run("MetadataMissing", func(t *testing.T) {
		b := open(t, newBackend)
		_, ok := b.Metadata("missing")
		assert.False(t, ok)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		b := open(t, newBackend)
		_, err := b.Load("missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("InvalidName", func(t *testing.T) {
		b := open(t, newBackend)
		assert.ErrorIs(t, b.Save(Recording(1), "../x"), storage.ErrInvalidName)
		_, err := b.Load("a/b")
		assert.ErrorIs(t, err, storage.ErrInvalidName)
	})

	t.Run("SaveEmpty", func(t *testing.T) {
		b := open(t, newBackend)
		assert.ErrorIs(t, b.Save(core.NewRecording(nil), "empty"), storage.ErrEmpty)
		assert.ErrorIs(t, b.Save(nil, "empty"), storage.ErrEmpty)
	})

	t.Run("SaveInconsistent", func(t *testing.T) {
		b := open(t, newBackend)
		handBuilt := &core.Recording{Samples: Recording(2).Samples}
		assert.ErrorIs(t, b.Save(handBuilt, "handbuilt"), core.ErrInvalidRecording)

		backwards := Recording(3)
		backwards.Samples[2].Time = 0
		backwards.Duration = 0
		assert.ErrorIs(t, b.Save(backwards, "backwards"), core.ErrInvalidRecording)

		var ioErr *storage.IoError
		assert.False(t, errors.As(b.Save(handBuilt, "handbuilt"), &ioErr))

		_, ok := b.Metadata("handbuilt")
		assert.False(t, ok)
		_, err := b.Load("handbuilt")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListSortedAndStable", func(t *testing.T) {
		b := open(t, newBackend)
		for _, name := range []string{"b", "c", "a"} {
			require.NoError(t, b.Save(Recording(2), name))
		}
		first, err := b.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, first)

		second, err := b.List()
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("SaveKeepsOtherNames", func(t *testing.T) {
		b := open(t, newBackend)
		require.NoError(t, b.Save(Recording(3), "one"))
		require.NoError(t, b.Save(Recording(7), "two"))

		one, err := b.Load("one")
		require.NoError(t, err)
		assert.Equal(t, 3, one.FrameCount)
	})

	t.Run("OverwriteRefreshesMetadata", func(t *testing.T) {
		b := open(t, newBackend)
		require.NoError(t, b.Save(Recording(3), "take"))
		meta, ok := b.Metadata("take")
		require.True(t, ok)
		assert.Equal(t, 3, meta.FrameCount)

		require.NoError(t, b.Save(Recording(9), "take"))
		meta, ok = b.Metadata("take")
		require.True(t, ok)
		assert.Equal(t, 9, meta.FrameCount)
	})

	t.Run("DeleteAndUsage", func(t *testing.T) {
		b := open(t, newBackend)
		assert.Zero(t, b.TotalStorageUsed())

		require.NoError(t, b.Save(Recording(10), "a"))
		require.NoError(t, b.Save(Recording(20), "b"))

		ma, _ := b.Metadata("a")
		mb, _ := b.Metadata("b")
		assert.Equal(t, uint64(ma.FileSize+mb.FileSize), b.TotalStorageUsed())

		require.NoError(t, b.Delete("a"))
		assert.Equal(t, uint64(mb.FileSize), b.TotalStorageUsed())
		assert.ErrorIs(t, b.Delete("a"), storage.ErrNotFound)

		names, err := b.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, names)
		assert.False(t, storage.Exists(b, "a"))
		assert.True(t, storage.Exists(b, "b"))
	})
}

func open(t *testing.T, newBackend func(t *testing.T) storage.Backend) storage.Backend {
	t.Helper()
	b := newBackend(t)
	t.Cleanup(func() { _ = b.Close() })
	return b
}
