package export

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	v1 "github.com/OCAP2/mocap/internal/export/v1"
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecording() *core.Recording {
	return core.NewRecording([]core.PoseSample{
		{Time: 0, Rotation: core.IdentityQuat(), Tracked: true},
		{Time: 1, Position: core.Vec3{X: 1}, Rotation: core.IdentityQuat(), Tracked: true},
	})
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "take.json", FileName("take", false))
	assert.Equal(t, "take.json.gz", FileName("take", true))
}

func TestWrite_Plain(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	meta := core.RecordingMetadata{Name: "take", CreatedAt: time.Now()}

	path, err := Write(Options{OutputDir: dir}, meta, testRecording())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "take.json"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got v1.Export
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "take", got.Name)
	assert.Equal(t, 2, got.FrameCount)
	assert.Len(t, got.Samples, 2)
}

func TestWrite_Compressed(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(Options{OutputDir: dir, Compress: true}, core.RecordingMetadata{Name: "take"}, testRecording())
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var got v1.Export
	require.NoError(t, json.NewDecoder(gz).Decode(&got))
	assert.Equal(t, 1.0, got.Duration)
}
