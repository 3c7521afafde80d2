// Package export writes recordings as JSON interchange files for external tools.
package export

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	v1 "github.com/OCAP2/mocap/internal/export/v1"
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/google/renameio/v2"
)

type Options struct {
	OutputDir string
	Compress  bool
}

// FileName returns the export file name for a recording name.
func FileName(name string, compress bool) string {
	if compress {
		return name + ".json.gz"
	}
	return name + ".json"
}

// Write builds the v1 export for rec and writes it atomically into opts.OutputDir.
// It returns the written path.
func Write(opts Options, meta core.RecordingMetadata, rec *core.Recording) (string, error) {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	data := v1.Build(&v1.RecordingData{
		Name:      meta.Name,
		CreatedAt: meta.CreatedAt,
		Recording: rec,
	})

	path := filepath.Join(opts.OutputDir, FileName(meta.Name, opts.Compress))
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("create pending export file: %w", err)
	}
	defer pending.Cleanup()

	if err := Encode(pending, data, opts.Compress); err != nil {
		return "", err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace export file: %w", err)
	}
	return path, nil
}

// Encode writes data as JSON, gzipped when compress is set.
func Encode(w io.Writer, data v1.Export, compress bool) error {
	if !compress {
		return json.NewEncoder(w).Encode(data)
	}

	gzWriter := gzip.NewWriter(w)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		_ = gzWriter.Close()
		return fmt.Errorf("encode export: %w", err)
	}
	return gzWriter.Close()
}
