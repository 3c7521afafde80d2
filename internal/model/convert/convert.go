package convert

import (
	"encoding/json"

	"github.com/OCAP2/mocap/internal/model"
	"github.com/OCAP2/mocap/internal/spatial"
	"github.com/OCAP2/mocap/internal/storage/format"
	"github.com/OCAP2/mocap/pkg/core"
)

// RecordingToMetadata builds metadata from the header columns only.
func RecordingToMetadata(r model.Recording) core.RecordingMetadata {
	return core.RecordingMetadata{
		Name:          r.Name,
		Duration:      r.Duration,
		FrameCount:    r.FrameCount,
		FileSize:      r.SizeBytes,
		CreatedAt:     r.CreatedAt,
		FormatVersion: r.FormatVersion,
	}
}

// RecordingToCore decodes the blob of a GORM row.
func RecordingToCore(r model.Recording) (*core.Recording, error) {
	rec, _, err := format.Unmarshal(r.Data)
	return rec, err
}

// RecordingFootprint decodes the stored footprint column.
func RecordingFootprint(r model.Recording) (spatial.Footprint, bool) {
	var fp spatial.Footprint
	if len(r.Footprint) == 0 {
		return fp, false
	}
	if err := json.Unmarshal(r.Footprint, &fp); err != nil {
		return fp, false
	}
	return fp, true
}
