// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/OCAP2/mocap/internal/model"
	"github.com/OCAP2/mocap/internal/spatial"
	"github.com/OCAP2/mocap/internal/storage/format"
	"github.com/OCAP2/mocap/pkg/core"
	"gorm.io/datatypes"
)

// footprintToJSON converts a recording's ground footprint to datatypes.JSON for DB storage.
func footprintToJSON(rec *core.Recording) datatypes.JSON {
	data, err := json.Marshal(spatial.FootprintOf(rec))
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(data)
}

// CoreToRecording encodes a core.Recording into a GORM model.Recording row.
func CoreToRecording(name string, rec *core.Recording, createdAt time.Time) (model.Recording, error) {
	data, err := format.Marshal(rec, createdAt)
	if err != nil {
		return model.Recording{}, fmt.Errorf("encode recording: %w", err)
	}
	return model.Recording{
		CreatedAt:     createdAt,
		Name:          name,
		FormatVersion: format.Version,
		FrameCount:    rec.FrameCount,
		Duration:      rec.Duration,
		HasJoints:     rec.HasJoints(),
		SizeBytes:     int64(len(data)),
		Footprint:     footprintToJSON(rec),
		Data:          data,
	}, nil
}

// CoreToSessionVideo converts a video finalization handle to a GORM row.
func CoreToSessionVideo(h core.FileWritingHandle, finalizedAt time.Time) model.SessionVideo {
	v := model.SessionVideo{
		SessionID:   h.SessionID,
		Path:        h.Path,
		FinalizedAt: finalizedAt,
	}
	if h.Err != nil {
		v.Error = h.Err.Error()
	}
	return v
}
