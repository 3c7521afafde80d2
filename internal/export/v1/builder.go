package v1

import (
	"time"

	"github.com/OCAP2/mocap/internal/spatial"
	"github.com/OCAP2/mocap/pkg/core"
)

// RecordingData contains all the data needed to build an export
type RecordingData struct {
	Name      string
	CreatedAt time.Time
	Recording *core.Recording
}

// Build creates an Export from a recording
func Build(data *RecordingData) Export {
	rec := data.Recording
	export := Export{
		FormatVersion: Version,
		Name:          data.Name,
		Joints:        make([]string, 0),
		Samples:       make([][]any, 0),
	}
	if !data.CreatedAt.IsZero() {
		export.CreatedAt = data.CreatedAt.UTC().Format(time.RFC3339)
	}
	if rec.Empty() {
		return export
	}

	export.Duration = rec.Duration
	export.FrameCount = rec.FrameCount
	if rec.Duration > 0 && rec.FrameCount > 1 {
		export.CaptureRate = float64(rec.FrameCount-1) / rec.Duration
	}

	// Joint indices follow first appearance so the table stays small for partial skeletons.
	jointIndex := make(map[core.JointKind]int)
	export.Samples = make([][]any, 0, len(rec.Samples))
	for _, s := range rec.Samples {
		sample := []any{
			s.Time,
			vec(s.Position),
			quat(s.Rotation),
			boolToInt(s.Tracked),
		}
		if len(s.Joints) > 0 {
			joints := make([][]any, 0, len(s.Joints))
			for _, j := range s.Joints {
				idx, ok := jointIndex[j.Joint]
				if !ok {
					idx = len(export.Joints)
					jointIndex[j.Joint] = idx
					export.Joints = append(export.Joints, j.Joint.String())
				}
				joints = append(joints, []any{idx, vec(j.Position), quat(j.Rotation), boolToInt(j.Tracked)})
			}
			sample = append(sample, joints)
		}
		export.Samples = append(export.Samples, sample)
	}

	if _, ok := spatial.GroundTrack(rec); ok {
		fp := spatial.FootprintOf(rec)
		export.Footprint = &Footprint{
			PathLength: fp.PathLength,
			Min:        [2]float64{fp.MinX, fp.MinZ},
			Max:        [2]float64{fp.MaxX, fp.MaxZ},
			Center:     [2]float64{fp.CenterX, fp.CenterZ},
		}
	}

	return export
}

func vec(v core.Vec3) []float64 {
	return []float64{v.X, v.Y, v.Z}
}

func quat(q core.Quat) []float64 {
	return []float64{q.X, q.Y, q.Z, q.W}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
