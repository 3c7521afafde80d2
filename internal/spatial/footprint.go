package spatial

import (
	"math"

	"github.com/OCAP2/mocap/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Footprint summarizes where the tracked root moved on the ground (X/Z) plane,
// in anchor-relative meters.
type Footprint struct {
	PathLength float64 `json:"pathLength"`
	MinX       float64 `json:"minX"`
	MinZ       float64 `json:"minZ"`
	MaxX       float64 `json:"maxX"`
	MaxZ       float64 `json:"maxZ"`
	CenterX    float64 `json:"centerX"`
	CenterZ    float64 `json:"centerZ"`
}

// GroundTrack builds the ground-plane line string of the tracked root positions.
// It returns false if fewer than two tracked samples exist.
func GroundTrack(rec *core.Recording) (geom.LineString, bool) {
	if rec == nil {
		return geom.LineString{}, false
	}
	flat := make([]float64, 0, len(rec.Samples)*2)
	for _, s := range rec.Samples {
		if !s.Tracked {
			continue
		}
		flat = append(flat, s.Position.X, s.Position.Z)
	}
	if len(flat) < 4 {
		return geom.LineString{}, false
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY)), true
}

// FootprintOf computes the ground footprint of a recording.
// Recordings with fewer than two tracked samples have a zero footprint
// located at the single tracked sample, if any.
func FootprintOf(rec *core.Recording) Footprint {
	var fp Footprint
	if rec == nil {
		return fp
	}

	first := true
	for _, s := range rec.Samples {
		if !s.Tracked {
			continue
		}
		if first {
			fp.MinX, fp.MaxX = s.Position.X, s.Position.X
			fp.MinZ, fp.MaxZ = s.Position.Z, s.Position.Z
			first = false
			continue
		}
		fp.MinX = math.Min(fp.MinX, s.Position.X)
		fp.MaxX = math.Max(fp.MaxX, s.Position.X)
		fp.MinZ = math.Min(fp.MinZ, s.Position.Z)
		fp.MaxZ = math.Max(fp.MaxZ, s.Position.Z)
	}
	fp.CenterX = (fp.MinX + fp.MaxX) / 2
	fp.CenterZ = (fp.MinZ + fp.MaxZ) / 2

	track, ok := GroundTrack(rec)
	if !ok {
		return fp
	}
	fp.PathLength = track.Length()
	if c, ok := track.Centroid().Coordinates(); ok {
		fp.CenterX, fp.CenterZ = c.X, c.Y
	}
	return fp
}
