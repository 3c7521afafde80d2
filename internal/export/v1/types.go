// Package v1 contains the v1 JSON interchange format for recordings.
package v1

// Version is written to every export's formatVersion field.
const Version = 1

// Export is the root JSON structure for v1 format
type Export struct {
	FormatVersion int        `json:"formatVersion"`
	Name          string     `json:"name"`
	CreatedAt     string     `json:"createdAt,omitempty"`
	Duration      float64    `json:"duration"`
	FrameCount    int        `json:"frameCount"`
	CaptureRate   float64    `json:"captureRate"`
	Joints        []string   `json:"joints"`
	Footprint     *Footprint `json:"footprint,omitempty"`
	// Samples are positional arrays:
	// [time, [x,y,z], [qx,qy,qz,qw], tracked, joints]
	// where joints is a list of [jointIndex, [x,y,z], [qx,qy,qz,qw], tracked]
	// and jointIndex refers to the Joints table.
	Samples [][]any `json:"samples"`
}

// Footprint is the ground-plane extent covered by the root.
type Footprint struct {
	PathLength float64    `json:"pathLength"`
	Min        [2]float64 `json:"min"`
	Max        [2]float64 `json:"max"`
	Center     [2]float64 `json:"center"`
}
