// pkg/core/recording.go
package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatVersion is the version of the persisted recording layout written by
// this module.
const FormatVersion uint32 = 1

// ErrInvalidRecording is returned by Validate when sample timing or counts are inconsistent
var ErrInvalidRecording = errors.New("invalid recording")

// PoseSample is one instant of recorded motion.
// Time is seconds since recording start. Transforms are relative to the anchor
// as it was detected at capture time.
type PoseSample struct {
	Time     float64       `json:"time"`
	Position Vec3          `json:"position"`
	Rotation Quat          `json:"rotation"`
	Tracked  bool          `json:"tracked"`
	Joints   []JointSample `json:"joints,omitempty"`
}

// Recording is an ordered sequence of samples. It is not modified after creation.
type Recording struct {
	Samples    []PoseSample `json:"samples"`
	Duration   float64      `json:"duration"`
	FrameCount int          `json:"frameCount"`
}

// NewRecording builds a Recording and derives its duration and frame count.
func NewRecording(samples []PoseSample) *Recording {
	r := &Recording{
		Samples:    samples,
		FrameCount: len(samples),
	}
	if len(samples) > 0 {
		r.Duration = samples[len(samples)-1].Time
	}
	return r
}

// Empty reports whether the recording has no frames.
func (r *Recording) Empty() bool {
	return r == nil || len(r.Samples) == 0
}

// HasJoints reports whether any sample carries skeletal data.
func (r *Recording) HasJoints() bool {
	for _, s := range r.Samples {
		if len(s.Joints) > 0 {
			return true
		}
	}
	return false
}

// Validate checks that the derived fields match the samples and that sample
// times are finite, non-negative and non-decreasing.
func (r *Recording) Validate() error {
	if r.FrameCount != len(r.Samples) {
		return fmt.Errorf("%w: frame count %d does not match %d samples", ErrInvalidRecording, r.FrameCount, len(r.Samples))
	}
	prev := 0.0
	for i, s := range r.Samples {
		if math.IsNaN(s.Time) || math.IsInf(s.Time, 0) || s.Time < 0 {
			return fmt.Errorf("%w: sample %d has time %v", ErrInvalidRecording, i, s.Time)
		}
		if i > 0 && s.Time < prev {
			return fmt.Errorf("%w: sample %d time %v precedes %v", ErrInvalidRecording, i, s.Time, prev)
		}
		prev = s.Time
	}
	if len(r.Samples) > 0 && r.Duration != prev {
		return fmt.Errorf("%w: duration %v does not match last sample time %v", ErrInvalidRecording, r.Duration, prev)
	}
	return nil
}

// RecordingMetadata summarizes a stored recording.
// It is always derivable from the recording itself and its blob.
type RecordingMetadata struct {
	Name          string    `json:"name"`
	Duration      float64   `json:"duration"`
	FrameCount    int       `json:"frameCount"`
	FileSize      int64     `json:"fileSize"`
	CreatedAt     time.Time `json:"createdAt"`
	FormatVersion uint32    `json:"formatVersion"`
}

// MetadataFor derives metadata from a recording and the size of its blob.
func MetadataFor(name string, r *Recording, size int64, createdAt time.Time) RecordingMetadata {
	return RecordingMetadata{
		Name:          name,
		Duration:      r.Duration,
		FrameCount:    r.FrameCount,
		FileSize:      size,
		CreatedAt:     createdAt,
		FormatVersion: FormatVersion,
	}
}

// FormattedDuration renders the duration as m:ss.mmm
func (m RecordingMetadata) FormattedDuration() string {
	d := time.Duration(m.Duration * float64(time.Second))
	minutes := int(d / time.Minute)
	seconds := d % time.Minute
	return fmt.Sprintf("%d:%06.3f", minutes, seconds.Seconds())
}

// FormattedSize renders the blob size, e.g. "1.2 MB".
func (m RecordingMetadata) FormattedSize() string {
	if m.FileSize < 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(m.FileSize))
}

// FormattedCreatedAt renders the creation time relative to now, e.g. "3 minutes ago".
func (m RecordingMetadata) FormattedCreatedAt() string {
	if m.CreatedAt.IsZero() {
		return "unknown"
	}
	return humanize.Time(m.CreatedAt)
}
