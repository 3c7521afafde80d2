package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func samplesAt(times ...float64) []PoseSample {
	out := make([]PoseSample, len(times))
	for i, tm := range times {
		out[i] = PoseSample{Time: tm, Rotation: IdentityQuat(), Tracked: true}
	}
	return out
}

func TestNewRecording(t *testing.T) {
	r := NewRecording(samplesAt(0, 0.5, 1.25))

	assert.Equal(t, 3, r.FrameCount)
	assert.Equal(t, 1.25, r.Duration)
	assert.False(t, r.Empty())
	assert.NoError(t, r.Validate())
}

func TestNewRecording_Empty(t *testing.T) {
	r := NewRecording(nil)

	assert.Equal(t, 0, r.FrameCount)
	assert.Equal(t, 0.0, r.Duration)
	assert.True(t, r.Empty())
	assert.NoError(t, r.Validate())

	var nilRec *Recording
	assert.True(t, nilRec.Empty())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		rec  *Recording
	}{
		{"decreasing time", NewRecording(samplesAt(0, 1, 0.5))},
		{"negative time", NewRecording(samplesAt(-1, 0))},
		{"frame count mismatch", &Recording{Samples: samplesAt(0, 1), FrameCount: 3, Duration: 1}},
		{"duration mismatch", &Recording{Samples: samplesAt(0, 1), FrameCount: 2, Duration: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			assert.True(t, errors.Is(err, ErrInvalidRecording), "got %v", err)
		})
	}
}

func TestValidate_AllowsDuplicateTimes(t *testing.T) {
	assert.NoError(t, NewRecording(samplesAt(0, 0.5, 0.5, 1)).Validate())
}

func TestHasJoints(t *testing.T) {
	r := NewRecording(samplesAt(0, 1))
	assert.False(t, r.HasJoints())

	r.Samples[1].Joints = []JointSample{{Joint: JointHead, Tracked: true}}
	assert.True(t, r.HasJoints())
}

func TestSynchronizedRecordingResult_IsValid(t *testing.T) {
	withFrames := NewRecording(samplesAt(0))

	assert.True(t, (&SynchronizedRecordingResult{Recording: withFrames, VideoFilePath: "/v.mp4"}).IsValid())
	assert.False(t, (&SynchronizedRecordingResult{Recording: withFrames}).IsValid())
	assert.False(t, (&SynchronizedRecordingResult{Recording: NewRecording(nil), VideoFilePath: "/v.mp4"}).IsValid())
	assert.False(t, (&SynchronizedRecordingResult{VideoFilePath: "/v.mp4"}).IsValid())

	var nilResult *SynchronizedRecordingResult
	assert.False(t, nilResult.IsValid())
}

func TestMetadataFormatting(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := MetadataFor("take_1", NewRecording(samplesAt(0, 65.25)), 2_500_000, created)

	assert.Equal(t, "take_1", m.Name)
	assert.Equal(t, 2, m.FrameCount)
	assert.Equal(t, FormatVersion, m.FormatVersion)
	assert.Equal(t, "1:05.250", m.FormattedDuration())
	assert.Equal(t, "2.5 MB", m.FormattedSize())
	assert.NotEqual(t, "unknown", m.FormattedCreatedAt())

	assert.Equal(t, "unknown", RecordingMetadata{}.FormattedCreatedAt())
}

func TestJointKindString(t *testing.T) {
	assert.Equal(t, "hips", JointHips.String())
	assert.Equal(t, "right_toes", JointRightToes.String())
	assert.Equal(t, "joint(99)", JointKind(99).String())
	assert.False(t, JointKindCount.Valid())
}

func TestOperationModeString(t *testing.T) {
	assert.Equal(t, "ready", ModeReady.String())
	assert.Equal(t, "recording", ModeRecording.String())
	assert.Equal(t, "playing", ModePlaying.String())
	assert.Equal(t, "unknown", OperationMode(42).String())
}
