package coordinator

import (
	"time"

	"github.com/OCAP2/mocap/internal/dispatcher"
	"github.com/OCAP2/mocap/internal/playback"
	"github.com/OCAP2/mocap/pkg/core"
)

// Event kinds published by the coordinator.
const (
	EventRecordingStarted      dispatcher.Kind = "recording.started"
	EventRecordingCompleted    dispatcher.Kind = "recording.completed"
	EventRecordingSynchronized dispatcher.Kind = "recording.synchronized"
	EventRecordingFailed       dispatcher.Kind = "recording.failed"
	EventRecordingProgress     dispatcher.Kind = "recording.progress"
	EventPlaybackStarted       dispatcher.Kind = "playback.started"
	EventPlaybackStopped       dispatcher.Kind = "playback.stopped"
	EventPlaybackProgress      dispatcher.Kind = "playback.progress"
	EventVideoFinalized        dispatcher.Kind = "video.finalized"
)

// StopReason says why a recording ended.
type StopReason string

const (
	ReasonRequested  StopReason = "requested"
	ReasonAnchorLost StopReason = "anchor_lost"
)

// RecordingStarted is the payload of EventRecordingStarted.
type RecordingStarted struct {
	SessionID    string
	Synchronized bool
	StartedAt    time.Time
}

// RecordingCompleted is the payload of EventRecordingCompleted, published
// after a pose-only stop. Name is empty and Err set when persisting failed.
type RecordingCompleted struct {
	Name      string
	Recording *core.Recording
	Reason    StopReason
	Err       error
}

// RecordingSynchronized is the payload of EventRecordingSynchronized.
// VideoFilePath in Result is provisional until EventVideoFinalized.
type RecordingSynchronized struct {
	Result *core.SynchronizedRecordingResult
	Reason StopReason
	Err    error // persisting the pose data failed
}

// RecordingFailed is the payload of EventRecordingFailed.
type RecordingFailed struct {
	SessionID string
	Reason    StopReason
	Err       error
}

// RecordingProgress is the payload of EventRecordingProgress.
type RecordingProgress struct {
	Elapsed time.Duration
	Frames  int
}

// PlaybackStarted is the payload of EventPlaybackStarted.
type PlaybackStarted struct {
	FrameCount int
	Duration   float64
	Looping    bool
}

// PlaybackStopped is the payload of EventPlaybackStopped.
type PlaybackStopped struct {
	Reason playback.StopReason
	Loops  int
}

// PlaybackProgress is the payload of EventPlaybackProgress.
type PlaybackProgress struct {
	Progress float64
}

// VideoFinalized is the payload of EventVideoFinalized.
type VideoFinalized struct {
	Handle core.FileWritingHandle
}
