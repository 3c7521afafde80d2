// pkg/core/session.go
package core

// OperationMode is the coordinator's current mode. Exactly one is active.
type OperationMode int

const (
	ModeReady OperationMode = iota
	ModeRecording
	ModePlaying
)

func (m OperationMode) String() string {
	switch m {
	case ModeReady:
		return "ready"
	case ModeRecording:
		return "recording"
	case ModePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// SynchronizedRecordingResult pairs pose data with the video captured over the same session.
type SynchronizedRecordingResult struct {
	SessionID     string
	Recording     *Recording
	VideoFilePath string
}

// IsValid holds iff the pose recording has at least one frame and a video path is set.
func (r *SynchronizedRecordingResult) IsValid() bool {
	return r != nil && !r.Recording.Empty() && r.VideoFilePath != ""
}

// FileWritingHandle is delivered once per session when the video file is durable on disk.
// Path is the final location, which may differ from the provisional path.
type FileWritingHandle struct {
	ID        string
	SessionID string
	Path      string
	Err       error
}

// UploadMetadata describes a session sent to the web frontend
type UploadMetadata struct {
	SessionID  string
	Duration   float64
	FrameCount int
	Tag        string
}
