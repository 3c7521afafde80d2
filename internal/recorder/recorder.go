// Package recorder accumulates anchor-relative pose samples from a body tracker.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/mocap/internal/spatial"
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

var (
	// ErrMissingDependency is returned by Initialize when the pose source or anchor is nil
	ErrMissingDependency = errors.New("pose source and anchor are required")
	// ErrNotInitialized is returned by Start before a successful Initialize
	ErrNotInitialized = errors.New("recorder not initialized")
	// ErrAnchorUnavailable is returned by Start when the anchor is not currently tracked
	ErrAnchorUnavailable = errors.New("anchor unavailable")
)

// minSampleSpacing is the smallest gap between consecutive sample times, in seconds.
// Ticks that arrive without the clock advancing are placed this far after the previous sample.
const minSampleSpacing = 1e-6

// PoseSource yields the body tracker's latest output.
type PoseSource interface {
	CurrentFrame() core.PoseFrame
}

// PoseSourceFunc adapts a function to the PoseSource interface.
type PoseSourceFunc func() core.PoseFrame

// CurrentFrame calls f.
func (f PoseSourceFunc) CurrentFrame() core.PoseFrame {
	return f()
}

// Config controls progress reporting. With both fields zero no progress is reported.
type Config struct {
	ProgressEvery    int           // report every N ticks
	ProgressInterval time.Duration // report when this much wall time passed since the last report
}

// Dependencies holds collaborators for the engine. Zero values get defaults.
type Dependencies struct {
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Engine records pose samples while started. It is driven from a single update loop
// and is not safe for concurrent use.
type Engine struct {
	cfg   Config
	clock clockwork.Clock
	log   *slog.Logger

	source     PoseSource
	anchor     spatial.Anchor
	lastAnchor core.Pose

	started    bool
	startedAt  time.Time
	samples    []core.PoseSample
	lastJoints map[core.JointKind]core.JointSample

	progress   *rate.Sometimes
	onProgress func(elapsed time.Duration)

	frames metric.Int64Counter
}

// New creates a recording engine.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	frames, err := meter().Int64Counter(
		"recorder.frames",
		metric.WithDescription("Total pose samples recorded"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}

	return &Engine{
		cfg:    cfg,
		clock:  deps.Clock,
		log:    deps.Logger.With("component", "recorder"),
		frames: frames,
	}, nil
}

// Initialize sets the pose source and the anchor samples are expressed against.
// It may be called again after the anchor is re-detected; an in-progress
// recording continues against the new anchor.
func (e *Engine) Initialize(source PoseSource, anchor spatial.Anchor) error {
	if source == nil || anchor == nil {
		return ErrMissingDependency
	}
	e.source = source
	e.anchor = anchor
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (e *Engine) Initialized() bool {
	return e.source != nil && e.anchor != nil
}

// OnProgress registers a callback receiving elapsed recording time.
func (e *Engine) OnProgress(fn func(elapsed time.Duration)) {
	e.onProgress = fn
}

// Start begins a new recording now, discarding any previous buffer.
func (e *Engine) Start() error {
	return e.StartAt(e.clock.Now())
}

// StartAt begins a new recording whose time zero is the given instant.
// The video synchronizer uses this to share one start instant with the encoder.
func (e *Engine) StartAt(at time.Time) error {
	if !e.Initialized() {
		return ErrNotInitialized
	}
	pose, ok := e.anchor.CurrentPose()
	if !ok {
		return ErrAnchorUnavailable
	}

	e.lastAnchor = pose
	e.samples = make([]core.PoseSample, 0, 256)
	e.lastJoints = make(map[core.JointKind]core.JointSample)
	e.startedAt = at
	e.started = true
	e.progress = e.newProgress()

	e.log.Debug("Recording started", "startedAt", at)
	return nil
}

func (e *Engine) newProgress() *rate.Sometimes {
	if e.cfg.ProgressEvery <= 0 && e.cfg.ProgressInterval <= 0 {
		return nil
	}
	return &rate.Sometimes{Every: e.cfg.ProgressEvery, Interval: e.cfg.ProgressInterval}
}

// IsRecording reports whether the engine is started.
func (e *Engine) IsRecording() bool {
	return e.started
}

// FrameCount returns the number of samples buffered so far.
func (e *Engine) FrameCount() int {
	return len(e.samples)
}

// Elapsed returns the time since the recording started, or zero when stopped.
func (e *Engine) Elapsed() time.Duration {
	if !e.started {
		return 0
	}
	return e.clock.Since(e.startedAt)
}

// Poll records a sample from the pose source's current output.
func (e *Engine) Poll() {
	if !e.started || e.source == nil {
		return
	}
	e.Tick(e.source.CurrentFrame())
}

// Tick appends one sample built from the tracker output. Invalid frames still
// produce a sample, flagged untracked and holding the last-known transform.
func (e *Engine) Tick(frame core.PoseFrame) {
	if !e.started {
		return
	}

	elapsed := e.clock.Since(e.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	t := elapsed.Seconds()
	if n := len(e.samples); n > 0 && t <= e.samples[n-1].Time {
		t = e.samples[n-1].Time + minSampleSpacing
	}

	// The anchor may drop out for a few frames; keep using where it was last seen.
	if pose, ok := e.anchor.CurrentPose(); ok {
		e.lastAnchor = pose
	}

	sample := core.PoseSample{Time: t, Tracked: frame.Valid}

	switch {
	case frame.Valid:
		local := spatial.ToLocal(e.lastAnchor, frame.Root)
		sample.Position, sample.Rotation = local.Position, local.Rotation
	case len(e.samples) > 0:
		prev := e.samples[len(e.samples)-1]
		sample.Position, sample.Rotation = prev.Position, prev.Rotation
	default:
		local := spatial.ToLocal(e.lastAnchor, frame.Root)
		sample.Position, sample.Rotation = local.Position, local.Rotation
	}

	if frame.Joints != nil {
		sample.Joints = e.localJoints(frame)
	}

	e.samples = append(e.samples, sample)
	e.frames.Add(context.Background(), 1)

	if e.progress != nil && e.onProgress != nil {
		e.progress.Do(func() { e.onProgress(elapsed) })
	}
}

func (e *Engine) localJoints(frame core.PoseFrame) []core.JointSample {
	out := make([]core.JointSample, 0, len(frame.Joints))
	for _, j := range frame.Joints {
		if frame.Valid && j.Tracked {
			local := spatial.ToLocal(e.lastAnchor, core.Pose{Position: j.Position, Rotation: j.Rotation})
			js := core.JointSample{Joint: j.Joint, Position: local.Position, Rotation: local.Rotation, Tracked: true}
			e.lastJoints[j.Joint] = js
			out = append(out, js)
			continue
		}

		if last, ok := e.lastJoints[j.Joint]; ok {
			last.Tracked = false
			out = append(out, last)
			continue
		}

		local := spatial.ToLocal(e.lastAnchor, core.Pose{Position: j.Position, Rotation: j.Rotation})
		out = append(out, core.JointSample{Joint: j.Joint, Position: local.Position, Rotation: local.Rotation})
	}
	return out
}

// Stop finalizes the buffered samples. It returns nil if the engine was not
// started or nothing was recorded; a second call returns nil.
func (e *Engine) Stop() *core.Recording {
	if !e.started {
		return nil
	}
	e.started = false
	e.progress = nil

	samples := e.samples
	e.samples = nil
	e.lastJoints = nil

	if len(samples) == 0 {
		e.log.Debug("Recording stopped with no samples")
		return nil
	}

	rec := core.NewRecording(samples)
	e.log.Debug("Recording stopped", "frames", rec.FrameCount, "duration", rec.Duration)
	return rec
}
