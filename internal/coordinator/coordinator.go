// Package coordinator owns the Ready/Recording/Playing state machine. It
// starts and stops the recording engine (alone or through a video
// collaborator), persists finished recordings, drives playback, and publishes
// every transition as an event.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/OCAP2/mocap/internal/dispatcher"
	"github.com/OCAP2/mocap/internal/playback"
	"github.com/OCAP2/mocap/internal/queue"
	"github.com/OCAP2/mocap/internal/recorder"
	"github.com/OCAP2/mocap/internal/session"
	"github.com/OCAP2/mocap/internal/spatial"
	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the current mode
	ErrInvalidState = errors.New("operation not allowed in current mode")
	// ErrNotInitialized is returned before Initialize has succeeded
	ErrNotInitialized = errors.New("coordinator not initialized")
	// ErrNoRecording is returned by StartPlayback when nothing was given and nothing was recorded
	ErrNoRecording = errors.New("no recording available")
	// ErrNothingRecorded is reported when a recording stopped without samples
	ErrNothingRecorded = errors.New("recording stopped without samples")
)

// playbackPrefix names playback sessions in log context.
const playbackPrefix = "Playback"

// VideoCollaborator captures video alongside the recording engine. It starts
// the engine itself so both streams share one start instant.
type VideoCollaborator interface {
	StartSynchronizedRecording(sessionID string) error
	// StopSynchronizedRecording returns immediately; nil if nothing was recording.
	StopSynchronizedRecording() *core.SynchronizedRecordingResult
	IsRecording() bool
	OutputFolder() string
	// OnFileWritten registers a callback fired once per session, possibly
	// from another goroutine.
	OnFileWritten(fn func(core.FileWritingHandle))
}

// Config holds coordinator settings.
type Config struct {
	NamePrefix   string
	VideoEnabled bool
}

// Dependencies holds the coordinator's collaborators. Recorder and Playback
// are required; the rest are optional.
type Dependencies struct {
	Recorder   *recorder.Engine
	Playback   *playback.Engine
	Storage    storage.Backend
	Video      VideoCollaborator
	Dispatcher *dispatcher.Dispatcher
	Session    *session.Context
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// Coordinator drives recording and playback from a single update loop. Mode
// may be read from any goroutine; everything else belongs to the loop.
type Coordinator struct {
	cfg     Config
	rec     *recorder.Engine
	play    *playback.Engine
	store   storage.Backend
	video   VideoCollaborator
	events  *dispatcher.Dispatcher
	ownsBus bool
	sess    *session.Context
	clock   clockwork.Clock
	log     *slog.Logger

	mode        atomic.Int32
	initialized bool
	anchor      spatial.Anchor

	sessionID    string
	startedAt    time.Time
	synchronized bool

	lastRecording *core.Recording
	lastResult    *core.SynchronizedRecordingResult

	completions *queue.Queue[core.FileWritingHandle]

	sessions metric.Int64Counter
}

// New creates a coordinator in Ready mode.
func New(cfg Config, deps Dependencies) (*Coordinator, error) {
	if deps.Recorder == nil || deps.Playback == nil {
		return nil, errors.New("coordinator: recorder and playback engines are required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Session == nil {
		deps.Session = session.NewContext()
	}

	c := &Coordinator{
		cfg:         cfg,
		rec:         deps.Recorder,
		play:        deps.Playback,
		store:       deps.Storage,
		video:       deps.Video,
		events:      deps.Dispatcher,
		sess:        deps.Session,
		clock:       deps.Clock,
		log:         deps.Logger.With("component", "coordinator"),
		completions: queue.New[core.FileWritingHandle](),
	}

	if c.events == nil {
		bus, err := dispatcher.New(nil)
		if err != nil {
			return nil, err
		}
		c.events = bus
		c.ownsBus = true
	}

	sessions, err := meter().Int64Counter(
		"coordinator.sessions",
		metric.WithDescription("Finished recording sessions, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}
	c.sessions = sessions

	c.mode.Store(int32(core.ModeReady))

	c.rec.OnProgress(func(elapsed time.Duration) {
		c.publish(EventRecordingProgress, RecordingProgress{Elapsed: elapsed, Frames: c.rec.FrameCount()})
	})
	c.play.OnProgress(func(p float64) {
		c.publish(EventPlaybackProgress, PlaybackProgress{Progress: p})
	})
	c.play.OnStopped(c.playbackStopped)

	if c.video != nil {
		c.video.OnFileWritten(func(h core.FileWritingHandle) {
			c.completions.Push(h)
		})
	}

	return c, nil
}

// Subscribe registers an observer for an event kind.
func (c *Coordinator) Subscribe(kind dispatcher.Kind, fn dispatcher.HandlerFunc, opts ...dispatcher.Option) {
	c.events.Subscribe(kind, fn, opts...)
}

// Close releases the event dispatcher if the coordinator created it.
func (c *Coordinator) Close() {
	if c.ownsBus {
		c.events.Close()
	}
}

// Initialize wires the pose source and anchor into both engines. It may be
// called again after the anchor is re-detected.
func (c *Coordinator) Initialize(source recorder.PoseSource, anchor spatial.Anchor) error {
	if err := c.rec.Initialize(source, anchor); err != nil {
		return err
	}
	c.play.SetAnchor(anchor)
	c.anchor = anchor
	c.initialized = true
	return nil
}

// Mode returns the current operation mode. Safe for concurrent use.
func (c *Coordinator) Mode() core.OperationMode {
	return core.OperationMode(c.mode.Load())
}

func (c *Coordinator) setMode(m core.OperationMode) {
	prev := core.OperationMode(c.mode.Swap(int32(m)))
	if prev != m {
		c.log.Debug("Mode changed", "from", prev, "to", m)
	}
}

func (c *Coordinator) anchorDetected() bool {
	if c.anchor == nil {
		return false
	}
	_, ok := c.anchor.CurrentPose()
	return ok
}

// CanRecord reports whether StartRecording would be accepted.
func (c *Coordinator) CanRecord() bool {
	return c.initialized && c.anchorDetected() && c.Mode() == core.ModeReady
}

// CanPlayback reports whether StartPlayback(nil) would be accepted.
func (c *Coordinator) CanPlayback() bool {
	return c.initialized && c.anchorDetected() && c.lastRecording != nil && c.Mode() == core.ModeReady
}

// LastRecording returns the most recent successfully completed recording.
func (c *Coordinator) LastRecording() *core.Recording {
	return c.lastRecording
}

// LastResult returns the most recent valid synchronized result.
func (c *Coordinator) LastResult() *core.SynchronizedRecordingResult {
	return c.lastResult
}

// SessionID returns the active recording session, or "".
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

func (c *Coordinator) checkReady() error {
	if c.Mode() != core.ModeReady {
		return fmt.Errorf("%w: %s", ErrInvalidState, c.Mode())
	}
	if !c.initialized {
		return ErrNotInitialized
	}
	if !c.anchorDetected() {
		return recorder.ErrAnchorUnavailable
	}
	return nil
}

func (c *Coordinator) nameTaken(name string) bool {
	if c.store == nil {
		return false
	}
	return storage.Exists(c.store, name)
}

// StartRecording starts a synchronized session when video is enabled and a
// collaborator is present, otherwise a pose-only recording. On failure the
// mode stays Ready.
func (c *Coordinator) StartRecording() error {
	if err := c.checkReady(); err != nil {
		return err
	}

	now := c.clock.Now()
	id := session.Name(c.cfg.NamePrefix, now, c.nameTaken)
	synchronized := c.cfg.VideoEnabled && c.video != nil

	if synchronized {
		if err := c.video.StartSynchronizedRecording(id); err != nil {
			c.log.Warn("Synchronized recording failed to start", "session", id, "error", err)
			return fmt.Errorf("starting synchronized recording: %w", err)
		}
	} else if err := c.rec.StartAt(now); err != nil {
		return err
	}

	c.sessionID = id
	c.startedAt = now
	c.synchronized = synchronized
	c.setMode(core.ModeRecording)
	c.sess.Begin(id, core.ModeRecording.String(), now)

	c.log.Info("Recording started", "session", id, "synchronized", synchronized)
	c.publish(EventRecordingStarted, RecordingStarted{SessionID: id, Synchronized: synchronized, StartedAt: now})
	return nil
}

// StopRecording stops the active recording and returns to Ready. Packaging
// and persistence failures are reported through events, never returned.
func (c *Coordinator) StopRecording() error {
	if c.Mode() != core.ModeRecording {
		return fmt.Errorf("%w: %s", ErrInvalidState, c.Mode())
	}
	c.finishRecording(ReasonRequested)
	return nil
}

// HandleAnchorLost reacts to the tracker losing the anchor. A recording is
// stopped; playback carries on against the last known anchor pose.
func (c *Coordinator) HandleAnchorLost() {
	if c.Mode() == core.ModeRecording {
		c.log.Warn("Anchor lost while recording", "session", c.sessionID)
		c.finishRecording(ReasonAnchorLost)
	}
}

func (c *Coordinator) finishRecording(reason StopReason) {
	id := c.sessionID
	if c.synchronized {
		c.finishSynchronized(id, reason)
	} else {
		c.finishPoseOnly(id, reason)
	}

	c.sessionID = ""
	c.synchronized = false
	c.setMode(core.ModeReady)
	c.sess.End()
}

func (c *Coordinator) finishSynchronized(id string, reason StopReason) {
	result := c.video.StopSynchronizedRecording()
	if !result.IsValid() {
		err := errors.New("synchronized result is invalid")
		if result != nil && result.Recording.Empty() {
			err = ErrNothingRecorded
		}
		c.countSession("failed")
		c.log.Warn("Synchronized recording rejected", "session", id, "reason", reason, "error", err)
		c.publish(EventRecordingFailed, RecordingFailed{SessionID: id, Reason: reason, Err: err})
		return
	}

	c.lastRecording = result.Recording
	c.lastResult = result

	payload := RecordingSynchronized{Result: result, Reason: reason}
	if c.store != nil {
		if err := c.store.Save(result.Recording, result.SessionID); err != nil {
			c.log.Error("Failed to persist synchronized recording", "session", id, "error", err)
			payload.Err = err
		}
	}

	c.countSession("synchronized")
	c.log.Info("Synchronized recording completed", "session", id, "frames", result.Recording.FrameCount, "video", result.VideoFilePath)
	c.publish(EventRecordingSynchronized, payload)
}

func (c *Coordinator) finishPoseOnly(id string, reason StopReason) {
	rec := c.rec.Stop()
	if rec.Empty() {
		c.countSession("failed")
		c.publish(EventRecordingFailed, RecordingFailed{SessionID: id, Reason: reason, Err: ErrNothingRecorded})
		return
	}

	c.lastRecording = rec
	payload := RecordingCompleted{Recording: rec, Reason: reason}

	if c.store != nil {
		name := session.Name(c.cfg.NamePrefix, c.startedAt, c.nameTaken)
		if err := c.store.Save(rec, name); err != nil {
			c.log.Error("Failed to persist recording", "name", name, "error", err)
			payload.Err = err
		} else {
			payload.Name = name
		}
	}

	c.countSession("completed")
	c.log.Info("Recording completed", "name", payload.Name, "frames", rec.FrameCount, "duration", rec.Duration, "reason", reason)
	c.publish(EventRecordingCompleted, payload)
}

// StartPlayback plays rec, or the last recording when rec is nil.
func (c *Coordinator) StartPlayback(rec *core.Recording) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if rec == nil {
		rec = c.lastRecording
	}
	if rec == nil {
		return ErrNoRecording
	}

	if err := c.play.Load(rec); err != nil {
		return err
	}
	if err := c.play.Start(); err != nil {
		return err
	}

	now := c.clock.Now()
	c.setMode(core.ModePlaying)
	c.sess.Begin(session.Name(playbackPrefix, now, nil), core.ModePlaying.String(), now)
	c.publish(EventPlaybackStarted, PlaybackStarted{
		FrameCount: rec.FrameCount,
		Duration:   rec.Duration,
		Looping:    c.play.Looping(),
	})
	return nil
}

// StopPlayback ends playback and returns to Ready.
func (c *Coordinator) StopPlayback() error {
	if c.Mode() != core.ModePlaying {
		return fmt.Errorf("%w: %s", ErrInvalidState, c.Mode())
	}
	c.play.Stop()
	return nil
}

// playbackStopped runs once per playing to stopped transition, whether
// requested or at the natural end.
func (c *Coordinator) playbackStopped(reason playback.StopReason) {
	c.setMode(core.ModeReady)
	c.sess.End()
	c.publish(EventPlaybackStopped, PlaybackStopped{Reason: reason, Loops: c.play.Loops()})
}

// Tick advances the active mode by one update and delivers any video
// completions that arrived since the last tick. The output is valid only
// while playing.
func (c *Coordinator) Tick() (playback.Output, bool) {
	defer c.drainCompletions()

	switch c.Mode() {
	case core.ModeRecording:
		if !c.anchorDetected() {
			c.HandleAnchorLost()
			return playback.Output{}, false
		}
		c.rec.Poll()
	case core.ModePlaying:
		return c.play.Tick()
	}
	return playback.Output{}, false
}

func (c *Coordinator) drainCompletions() {
	c.completions.Drain(func(h core.FileWritingHandle) {
		if idx, ok := c.store.(storage.VideoIndex); ok {
			if err := idx.RecordVideo(h); err != nil {
				c.log.Error("Failed to index video", "session", h.SessionID, "error", err)
			}
		}
		if h.Err != nil {
			c.log.Warn("Video finalization failed", "session", h.SessionID, "error", h.Err)
		} else {
			c.log.Info("Video finalized", "session", h.SessionID, "path", h.Path)
		}
		c.publishFor(h.SessionID, EventVideoFinalized, VideoFinalized{Handle: h})
	})
}

func (c *Coordinator) countSession(outcome string) {
	c.sessions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (c *Coordinator) publish(kind dispatcher.Kind, payload any) {
	c.publishFor(c.sessionID, kind, payload)
}

func (c *Coordinator) publishFor(sessionID string, kind dispatcher.Kind, payload any) {
	err := c.events.Publish(dispatcher.Event{
		Kind:      kind,
		SessionID: sessionID,
		Timestamp: c.clock.Now(),
		Payload:   payload,
	})
	if err != nil {
		c.log.Warn("Event observer failed", "kind", kind, "error", err)
	}
}
