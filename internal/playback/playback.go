// Package playback replays a Recording against the anchor's current detection.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/OCAP2/mocap/internal/spatial"
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

var (
	ErrEmpty     = errors.New("recording has no frames")
	ErrNotLoaded = errors.New("no recording loaded")
)

// StopReason tells OnStopped callbacks why playback ended.
type StopReason int

const (
	StopRequested StopReason = iota
	StopFinished
)

func (r StopReason) String() string {
	switch r {
	case StopRequested:
		return "requested"
	case StopFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Output is one interpolated playback pose.
type Output struct {
	Time    float64   // seconds into the current pass
	Local   core.Pose // anchor-relative
	World   core.Pose // re-projected through the current anchor
	Tracked bool
	Joints  []core.JointSample // world space, in recorded order
	Loop    int                // completed passes
}

// Config controls looping and progress reporting.
type Config struct {
	Looping          bool
	ProgressEvery    int
	ProgressInterval time.Duration
}

type Dependencies struct {
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Engine plays one loaded Recording. Like the recorder it is driven from a
// single update loop.
type Engine struct {
	cfg   Config
	clock clockwork.Clock
	log   *slog.Logger

	rec        *core.Recording
	anchor     spatial.Anchor
	lastAnchor core.Pose

	playing   bool
	startedAt time.Time
	cursor    int
	loops     int
	progress  float64

	throttle   *rate.Sometimes
	onProgress func(progress float64)
	onStopped  func(reason StopReason)

	loopCounter metric.Int64Counter
}

// New creates a playback engine.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	loops, err := otel.Meter("github.com/OCAP2/mocap/internal/playback").Int64Counter(
		"playback.loops",
		metric.WithDescription("Loop resets during playback"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating loop counter: %w", err)
	}

	return &Engine{
		cfg:         cfg,
		clock:       deps.Clock,
		log:         deps.Logger.With("component", "playback"),
		lastAnchor:  core.IdentityPose(),
		loopCounter: loops,
	}, nil
}

// Load replaces the recording to play. Loading while playing stops playback first.
func (e *Engine) Load(rec *core.Recording) error {
	if rec.Empty() {
		return ErrEmpty
	}
	e.stop(StopRequested)
	e.rec = rec
	e.cursor = 0
	e.progress = 0
	return nil
}

// Loaded returns the current recording, or nil.
func (e *Engine) Loaded() *core.Recording {
	return e.rec
}

// SetAnchor sets the anchor poses are re-projected through. A later detection
// of the same marker may be passed at any time.
func (e *Engine) SetAnchor(anchor spatial.Anchor) {
	e.anchor = anchor
	e.refreshAnchor()
}

func (e *Engine) SetLooping(looping bool) {
	e.cfg.Looping = looping
}

func (e *Engine) Looping() bool {
	return e.cfg.Looping
}

func (e *Engine) OnProgress(fn func(progress float64)) {
	e.onProgress = fn
}

func (e *Engine) OnStopped(fn func(reason StopReason)) {
	e.onStopped = fn
}

// Start begins playback from the first sample.
func (e *Engine) Start() error {
	if e.rec == nil {
		return ErrNotLoaded
	}
	e.startedAt = e.clock.Now()
	e.cursor = 0
	e.loops = 0
	e.progress = 0
	e.playing = true
	if e.cfg.ProgressEvery > 0 || e.cfg.ProgressInterval > 0 {
		e.throttle = &rate.Sometimes{Every: e.cfg.ProgressEvery, Interval: e.cfg.ProgressInterval}
	} else {
		e.throttle = nil
	}

	e.log.Debug("Playback started", "frames", e.rec.FrameCount, "duration", e.rec.Duration, "looping", e.cfg.Looping)
	return nil
}

// Stop ends playback. Calling it while stopped does nothing.
func (e *Engine) Stop() {
	e.stop(StopRequested)
}

func (e *Engine) stop(reason StopReason) {
	if !e.playing {
		return
	}
	e.playing = false
	e.log.Debug("Playback stopped", "reason", reason, "loops", e.loops)
	if e.onStopped != nil {
		e.onStopped(reason)
	}
}

func (e *Engine) IsPlaying() bool {
	return e.playing
}

// Loops returns the number of loop resets in the current playback.
func (e *Engine) Loops() int {
	return e.loops
}

// Progress returns the normalized position within the current pass.
func (e *Engine) Progress() float64 {
	return e.progress
}

func (e *Engine) refreshAnchor() core.Pose {
	if e.anchor != nil {
		if pose, ok := e.anchor.CurrentPose(); ok {
			e.lastAnchor = pose
		}
	}
	return e.lastAnchor
}

// Tick advances playback to the current clock time. It returns false when not
// playing, including the tick on which a non-looping playback reaches its end.
func (e *Engine) Tick() (Output, bool) {
	if !e.playing {
		return Output{}, false
	}

	elapsed := e.clock.Since(e.startedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	duration := e.rec.Duration
	if elapsed > duration {
		switch {
		case !e.cfg.Looping:
			e.progress = 1
			e.stop(StopFinished)
			return Output{}, false
		case duration > 0:
			elapsed = e.rewind(elapsed, duration)
		default:
			elapsed = duration
		}
	}

	samples := e.rec.Samples
	for e.cursor+1 < len(samples) && samples[e.cursor+1].Time <= elapsed {
		e.cursor++
	}

	out := e.sample(elapsed)
	e.reportProgress(elapsed, duration)
	return out, true
}

// rewind moves the start instant forward by whole passes until elapsed falls
// within the recording, counting each pass as one loop reset.
func (e *Engine) rewind(elapsed, duration float64) float64 {
	passes := math.Ceil(elapsed/duration) - 1
	if passes < 1 {
		passes = 1
	}
	shift := passes * duration
	e.startedAt = e.startedAt.Add(time.Duration(shift * float64(time.Second)))
	e.loops += int(passes)
	e.cursor = 0
	e.loopCounter.Add(context.Background(), int64(passes))
	return elapsed - shift
}

func (e *Engine) sample(elapsed float64) Output {
	samples := e.rec.Samples
	a := samples[e.cursor]

	local := core.Pose{Position: a.Position, Rotation: a.Rotation}
	tracked := a.Tracked
	joints := a.Joints

	if e.cursor+1 < len(samples) {
		b := samples[e.cursor+1]
		t := spatial.InverseLerp(a.Time, b.Time, elapsed)
		if a.Tracked && b.Tracked {
			local = spatial.LerpPose(local, core.Pose{Position: b.Position, Rotation: b.Rotation}, t)
		}
		tracked = a.Tracked && b.Tracked
		joints = interpolateJoints(a.Joints, b.Joints, t)
	}

	anchor := e.refreshAnchor()
	out := Output{
		Time:    elapsed,
		Local:   local,
		World:   spatial.ToWorld(anchor, local),
		Tracked: tracked,
		Loop:    e.loops,
	}
	if joints != nil {
		out.Joints = make([]core.JointSample, len(joints))
		for i, j := range joints {
			w := spatial.ToWorld(anchor, core.Pose{Position: j.Position, Rotation: j.Rotation})
			out.Joints[i] = core.JointSample{Joint: j.Joint, Position: w.Position, Rotation: w.Rotation, Tracked: j.Tracked}
		}
	}
	return out
}

// interpolateJoints blends joints present in both brackets. A joint untracked
// in either bracket, or missing from b, holds a's stored value.
func interpolateJoints(a, b []core.JointSample, t float64) []core.JointSample {
	if a == nil {
		return nil
	}
	out := make([]core.JointSample, len(a))
	for i, ja := range a {
		out[i] = ja
		jb, ok := findJoint(b, ja.Joint, i)
		if !ok || !ja.Tracked || !jb.Tracked {
			out[i].Tracked = ja.Tracked && ok && jb.Tracked
			continue
		}
		p := spatial.LerpPose(
			core.Pose{Position: ja.Position, Rotation: ja.Rotation},
			core.Pose{Position: jb.Position, Rotation: jb.Rotation},
			t,
		)
		out[i].Position, out[i].Rotation = p.Position, p.Rotation
	}
	return out
}

// findJoint looks up kind in joints, trying the same index first since
// consecutive samples usually share joint order.
func findJoint(joints []core.JointSample, kind core.JointKind, hint int) (core.JointSample, bool) {
	if hint < len(joints) && joints[hint].Joint == kind {
		return joints[hint], true
	}
	for _, j := range joints {
		if j.Joint == kind {
			return j, true
		}
	}
	return core.JointSample{}, false
}

func (e *Engine) reportProgress(elapsed, duration float64) {
	p := 1.0
	if duration > 0 {
		p = math.Min(math.Max(elapsed/duration, 0), 1)
	}
	e.progress = p
	if e.throttle != nil && e.onProgress != nil {
		e.throttle.Do(func() { e.onProgress(p) })
	}
}
