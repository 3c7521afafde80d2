package main

import (
	"context"
	"fmt"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/OCAP2/mocap/internal/config"
	"github.com/OCAP2/mocap/internal/coordinator"
	"github.com/OCAP2/mocap/internal/dispatcher"
	"github.com/OCAP2/mocap/internal/influx"
	"github.com/OCAP2/mocap/internal/monitor"
	"github.com/OCAP2/mocap/internal/playback"
	"github.com/OCAP2/mocap/internal/recorder"
	"github.com/OCAP2/mocap/internal/spatial"
	"github.com/OCAP2/mocap/internal/video"
	"github.com/OCAP2/mocap/pkg/core"
)

type demoOptions struct {
	record   time.Duration
	play     time.Duration
	rate     int
	video    bool
	loseAt   time.Duration
	clock    clockwork.Clock
	tickWait func(ctx context.Context) error
}

func newDemoCmd(a *app) *cobra.Command {
	opts := demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Record and replay a synthetic walking subject through the full capture pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDemo(ctx, a, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.record, "record", 3*time.Second, "how long to record")
	cmd.Flags().DurationVar(&opts.play, "play", 3*time.Second, "how long to play the take back")
	cmd.Flags().IntVar(&opts.rate, "rate", 30, "update loop rate in Hz")
	cmd.Flags().BoolVar(&opts.video, "video", false, "capture video with ffmpeg (requires video.* config)")
	cmd.Flags().DurationVar(&opts.loseAt, "lose-anchor-at", 0, "simulate anchor loss this far into the recording")
	return cmd
}

// walker moves a subject around a circle of radius 1 m at one lap per ~12 s,
// facing along the direction of travel.
type walker struct {
	clock clockwork.Clock
	start time.Time
}

func (w *walker) CurrentFrame() core.PoseFrame {
	t := w.clock.Since(w.start).Seconds()
	angle := 0.5 * t
	root := core.Pose{
		Position: core.Vec3{X: math.Cos(angle), Y: 0.9 + 0.02*math.Sin(4*t), Z: math.Sin(angle)},
		Rotation: spatial.YawRotation(-angle),
	}
	head := core.JointSample{
		Joint:    core.JointHead,
		Position: core.Vec3{X: root.Position.X, Y: root.Position.Y + 0.7, Z: root.Position.Z},
		Rotation: root.Rotation,
		Tracked:  true,
	}
	hips := core.JointSample{Joint: core.JointHips, Position: root.Position, Rotation: root.Rotation, Tracked: true}
	return core.PoseFrame{Root: root, Joints: []core.JointSample{hips, head}, Valid: true}
}

func runDemo(ctx context.Context, a *app, opts demoOptions) error {
	if opts.rate <= 0 {
		return fmt.Errorf("rate must be positive, got %d", opts.rate)
	}
	if opts.clock == nil {
		opts.clock = clockwork.NewRealClock()
	}
	clock := opts.clock

	store, err := a.openStorage()
	if err != nil {
		return err
	}

	rc := config.GetRecorderConfig()
	rec, err := recorder.New(recorder.Config{
		ProgressEvery:    rc.ProgressEvery,
		ProgressInterval: rc.ProgressInterval,
	}, recorder.Dependencies{Clock: clock, Logger: a.log})
	if err != nil {
		return err
	}
	play, err := playback.New(playback.Config{
		Looping:          config.GetPlaybackConfig().Looping,
		ProgressEvery:    rc.ProgressEvery,
		ProgressInterval: rc.ProgressInterval,
	}, playback.Dependencies{Clock: clock, Logger: a.log})
	if err != nil {
		return err
	}

	bus, err := dispatcher.New(a.log)
	if err != nil {
		return err
	}
	defer bus.Close()

	deps := coordinator.Dependencies{
		Recorder:   rec,
		Playback:   play,
		Storage:    store,
		Dispatcher: bus,
		Session:    a.session,
		Clock:      clock,
		Logger:     a.log,
	}

	var videoSync *video.Synchronizer
	if opts.video {
		vc := config.GetVideoConfig()
		enc := video.NewFFmpegEncoder(video.FFmpegConfig{
			Path:        vc.FFmpegPath,
			InputFormat: vc.InputFormat,
			Input:       vc.Input,
			FrameRate:   vc.FrameRate,
		}, a.log)
		videoSync, err = video.NewSynchronizer(video.Config{OutputFolder: vc.OutputFolder}, enc, rec,
			video.Dependencies{Clock: clock, Logger: a.log})
		if err != nil {
			return err
		}
		deps.Video = videoSync
	}

	coord, err := coordinator.New(coordinator.Config{
		NamePrefix:   rc.NamePrefix,
		VideoEnabled: videoSync != nil,
	}, deps)
	if err != nil {
		return err
	}
	defer coord.Close()

	if ic := config.GetInfluxConfig(); ic.Enabled {
		m := influx.NewManager(ic, a.dbLog)
		if err := m.Connect(ctx); err != nil {
			a.log.Warn("InfluxDB telemetry unavailable", "error", err)
		} else {
			defer m.Close()
			sink, err := m.NewSink(256)
			if err != nil {
				return err
			}
			defer sink.Close()
			for _, kind := range influx.Kinds {
				coord.Subscribe(kind, sink.Forward)
			}
		}
	}

	mc := config.GetMonitorConfig()
	mon := monitor.NewService(monitor.Config{Interval: mc.Interval, StatusPath: mc.StatusPath},
		monitor.Dependencies{Source: coord, Storage: store, Metrics: a.otel, Logger: a.log, Clock: clock})
	mon.Start()
	defer mon.Stop()

	a.subscribeReport(coord)

	anchor := spatial.NewTrackedAnchor()
	anchor.Update(core.IdentityPose())
	if err := coord.Initialize(&walker{clock: clock, start: clock.Now()}, anchor); err != nil {
		return err
	}

	if err := coord.StartRecording(); err != nil {
		return err
	}
	recordStart := clock.Now()
	loop := newLoop(clock, opts)
	defer loop.stop()

	for clock.Since(recordStart) < opts.record && coord.Mode() == core.ModeRecording {
		if err := loop.wait(ctx); err != nil {
			break
		}
		if opts.loseAt > 0 && clock.Since(recordStart) >= opts.loseAt {
			anchor.Lose()
		}
		coord.Tick()
	}
	if coord.Mode() == core.ModeRecording {
		if err := coord.StopRecording(); err != nil {
			return err
		}
	}
	if videoSync != nil {
		videoSync.Wait()
		coord.Tick() // deliver the video finalization
	}
	if ctx.Err() != nil {
		return nil
	}

	anchor.Update(core.IdentityPose())
	if err := coord.StartPlayback(nil); err != nil {
		return err
	}
	playStart := clock.Now()
	for clock.Since(playStart) < opts.play && coord.Mode() == core.ModePlaying {
		if err := loop.wait(ctx); err != nil {
			break
		}
		coord.Tick()
	}
	if coord.Mode() == core.ModePlaying {
		return coord.StopPlayback()
	}
	return nil
}

// subscribeReport prints a line per finished session and playback.
func (a *app) subscribeReport(coord *coordinator.Coordinator) {
	coord.Subscribe(coordinator.EventRecordingCompleted, func(e dispatcher.Event) error {
		p := e.Payload.(coordinator.RecordingCompleted)
		if p.Err != nil {
			fmt.Fprintf(a.stdout, "Recording not saved: %v\n", p.Err)
			return nil
		}
		fmt.Fprintf(a.stdout, "Saved %s: %d frames, %.2fs (%s)\n", p.Name, p.Recording.FrameCount, p.Recording.Duration, p.Reason)
		return nil
	})
	coord.Subscribe(coordinator.EventRecordingSynchronized, func(e dispatcher.Event) error {
		p := e.Payload.(coordinator.RecordingSynchronized)
		fmt.Fprintf(a.stdout, "Synchronized %s: %d frames, video %s\n", p.Result.SessionID, p.Result.Recording.FrameCount, p.Result.VideoFilePath)
		return nil
	})
	coord.Subscribe(coordinator.EventRecordingFailed, func(e dispatcher.Event) error {
		p := e.Payload.(coordinator.RecordingFailed)
		fmt.Fprintf(a.stdout, "Recording %s failed: %v\n", p.SessionID, p.Err)
		return nil
	})
	coord.Subscribe(coordinator.EventVideoFinalized, func(e dispatcher.Event) error {
		p := e.Payload.(coordinator.VideoFinalized)
		if p.Handle.Err != nil {
			fmt.Fprintf(a.stdout, "Video for %s failed: %v\n", p.Handle.SessionID, p.Handle.Err)
		} else {
			fmt.Fprintf(a.stdout, "Video for %s written to %s\n", p.Handle.SessionID, p.Handle.Path)
		}
		return nil
	})
	coord.Subscribe(coordinator.EventPlaybackStopped, func(e dispatcher.Event) error {
		p := e.Payload.(coordinator.PlaybackStopped)
		fmt.Fprintf(a.stdout, "Playback stopped after %d loops\n", p.Loops)
		return nil
	})
}

// frameLoop paces the update loop. Tests replace the wait with one that
// advances a fake clock.
type frameLoop struct {
	ticker clockwork.Ticker
	custom func(ctx context.Context) error
}

func newLoop(clock clockwork.Clock, opts demoOptions) *frameLoop {
	if opts.tickWait != nil {
		return &frameLoop{custom: opts.tickWait}
	}
	return &frameLoop{ticker: clock.NewTicker(time.Second / time.Duration(opts.rate))}
}

func (l *frameLoop) wait(ctx context.Context) error {
	if l.custom != nil {
		return l.custom(ctx)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ticker.Chan():
		return nil
	}
}

func (l *frameLoop) stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
}
