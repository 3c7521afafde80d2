package influx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/mocap/internal/config"
	"github.com/OCAP2/mocap/internal/coordinator"
	"github.com/OCAP2/mocap/internal/dispatcher"
	"github.com/OCAP2/mocap/pkg/core"
)

var ts = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func unreachable(t *testing.T) config.InfluxConfig {
	return config.InfluxConfig{
		Enabled:    true,
		Protocol:   "http",
		Host:       "127.0.0.1",
		Port:       "1",
		Org:        "mocap-metrics",
		Bucket:     "mocap",
		BackupPath: filepath.Join(t.TempDir(), "backup.lp.gz"),
	}
}

func readBackup(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(data)
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop())
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestWritePoint_NotConnected(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop())
	p := influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1)
	assert.Error(t, m.WritePoint(p))
}

func TestConnect_FallsBackToBackup(t *testing.T) {
	cfg := unreachable(t)
	m := NewManager(cfg, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid())

	p := influxdb2_write.NewPointWithMeasurement("session").
		AddTag("session", "Take_1").
		AddField("count", 1).
		SetTime(ts)
	require.NoError(t, m.WritePoint(p))
	require.NoError(t, m.Close())

	line := readBackup(t, cfg.BackupPath)
	assert.Equal(t, "session,session=Take_1 count=1i "+
		"1777629600000000000\n", line)
}

func TestConnect_BackupPathUnwritable(t *testing.T) {
	cfg := unreachable(t)
	cfg.BackupPath = filepath.Join(t.TempDir(), "missing", "backup.lp.gz")
	m := NewManager(cfg, zerolog.Nop())
	assert.Error(t, m.Connect(context.Background()))
}

func TestClose_Idempotent(t *testing.T) {
	m := NewManager(unreachable(t), zerolog.Nop())
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestPointFor(t *testing.T) {
	rec := core.NewRecording([]core.PoseSample{{Time: 0}, {Time: 1.5}})

	tests := []struct {
		name  string
		event dispatcher.Event
		want  []string
	}{
		{
			name:  "started",
			event: dispatcher.Event{SessionID: "S", Payload: coordinator.RecordingStarted{Synchronized: true}},
			want:  []string{"session,", "session=S", "state=started", "synchronized=true", "count=1i"},
		},
		{
			name:  "completed",
			event: dispatcher.Event{SessionID: "S", Payload: coordinator.RecordingCompleted{Recording: rec, Reason: coordinator.ReasonRequested}},
			want:  []string{"state=completed", "reason=requested", "frames=2i", "duration=1.5", "persisted=true"},
		},
		{
			name: "synchronized",
			event: dispatcher.Event{SessionID: "S", Payload: coordinator.RecordingSynchronized{
				Result: &core.SynchronizedRecordingResult{Recording: rec}, Reason: coordinator.ReasonAnchorLost, Err: errors.New("disk"),
			}},
			want: []string{"state=synchronized", "reason=anchor_lost", "persisted=false"},
		},
		{
			name:  "failed",
			event: dispatcher.Event{SessionID: "S", Payload: coordinator.RecordingFailed{Reason: coordinator.ReasonRequested, Err: errors.New("boom")}},
			want:  []string{"state=failed", `error="boom"`},
		},
		{
			name:  "progress",
			event: dispatcher.Event{SessionID: "S", Payload: coordinator.RecordingProgress{Frames: 30, Elapsed: time.Second}},
			want:  []string{"capture_progress,", "frames=30i", "elapsed_s=1"},
		},
		{
			name:  "video",
			event: dispatcher.Event{Payload: coordinator.VideoFinalized{Handle: core.FileWritingHandle{SessionID: "S"}}},
			want:  []string{"video,", "session=S", "ok=true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.Timestamp = ts
			p, ok := PointFor(tt.event)
			require.True(t, ok)
			line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
			for _, w := range tt.want {
				assert.True(t, strings.Contains(line, w), "%q missing %q", line, w)
			}
		})
	}
}

func TestPointFor_Ignored(t *testing.T) {
	_, ok := PointFor(dispatcher.Event{Payload: coordinator.PlaybackProgress{Progress: 0.5}})
	assert.False(t, ok)
}

func TestHandler_WritesThroughManager(t *testing.T) {
	cfg := unreachable(t)
	m := NewManager(cfg, zerolog.Nop())
	require.NoError(t, m.Connect(context.Background()))

	bus, err := dispatcher.New(nil)
	require.NoError(t, err)
	for _, k := range Kinds {
		bus.Subscribe(k, m.Handler())
	}
	require.NoError(t, bus.Publish(dispatcher.Event{
		Kind:      coordinator.EventRecordingStarted,
		SessionID: "Take_1",
		Timestamp: ts,
		Payload:   coordinator.RecordingStarted{SessionID: "Take_1"},
	}))
	require.NoError(t, bus.Publish(dispatcher.Event{
		Kind:    coordinator.EventPlaybackProgress,
		Payload: coordinator.PlaybackProgress{},
	}))
	bus.Close()
	require.NoError(t, m.Close())

	out := readBackup(t, cfg.BackupPath)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "state=started")
}

func TestSink_ForwardsAndLogsThroughZerolog(t *testing.T) {
	cfg := unreachable(t)
	var logs bytes.Buffer
	m := NewManager(cfg, zerolog.New(&logs).Level(zerolog.DebugLevel))
	require.NoError(t, m.Connect(context.Background()))

	sink, err := m.NewSink(8)
	require.NoError(t, err)
	require.NoError(t, sink.Forward(dispatcher.Event{
		Kind:      coordinator.EventRecordingStarted,
		SessionID: "Take_1",
		Timestamp: ts,
		Payload:   coordinator.RecordingStarted{SessionID: "Take_1"},
	}))
	sink.Close()
	require.NoError(t, m.Close())

	assert.Contains(t, readBackup(t, cfg.BackupPath), "state=started")
	assert.Contains(t, logs.String(), `"component":"telemetry"`)
	assert.Contains(t, logs.String(), `"message":"event complete"`)
	assert.ErrorIs(t, sink.Forward(dispatcher.Event{Kind: coordinator.EventRecordingStarted}), dispatcher.ErrClosed)
}
