package influx

import (
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/OCAP2/mocap/internal/coordinator"
	"github.com/OCAP2/mocap/internal/dispatcher"
)

// Measurement names.
const (
	MeasurementSession  = "session"
	MeasurementProgress = "capture_progress"
	MeasurementVideo    = "video"
)

// PointFor converts a coordinator event into a point. ok is false for events
// that carry no telemetry.
func PointFor(e dispatcher.Event) (point *influxdb2_write.Point, ok bool) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	switch p := e.Payload.(type) {
	case coordinator.RecordingStarted:
		point = session(e, "started", ts)
		point.AddTag("synchronized", boolTag(p.Synchronized))

	case coordinator.RecordingCompleted:
		point = session(e, "completed", ts)
		point.AddTag("reason", string(p.Reason))
		if p.Recording != nil {
			point.AddField("frames", p.Recording.FrameCount)
			point.AddField("duration", p.Recording.Duration)
		}
		point.AddField("persisted", p.Err == nil)

	case coordinator.RecordingSynchronized:
		point = session(e, "synchronized", ts)
		point.AddTag("reason", string(p.Reason))
		if p.Result != nil && p.Result.Recording != nil {
			point.AddField("frames", p.Result.Recording.FrameCount)
			point.AddField("duration", p.Result.Recording.Duration)
		}
		point.AddField("persisted", p.Err == nil)

	case coordinator.RecordingFailed:
		point = session(e, "failed", ts)
		point.AddTag("reason", string(p.Reason))
		if p.Err != nil {
			point.AddField("error", p.Err.Error())
		}

	case coordinator.RecordingProgress:
		point = influxdb2_write.NewPointWithMeasurement(MeasurementProgress).SetTime(ts)
		point.AddTag("session", e.SessionID)
		point.AddField("frames", p.Frames)
		point.AddField("elapsed_s", p.Elapsed.Seconds())

	case coordinator.VideoFinalized:
		point = influxdb2_write.NewPointWithMeasurement(MeasurementVideo).SetTime(ts)
		point.AddTag("session", p.Handle.SessionID)
		point.AddField("ok", p.Handle.Err == nil)

	default:
		return nil, false
	}
	return point, true
}

func session(e dispatcher.Event, state string, ts time.Time) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementSession).SetTime(ts)
	p.AddTag("session", e.SessionID)
	p.AddTag("state", state)
	p.AddField("count", 1)
	return p
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Handler returns a dispatcher handler that writes every telemetry-bearing
// event through m.
func (m *Manager) Handler() dispatcher.HandlerFunc {
	return func(e dispatcher.Event) error {
		point, ok := PointFor(e)
		if !ok {
			return nil
		}
		return m.WritePoint(point)
	}
}

// Kinds lists the coordinator events Handler understands.
var Kinds = []dispatcher.Kind{
	coordinator.EventRecordingStarted,
	coordinator.EventRecordingCompleted,
	coordinator.EventRecordingSynchronized,
	coordinator.EventRecordingFailed,
	coordinator.EventRecordingProgress,
	coordinator.EventVideoFinalized,
}
