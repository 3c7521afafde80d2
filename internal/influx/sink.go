package influx

import (
	"github.com/OCAP2/mocap/internal/dispatcher"
	"github.com/OCAP2/mocap/internal/logging"
)

// Sink moves telemetry writes off the frame loop. It owns a dispatcher whose
// buffered observers write through the Manager; delivery failures are logged
// to the Manager's zerolog logger next to the rest of the telemetry output.
type Sink struct {
	bus *dispatcher.Dispatcher
}

// NewSink subscribes m to every kind in Kinds with a queue of bufferSize events.
func (m *Manager) NewSink(bufferSize int) (*Sink, error) {
	log := m.logger.With().Str("component", "telemetry").Logger()
	bus, err := dispatcher.New(logging.NewDispatcherLogger(log))
	if err != nil {
		return nil, err
	}
	for _, kind := range Kinds {
		bus.Subscribe(kind, m.Handler(), dispatcher.Buffered(bufferSize), dispatcher.Logged())
	}
	return &Sink{bus: bus}, nil
}

// Forward republishes an event onto the sink. It is meant to be subscribed on
// the coordinator for each kind in Kinds.
func (s *Sink) Forward(e dispatcher.Event) error {
	return s.bus.Publish(e)
}

// Close drains queued events. Close the Manager afterwards.
func (s *Sink) Close() {
	s.bus.Close()
}
