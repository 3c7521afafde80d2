// Package dispatcher delivers published events to the observers subscribed to
// their kind. Observers run inline by default or on their own goroutine when
// registered with Buffered.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Kind identifies a class of event, e.g. "recording.started".
type Kind string

// Event is a notification published to observers.
type Event struct {
	Kind      Kind
	SessionID string
	Timestamp time.Time
	Payload   any
}

// HandlerFunc observes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("dispatcher closed")

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type subscription struct {
	deliver func(Event) error
	buffer  chan Event
}

// Dispatcher routes events to subscribed observers.
type Dispatcher struct {
	logger Logger

	mu       sync.RWMutex
	handlers map[Kind][]*subscription
	closed   bool
	wg       sync.WaitGroup

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	published metric.Int64Counter
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// New creates a new Dispatcher with the given logger (nil discards).
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	d := &Dispatcher{
		handlers: make(map[Kind][]*subscription),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events waiting for buffered observers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for kind, subs := range d.handlers {
				var n int
				for _, s := range subs {
					if s.buffer != nil {
						n += len(s.buffer)
					}
				}
				o.ObserveInt64(d.queueSize, int64(n),
					metric.WithAttributes(attribute.String("kind", string(kind))))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	if d.published, err = m.Int64Counter("dispatcher.events.published",
		metric.WithDescription("Total events published")); err != nil {
		return nil, fmt.Errorf("creating published counter: %w", err)
	}
	if d.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Total events handled by observers")); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter("dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue")); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	if d.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Total observer errors")); err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Subscribe adds an observer for kind. Observers of a kind are called in
// subscription order.
func (d *Dispatcher) Subscribe(kind Kind, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := d.withMetrics(kind, h)
	if cfg.logged {
		handler = d.withLogging(kind, handler)
	}

	sub := &subscription{deliver: handler}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if cfg.bufferSize > 0 {
		d.withBuffer(kind, sub, cfg.bufferSize, cfg.blocking)
	}
	d.handlers[kind] = append(d.handlers[kind], sub)
}

// HasObservers returns true if anything is subscribed to kind.
func (d *Dispatcher) HasObservers(kind Kind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind]) > 0
}

// Publish delivers e to every observer of its kind. Inline observer errors and
// full queues are joined into the returned error; delivery to the remaining
// observers continues regardless.
func (d *Dispatcher) Publish(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	d.published.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(e.Kind))))

	var errs []error
	for _, sub := range d.handlers[e.Kind] {
		if err := sub.deliver(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops accepting events and waits for buffered observers to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, subs := range d.handlers {
		for _, s := range subs {
			if s.buffer != nil {
				close(s.buffer)
			}
		}
	}
	d.mu.Unlock()

	d.wg.Wait()
}

// withBuffer moves the observer onto its own goroutine. Callers hold d.mu.
func (d *Dispatcher) withBuffer(kind Kind, sub *subscription, size int, blocking bool) {
	buffer := make(chan Event, size)
	handler := sub.deliver
	kindAttr := attribute.String("kind", string(kind))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range buffer {
			_ = handler(e)
		}
	}()

	sub.buffer = buffer
	if blocking {
		sub.deliver = func(e Event) error {
			buffer <- e
			return nil
		}
		return
	}
	sub.deliver = func(e Event) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(kindAttr))
			return fmt.Errorf("queue full: %s", kind)
		}
	}
}

func (d *Dispatcher) withMetrics(kind Kind, h HandlerFunc) HandlerFunc {
	kindAttr := metric.WithAttributes(attribute.String("kind", string(kind)))
	return func(e Event) error {
		err := h(e)
		d.processed.Add(context.Background(), 1, kindAttr)
		if err != nil {
			d.failed.Add(context.Background(), 1, kindAttr)
		}
		return err
	}
}

func (d *Dispatcher) withLogging(kind Kind, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "kind", kind, "session", e.SessionID)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "kind", kind, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "kind", kind, "duration", time.Since(start))
		}

		return err
	}
}
