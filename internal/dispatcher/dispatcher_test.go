package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.add("DEBUG", msg, keysAndValues)
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.add("INFO", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.add("ERROR", msg, keysAndValues)
}

func (l *testLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, logger
}

func TestPublish_InlineObserversInOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var order []string
	d.Subscribe("recording.started", func(e Event) error {
		order = append(order, "first:"+e.SessionID)
		return nil
	})
	d.Subscribe("recording.started", func(e Event) error {
		order = append(order, "second:"+e.SessionID)
		return nil
	})

	require.NoError(t, d.Publish(Event{Kind: "recording.started", SessionID: "s1"}))
	assert.Equal(t, []string{"first:s1", "second:s1"}, order)
}

func TestPublish_NoObservers(t *testing.T) {
	d, _ := newTestDispatcher(t)
	assert.NoError(t, d.Publish(Event{Kind: "nobody.listens"}))
	assert.False(t, d.HasObservers("nobody.listens"))
}

func TestPublish_SetsTimestamp(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got time.Time
	d.Subscribe("k", func(e Event) error {
		got = e.Timestamp
		return nil
	})
	require.NoError(t, d.Publish(Event{Kind: "k"}))
	assert.False(t, got.IsZero())
}

func TestPublish_ErrorDoesNotStopDelivery(t *testing.T) {
	d, _ := newTestDispatcher(t)

	boom := errors.New("boom")
	reached := false
	d.Subscribe("k", func(Event) error { return boom })
	d.Subscribe("k", func(Event) error {
		reached = true
		return nil
	})

	err := d.Publish(Event{Kind: "k"})
	assert.ErrorIs(t, err, boom)
	assert.True(t, reached)
}

func TestBuffered_RunsAsync(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d, err := New(nil)
	require.NoError(t, err)

	var count atomic.Int32
	d.Subscribe("k", func(Event) error {
		count.Add(1)
		return nil
	}, Buffered(10), Blocking())

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Publish(Event{Kind: "k"}))
	}

	// Close drains the buffer before returning.
	d.Close()
	assert.Equal(t, int32(5), count.Load())
}

func TestBuffered_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d, err := New(nil)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Subscribe("k", func(Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, Buffered(1))

	require.NoError(t, d.Publish(Event{Kind: "k"}))
	<-started // worker holds the first event
	require.NoError(t, d.Publish(Event{Kind: "k"}))

	err = d.Publish(Event{Kind: "k"})
	assert.ErrorContains(t, err, "queue full")

	close(release)
	d.Close()
}

func TestClose_Idempotent(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)

	d.Close()
	d.Close()
	assert.ErrorIs(t, d.Publish(Event{Kind: "k"}), ErrClosed)

	// Subscribing after close is ignored.
	d.Subscribe("k", func(Event) error { return nil })
	assert.False(t, d.HasObservers("k"))
}

func TestLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Subscribe("ok", func(Event) error { return nil }, Logged())
	d.Subscribe("bad", func(Event) error { return errors.New("nope") }, Logged())

	require.NoError(t, d.Publish(Event{Kind: "ok", SessionID: "s1"}))
	require.Error(t, d.Publish(Event{Kind: "bad"}))

	assert.True(t, logger.contains("DEBUG: handling event"))
	assert.True(t, logger.contains("DEBUG: event complete"))
	assert.True(t, logger.contains("ERROR: event failed"))
}

func TestConcurrentPublish(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var count atomic.Int64
	d.Subscribe("k", func(Event) error {
		count.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Publish(Event{Kind: "k"})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), count.Load())
}
