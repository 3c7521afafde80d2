package otel

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NotNil(t, p.Meter("mocap"))

	counters, err := p.Counters(context.Background())
	require.NoError(t, err)
	assert.Nil(t, counters)
}

func TestNew_EnabledWithoutSink(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "mocap"})
	assert.Error(t, err)
}

func TestNew_FileExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "mocap",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())

	logger := slog.New(otelslog.NewHandler("mocap", otelslog.WithLoggerProvider(p.LoggerProvider())))
	logger.Info("recording saved", "name", "Take_1")

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "recording saved")
	assert.Contains(t, buf.String(), "Take_1")
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_InstallsGlobalMeterProvider(t *testing.T) {
	t.Cleanup(func() { otel.SetMeterProvider(noop.NewMeterProvider()) })

	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "mocap",
		BatchTimeout: time.Second,
		LogWriter:    &bytes.Buffer{},
	})
	require.NoError(t, err)

	frames, err := otel.Meter("github.com/OCAP2/mocap/internal/recorder").Int64Counter("recorder.frames")
	require.NoError(t, err)
	frames.Add(context.Background(), 3)

	sessions, err := p.Meter("github.com/OCAP2/mocap/internal/coordinator").Int64Counter("coordinator.sessions")
	require.NoError(t, err)
	sessions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", "saved")))
	sessions.Add(context.Background(), 2, metric.WithAttributes(attribute.String("outcome", "failed")))

	counters, err := p.Counters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), counters["recorder.frames"])
	assert.Equal(t, int64(3), counters["coordinator.sessions"])

	require.NoError(t, p.Shutdown(context.Background()))
}
