// Package video pairs a video encoder with the recording engine so both
// streams share one start instant, and reports when encoded files are final.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/mocap/internal/recorder"
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrAlreadyRecording = errors.New("synchronized recording already active")
	ErrNotRecording     = errors.New("no synchronized recording active")
	ErrCancelled        = errors.New("recording cancelled")
)

// Extension is appended to the session id to form the provisional output path.
const Extension = ".mp4"

// Encoder captures and encodes video to a file.
type Encoder interface {
	// Start begins writing to path. at is the shared start instant.
	Start(path string, at time.Time) error
	// Stop requests a graceful finish and returns without waiting. The channel
	// yields the finalization result once and is then closed.
	Stop() (<-chan error, error)
	// Cancel aborts encoding and discards the output.
	Cancel() error
}

// Config holds synchronizer settings.
type Config struct {
	OutputFolder string
}

// Dependencies holds collaborators for the synchronizer. Zero values get defaults.
type Dependencies struct {
	Clock  clockwork.Clock
	Logger *slog.Logger
}

type activeSession struct {
	id   string
	path string
}

// Synchronizer starts and stops an Encoder and a recorder.Engine together.
// Start and stop run on the caller's update loop; completion callbacks run on
// a worker goroutine per session.
type Synchronizer struct {
	cfg   Config
	enc   Encoder
	rec   *recorder.Engine
	clock clockwork.Clock
	log   *slog.Logger

	mu        sync.Mutex
	active    *activeSession
	callbacks []func(core.FileWritingHandle)
	waiters   map[string]chan core.FileWritingHandle

	wg        sync.WaitGroup
	finalized metric.Int64Counter
}

// NewSynchronizer creates a synchronizer writing into cfg.OutputFolder.
func NewSynchronizer(cfg Config, enc Encoder, rec *recorder.Engine, deps Dependencies) (*Synchronizer, error) {
	if enc == nil || rec == nil {
		return nil, errors.New("video synchronizer: encoder and recorder are required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	finalized, err := meter().Int64Counter(
		"video.files.finalized",
		metric.WithDescription("Video files finalized, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating finalized counter: %w", err)
	}

	return &Synchronizer{
		cfg:       cfg,
		enc:       enc,
		rec:       rec,
		clock:     deps.Clock,
		log:       deps.Logger.With("component", "video"),
		waiters:   make(map[string]chan core.FileWritingHandle),
		finalized: finalized,
	}, nil
}

// OutputFolder returns where video files are written.
func (s *Synchronizer) OutputFolder() string {
	return s.cfg.OutputFolder
}

// IsRecording reports whether a synchronized session is active.
func (s *Synchronizer) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// OnFileWritten registers a callback fired exactly once per session when its
// video file is final (or failed, or was cancelled).
func (s *Synchronizer) OnFileWritten(fn func(core.FileWritingHandle)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// PathFor returns the provisional video path for a session.
func (s *Synchronizer) PathFor(sessionID string) string {
	return filepath.Join(s.cfg.OutputFolder, sessionID+Extension)
}

// StartSynchronizedRecording starts the encoder and the recording engine with
// one shared start instant. If the engine refuses to start the encoder is
// cancelled again.
func (s *Synchronizer) StartSynchronizedRecording(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return ErrAlreadyRecording
	}

	if err := os.MkdirAll(s.cfg.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("creating video folder: %w", err)
	}

	path := s.PathFor(sessionID)
	at := s.clock.Now()

	if err := s.enc.Start(path, at); err != nil {
		return fmt.Errorf("starting encoder: %w", err)
	}
	if err := s.rec.StartAt(at); err != nil {
		if cancelErr := s.enc.Cancel(); cancelErr != nil {
			s.log.Warn("Failed to cancel encoder", "error", cancelErr)
		}
		return err
	}

	s.active = &activeSession{id: sessionID, path: path}
	s.waiters[sessionID] = make(chan core.FileWritingHandle, 1)
	s.log.Info("Synchronized recording started", "session", sessionID, "path", path)
	return nil
}

// StopSynchronizedRecording stops both streams without waiting for the
// encoder to drain. It returns nil if nothing was recording. The returned
// path is provisional until the completion callback fires.
func (s *Synchronizer) StopSynchronizedRecording() *core.SynchronizedRecordingResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	sess := s.active
	s.active = nil

	rec := s.rec.Stop()
	result := &core.SynchronizedRecordingResult{
		SessionID:     sess.id,
		Recording:     rec,
		VideoFilePath: sess.path,
	}

	done, err := s.enc.Stop()
	if err != nil {
		s.log.Error("Encoder refused to stop", "session", sess.id, "error", err)
		result.VideoFilePath = ""
		s.finishAsync(sess.id, "", fmt.Errorf("stopping encoder: %w", err))
		return result
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var encErr error
		for e := range done {
			if e != nil {
				encErr = e
			}
		}
		path := sess.path
		if encErr != nil {
			path = ""
		}
		s.finish(sess.id, path, encErr)
	}()

	s.log.Info("Synchronized recording stopped", "session", sess.id, "frames", frameCount(rec))
	return result
}

// StopAndWait stops like StopSynchronizedRecording and then blocks until the
// video is final or ctx is done.
func (s *Synchronizer) StopAndWait(ctx context.Context) (*core.SynchronizedRecordingResult, error) {
	s.mu.Lock()
	var waiter chan core.FileWritingHandle
	if s.active != nil {
		waiter = s.waiters[s.active.id]
	}
	s.mu.Unlock()

	result := s.StopSynchronizedRecording()
	if result == nil {
		return nil, ErrNotRecording
	}

	select {
	case h := <-waiter:
		if h.Err != nil {
			return result, h.Err
		}
		result.VideoFilePath = h.Path
		return result, nil
	case <-ctx.Done():
		return result, ctx.Err()
	}
}

// Cancel aborts the active session, discarding buffered pose samples and the
// video output. The completion callback fires with ErrCancelled.
func (s *Synchronizer) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ErrNotRecording
	}
	sess := s.active
	s.active = nil

	s.rec.Stop()
	err := s.enc.Cancel()
	if rmErr := os.Remove(sess.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}

	s.finishAsync(sess.id, "", ErrCancelled)
	s.log.Info("Synchronized recording cancelled", "session", sess.id)
	return err
}

// Wait blocks until all pending completion callbacks have fired.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// finishAsync fires the completion on a worker goroutine. Callers hold s.mu.
func (s *Synchronizer) finishAsync(sessionID, path string, err error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.finish(sessionID, path, err)
	}()
}

// finish delivers the completion handle for a session to its waiter and
// every registered callback.
func (s *Synchronizer) finish(sessionID, path string, err error) {
	h := core.FileWritingHandle{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Path:      path,
		Err:       err,
	}

	outcome := "ok"
	switch {
	case errors.Is(err, ErrCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	s.finalized.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	s.mu.Lock()
	waiter, ok := s.waiters[sessionID]
	delete(s.waiters, sessionID)
	callbacks := append([]func(core.FileWritingHandle){}, s.callbacks...)
	s.mu.Unlock()

	if ok {
		waiter <- h
	}
	for _, fn := range callbacks {
		fn(h)
	}
}

func frameCount(rec *core.Recording) int {
	if rec == nil {
		return 0
	}
	return rec.FrameCount
}
