// Package monitor periodically reports what the capture system is doing.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/jonboulle/clockwork"

	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/pkg/core"
)

// StatusSource is the part of the coordinator the monitor reads.
type StatusSource interface {
	Mode() core.OperationMode
	SessionID() string
}

// MetricsSource exposes counter totals, such as the OTel provider's.
type MetricsSource interface {
	Counters(ctx context.Context) (map[string]int64, error)
}

// Status is one report.
type Status struct {
	Time         time.Time `json:"time"`
	Mode         string    `json:"mode"`
	SessionID    string    `json:"sessionId,omitempty"`
	Recordings   int       `json:"recordings"`
	StorageBytes uint64    `json:"storageBytes"`

	Counters map[string]int64 `json:"counters,omitempty"`
}

// Config controls reporting. An empty StatusPath disables the status file.
type Config struct {
	Interval   time.Duration
	StatusPath string
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source  StatusSource
	Storage storage.Backend
	Metrics MetricsSource
	Logger  *slog.Logger
	Clock   clockwork.Clock
}

// Service manages status monitoring
type Service struct {
	cfg  Config
	deps Dependencies

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
	last      Status
	onReport  func(Status)
}

// NewService creates a new monitor service
func NewService(cfg Config, deps Dependencies) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Service{cfg: cfg, deps: deps}
}

// OnReport registers a callback run on the monitor goroutine after every report.
func (s *Service) OnReport(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReport = fn
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Last returns the most recent report.
func (s *Service) Last() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Collect gathers a report without publishing it.
func (s *Service) Collect() Status {
	st := Status{
		Time: s.deps.Clock.Now(),
		Mode: core.ModeReady.String(),
	}
	if s.deps.Source != nil {
		st.Mode = s.deps.Source.Mode().String()
		st.SessionID = s.deps.Source.SessionID()
	}
	if s.deps.Storage != nil {
		if names, err := s.deps.Storage.List(); err == nil {
			st.Recordings = len(names)
		} else {
			s.deps.Logger.Warn("Listing recordings failed", "error", err)
		}
		st.StorageBytes = s.deps.Storage.TotalStorageUsed()
	}
	if s.deps.Metrics != nil {
		counters, err := s.deps.Metrics.Counters(context.Background())
		if err != nil {
			s.deps.Logger.Warn("Collecting counters failed", "error", err)
		}
		st.Counters = counters
	}
	return st
}

func (s *Service) report() {
	st := s.Collect()

	if s.cfg.StatusPath != "" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err == nil {
			err = renameio.WriteFile(s.cfg.StatusPath, append(data, '\n'), 0o644)
		}
		if err != nil {
			s.deps.Logger.Error("Error writing status file", "path", s.cfg.StatusPath, "error", err)
		}
	}

	s.mu.Lock()
	s.last = st
	fn := s.onReport
	s.mu.Unlock()

	s.deps.Logger.Debug("Status",
		"mode", st.Mode,
		"session", st.SessionID,
		"recordings", st.Recordings,
		"storageBytes", st.StorageBytes)
	if fn != nil {
		fn(st)
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	ticker := s.deps.Clock.NewTicker(s.cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				s.report()
			}
		}
	}()
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
