// Package memory keeps recordings in process memory, optionally exporting each
// saved recording as JSON.
package memory

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/OCAP2/mocap/internal/export"
	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/internal/storage/format"
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/jonboulle/clockwork"
)

// Config holds memory backend settings. An empty OutputDir disables export.
type Config struct {
	OutputDir      string
	CompressOutput bool
}

type Dependencies struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
}

type blob struct {
	data      []byte
	createdAt time.Time
}

// Backend stores encoded recordings in a map.
type Backend struct {
	cfg   Config
	log   *slog.Logger
	clock clockwork.Clock

	mu    sync.RWMutex
	blobs map[string]blob

	lastExportPath string
	lastExportMeta core.RecordingMetadata
}

// New creates a new memory backend
func New(cfg Config, deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Backend{
		cfg:   cfg,
		log:   deps.Logger.With("component", "storage", "backend", "memory"),
		clock: deps.Clock,
		blobs: make(map[string]blob),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) Save(rec *core.Recording, name string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	if err := storage.CheckRecording(rec); err != nil {
		return err
	}

	now := b.clock.Now()
	data, err := format.Marshal(rec, now)
	if err != nil {
		return &storage.IoError{Op: "save", Name: name, Err: err}
	}

	b.mu.Lock()
	b.blobs[name] = blob{data: data, createdAt: now}
	b.mu.Unlock()

	if b.cfg.OutputDir != "" {
		meta, _ := b.Metadata(name)
		path, err := export.Write(export.Options{OutputDir: b.cfg.OutputDir, Compress: b.cfg.CompressOutput}, meta, rec)
		if err != nil {
			// The recording itself is stored; only the side export is missing.
			b.log.Warn("Recording export failed", "name", name, "error", err)
			return nil
		}
		b.mu.Lock()
		b.lastExportPath = path
		b.lastExportMeta = meta
		b.mu.Unlock()
		b.log.Info("Recording exported", "name", name, "path", path)
	}
	return nil
}

func (b *Backend) Load(name string) (*core.Recording, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	b.mu.RLock()
	bl, ok := b.blobs[name]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}

	rec, _, err := format.Unmarshal(bl.data)
	if err != nil {
		return nil, storage.CorruptError(name, err)
	}
	return rec, nil
}

func (b *Backend) List() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.blobs))
	for name := range b.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (b *Backend) Metadata(name string) (core.RecordingMetadata, bool) {
	b.mu.RLock()
	bl, ok := b.blobs[name]
	b.mu.RUnlock()
	if !ok {
		return core.RecordingMetadata{}, false
	}
	h, err := format.DecodeHeader(bl.data)
	if err != nil {
		return core.RecordingMetadata{}, false
	}
	return h.Metadata(name, int64(len(bl.data))), true
}

func (b *Backend) Exists(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blobs[name]
	return ok
}

func (b *Backend) Delete(name string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blobs[name]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	delete(b.blobs, name)
	return nil
}

func (b *Backend) TotalStorageUsed() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total uint64
	for _, bl := range b.blobs {
		total += uint64(len(bl.data))
	}
	return total
}

// GetExportedFilePath returns the path of the most recent JSON export.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the most recent JSON export for upload.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return core.UploadMetadata{
		SessionID:  b.lastExportMeta.Name,
		Duration:   b.lastExportMeta.Duration,
		FrameCount: b.lastExportMeta.FrameCount,
	}
}
