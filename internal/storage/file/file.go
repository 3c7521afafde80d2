// Package filestorage stores each recording as one file under a root directory.
package filestorage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/OCAP2/mocap/internal/cache"
	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/internal/storage/format"
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/jonboulle/clockwork"
)

// Extension is appended to recording names to form file names.
const Extension = ".mocap"

type Config struct {
	Root string
	// Watch invalidates cached metadata when files change outside this process.
	Watch bool
}

type Dependencies struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
}

// Backend implements storage.Backend on the local filesystem.
type Backend struct {
	cfg   Config
	log   *slog.Logger
	clock clockwork.Clock
	cache *cache.MetadataCache

	watcher   *fsnotify.Watcher
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(cfg Config, deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Backend{
		cfg:   cfg,
		log:   deps.Logger.With("component", "storage", "backend", "file"),
		clock: deps.Clock,
		cache: cache.NewMetadataCache(),
	}
}

// Init creates the root directory and starts the watcher if enabled.
func (b *Backend) Init() error {
	if err := os.MkdirAll(b.cfg.Root, 0o755); err != nil {
		return &storage.IoError{Op: "init", Name: b.cfg.Root, Err: err}
	}
	if !b.cfg.Watch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	if err := watcher.Add(b.cfg.Root); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch directory %s: %w", b.cfg.Root, err)
	}
	b.watcher = watcher

	b.wg.Add(1)
	go b.watchLoop()
	return nil
}

func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.watcher != nil {
			err = b.watcher.Close()
			b.wg.Wait()
		}
	})
	return err
}

func (b *Backend) watchLoop() {
	defer b.wg.Done()
	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if name, ok := nameOf(event.Name); ok {
				b.cache.Invalidate(name)
				b.log.Debug("Recording changed on disk", "name", name, "op", event.Op.String())
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.log.Warn("fsnotify watcher error", "error", err)
		}
	}
}

func nameOf(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, Extension) {
		return "", false
	}
	return strings.TrimSuffix(base, Extension), true
}

func (b *Backend) path(name string) string {
	return filepath.Join(b.cfg.Root, name+Extension)
}

// Save writes rec atomically; a failed write leaves any previous file for name intact.
func (b *Backend) Save(rec *core.Recording, name string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	if err := storage.CheckRecording(rec); err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(b.path(name), renameio.WithPermissions(0o644))
	if err != nil {
		return &storage.IoError{Op: "save", Name: name, Err: err}
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			b.log.Debug("Cleanup pending recording file", "name", name, "error", err)
		}
	}()

	if err := format.Encode(pending, rec, b.clock.Now()); err != nil {
		return &storage.IoError{Op: "save", Name: name, Err: err}
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return &storage.IoError{Op: "save", Name: name, Err: err}
	}

	b.cache.Invalidate(name)
	b.log.Debug("Recording saved", "name", name, "frames", rec.FrameCount)
	return nil
}

func (b *Backend) Load(name string) (*core.Recording, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	f, err := os.Open(b.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
		}
		return nil, &storage.IoError{Op: "load", Name: name, Err: err}
	}
	defer f.Close()

	rec, _, err := format.Decode(f)
	if err != nil {
		if format.IsCorrupt(err) {
			return nil, storage.CorruptError(name, err)
		}
		return nil, &storage.IoError{Op: "load", Name: name, Err: err}
	}
	return rec, nil
}

// List returns recording names sorted by file name.
func (b *Backend) List() ([]string, error) {
	entries, err := os.ReadDir(b.cfg.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &storage.IoError{Op: "list", Name: b.cfg.Root, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if name, ok := nameOf(e.Name()); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// Metadata reads the header only. Results are cached until the file's size or
// modification time changes.
func (b *Backend) Metadata(name string) (core.RecordingMetadata, bool) {
	if storage.ValidateName(name) != nil {
		return core.RecordingMetadata{}, false
	}

	path := b.path(name)
	info, err := os.Stat(path)
	if err != nil {
		return core.RecordingMetadata{}, false
	}
	stamp := cache.Stamp{Size: info.Size(), ModTime: info.ModTime()}
	if meta, ok := b.cache.Get(name, stamp); ok {
		return meta, true
	}

	f, err := os.Open(path)
	if err != nil {
		return core.RecordingMetadata{}, false
	}
	defer f.Close()

	h, err := format.ReadHeader(f)
	if err != nil {
		b.log.Debug("Unreadable recording header", "name", name, "error", err)
		return core.RecordingMetadata{}, false
	}

	meta := h.Metadata(name, info.Size())
	b.cache.Put(name, stamp, meta)
	return meta, true
}

func (b *Backend) Exists(name string) bool {
	if storage.ValidateName(name) != nil {
		return false
	}
	_, err := os.Stat(b.path(name))
	return err == nil
}

func (b *Backend) Delete(name string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	b.cache.Invalidate(name)
	if err := os.Remove(b.path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
		}
		return &storage.IoError{Op: "delete", Name: name, Err: err}
	}
	b.log.Debug("Recording deleted", "name", name)
	return nil
}

// TotalStorageUsed stats every recording file on each call.
func (b *Backend) TotalStorageUsed() uint64 {
	entries, err := os.ReadDir(b.cfg.Root)
	if err != nil {
		return 0
	}
	var total uint64
	for _, e := range entries {
		if _, ok := nameOf(e.Name()); !ok || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += uint64(info.Size())
	}
	return total
}

// Root returns the directory recordings are stored in.
func (b *Backend) Root() string {
	return b.cfg.Root
}

// CacheStats exposes metadata cache hit and miss counts.
func (b *Backend) CacheStats() (hits, misses int) {
	return b.cache.Stats()
}
