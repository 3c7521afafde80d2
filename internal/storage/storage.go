// Package storage defines the recording persistence contract shared by all backends.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OCAP2/mocap/pkg/core"
)

// Backend is the interface all storage implementations must satisfy.
// Each recording is one named blob; saving never touches other names.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	Save(rec *core.Recording, name string) error
	Load(name string) (*core.Recording, error)
	// List returns recording names in a stable order.
	List() ([]string, error)
	// Metadata reads only the stored header, never the sample body.
	Metadata(name string) (core.RecordingMetadata, bool)
	Delete(name string) error
	// TotalStorageUsed sums blob sizes at call time.
	TotalStorageUsed() uint64
}

// Exister is implemented by backends that can check a name without listing.
type Exister interface {
	Exists(name string) bool
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the web frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}

// VideoIndex is implemented by backends that can record where a synchronized
// session's video was finalized.
type VideoIndex interface {
	RecordVideo(h core.FileWritingHandle) error
}

var (
	ErrNotFound    = errors.New("recording not found")
	ErrCorrupt     = errors.New("recording is corrupt")
	ErrInvalidName = errors.New("invalid recording name")
	ErrEmpty       = errors.New("recording has no frames")
)

// IoError reports a failed read or write against the storage medium.
type IoError struct {
	Op   string
	Name string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// CorruptError wraps a decoding failure so that errors.Is(err, ErrCorrupt) holds.
func CorruptError(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
}

// ValidateName rejects names that could escape the storage root or hide files.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\:`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case len(name) > 200:
		return fmt.Errorf("%w: too long", ErrInvalidName)
	}
	return nil
}

// CheckRecording rejects recordings a backend must not persist: empty ones, and
// ones whose frame count or duration disagree with their samples.
func CheckRecording(rec *core.Recording) error {
	if rec.Empty() {
		return ErrEmpty
	}
	return rec.Validate()
}

// Exists reports whether name is stored in b, preferring Exister when available.
func Exists(b Backend, name string) bool {
	if e, ok := b.(Exister); ok {
		return e.Exists(name)
	}
	_, ok := b.Metadata(name)
	return ok
}
