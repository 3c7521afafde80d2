// Package gormstorage implements storage.Backend on any GORM dialect. The
// sqlite and postgres backends wrap it with connection management.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/OCAP2/mocap/internal/database"
	"github.com/OCAP2/mocap/internal/model"
	"github.com/OCAP2/mocap/internal/model/convert"
	"github.com/OCAP2/mocap/internal/spatial"
	"github.com/OCAP2/mocap/internal/storage"
	"github.com/OCAP2/mocap/pkg/core"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	Clock  clockwork.Clock
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	db    *gorm.DB
	log   *slog.Logger
	clock clockwork.Clock
}

// metadataColumns are the columns needed for metadata, excluding the blob.
var metadataColumns = []string{"name", "created_at", "format_version", "frame_count", "duration", "size_bytes"}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Backend{
		db:    deps.DB,
		log:   deps.Logger.With("component", "storage", "backend", "gorm"),
		clock: deps.Clock,
	}
}

// Init runs schema migration.
func (b *Backend) Init() error {
	if b.db == nil {
		return errors.New("gorm backend: no database connection")
	}
	if err := database.Migrate(b.db); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	return nil
}

// Close is a no-op; the connection belongs to whoever opened it.
func (b *Backend) Close() error {
	return nil
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

func (b *Backend) Save(rec *core.Recording, name string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	if err := storage.CheckRecording(rec); err != nil {
		return err
	}

	row, err := convert.CoreToRecording(name, rec, b.clock.Now())
	if err != nil {
		return &storage.IoError{Op: "save", Name: name, Err: err}
	}

	err = b.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"created_at", "updated_at", "format_version", "frame_count",
			"duration", "has_joints", "size_bytes", "footprint", "data",
		}),
	}).Create(&row).Error
	if err != nil {
		return &storage.IoError{Op: "save", Name: name, Err: err}
	}

	b.log.Debug("Recording saved", "name", name, "frames", rec.FrameCount, "bytes", row.SizeBytes)
	return nil
}

func (b *Backend) Load(name string) (*core.Recording, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}

	var row model.Recording
	if err := b.db.Where("name = ?", name).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
		}
		return nil, &storage.IoError{Op: "load", Name: name, Err: err}
	}

	rec, err := convert.RecordingToCore(row)
	if err != nil {
		return nil, storage.CorruptError(name, err)
	}
	return rec, nil
}

func (b *Backend) List() ([]string, error) {
	names := []string{}
	if err := b.db.Model(&model.Recording{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, &storage.IoError{Op: "list", Err: err}
	}
	return names, nil
}

// Metadata reads the header columns; the blob is not fetched.
func (b *Backend) Metadata(name string) (core.RecordingMetadata, bool) {
	var row model.Recording
	err := b.db.Select(metadataColumns).Where("name = ?", name).Take(&row).Error
	if err != nil {
		return core.RecordingMetadata{}, false
	}
	return convert.RecordingToMetadata(row), true
}

func (b *Backend) Exists(name string) bool {
	var count int64
	if err := b.db.Model(&model.Recording{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// Footprint returns the stored ground footprint of a recording.
func (b *Backend) Footprint(name string) (spatial.Footprint, bool) {
	var row model.Recording
	if err := b.db.Select("footprint").Where("name = ?", name).Take(&row).Error; err != nil {
		return spatial.Footprint{}, false
	}
	return convert.RecordingFootprint(row)
}

func (b *Backend) Delete(name string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	res := b.db.Where("name = ?", name).Delete(&model.Recording{})
	if res.Error != nil {
		return &storage.IoError{Op: "delete", Name: name, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	return nil
}

func (b *Backend) TotalStorageUsed() uint64 {
	var total int64
	err := b.db.Model(&model.Recording{}).Select("COALESCE(SUM(size_bytes), 0)").Scan(&total).Error
	if err != nil || total < 0 {
		return 0
	}
	return uint64(total)
}

// RecordVideo upserts the finalized video location for a session.
func (b *Backend) RecordVideo(h core.FileWritingHandle) error {
	row := convert.CoreToSessionVideo(h, b.clock.Now())
	err := b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"path", "error", "finalized_at"}),
	}).Create(&row).Error
	if err != nil {
		return &storage.IoError{Op: "record video", Name: h.SessionID, Err: err}
	}
	return nil
}

// Video returns the recorded video row for a session.
func (b *Backend) Video(sessionID string) (model.SessionVideo, bool) {
	var row model.SessionVideo
	if err := b.db.Where("session_id = ?", sessionID).Take(&row).Error; err != nil {
		return row, false
	}
	return row, true
}
