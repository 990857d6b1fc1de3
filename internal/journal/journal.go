// Package journal persists the playback history of a microscope in sqlite.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/logging"
	"github.com/tphakala/lightsheet-go/internal/microscope"
)

// ComponentJournal identifies journal errors.
const ComponentJournal = "journal"

// ErrNotFound is returned for playbacks the journal does not hold.
var ErrNotFound = errors.New(errors.NewStd("playback not found")).
	Component(ComponentJournal).
	Category(errors.CategoryNotFound).
	Build()

// Journal records playbacks and their stacks. It implements microscope.Recorder.
type Journal struct {
	db     *gorm.DB
	path   string
	logger *slog.Logger
}

var _ microscope.Recorder = (*Journal)(nil)

// Open opens or creates the journal database at path.
func Open(path string, debug bool) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Component(ComponentJournal).
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
	}

	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentJournal).
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Context("path", path).
			Build()
	}

	j, err := New(db)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	j.path = path
	return j, nil
}

// New wraps an open database and migrates the journal schema.
func New(db *gorm.DB) (*Journal, error) {
	if err := db.AutoMigrate(&Playback{}, &Stack{}); err != nil {
		return nil, errors.New(err).
			Component(ComponentJournal).
			Category(errors.CategoryDatabase).
			Context("operation", "migrate").
			Build()
	}

	log := logging.ForService("journal")
	if log == nil {
		log = slog.Default()
	}
	return &Journal{db: db, logger: log.With("component", ComponentJournal)}, nil
}

// DB returns the underlying GORM database.
func (j *Journal) DB() *gorm.DB { return j.db }

// Path returns the database file, empty for journals created with New.
func (j *Journal) Path() string { return j.path }

// RecordPlayback stores r.
func (j *Journal) RecordPlayback(ctx context.Context, r microscope.PlaybackRecord) error {
	p := playbackFrom(r)
	if err := j.db.WithContext(ctx).Create(&p).Error; err != nil {
		return dbError(err, "record_playback").Context("playback_id", p.ID).Build()
	}
	return nil
}

// RecordStack stores r. The playback it belongs to must be recorded first.
func (j *Journal) RecordStack(ctx context.Context, r microscope.StackRecord) error {
	s := stackFrom(r)
	if err := j.db.WithContext(ctx).Create(&s).Error; err != nil {
		return dbError(err, "record_stack").
			Context("playback_id", s.PlaybackID).
			Context("camera", s.Camera).
			Build()
	}
	return nil
}

// RecentPlaybacks returns up to limit playbacks, newest first.
func (j *Journal) RecentPlaybacks(ctx context.Context, limit int) ([]microscope.PlaybackRecord, error) {
	var rows []Playback
	err := j.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "recent_playbacks").Build()
	}

	records := make([]microscope.PlaybackRecord, len(rows))
	for i, row := range rows {
		records[i] = row.Record()
	}
	return records, nil
}

// Playback returns the playback with the given id.
func (j *Journal) Playback(ctx context.Context, id uuid.UUID) (microscope.PlaybackRecord, error) {
	var row Playback
	result := j.db.WithContext(ctx).Where("id = ?", id.String()).Limit(1).Find(&row)
	if result.Error != nil {
		return microscope.PlaybackRecord{}, dbError(result.Error, "playback").Context("playback_id", id.String()).Build()
	}
	if result.RowsAffected == 0 {
		return microscope.PlaybackRecord{}, errors.New(ErrNotFound).Context("playback_id", id.String()).Build()
	}
	return row.Record(), nil
}

// StacksForPlayback returns the stacks of a playback in acquisition order.
func (j *Journal) StacksForPlayback(ctx context.Context, id uuid.UUID) ([]microscope.StackInfo, error) {
	var rows []Stack
	err := j.db.WithContext(ctx).
		Where("playback_id = ?", id.String()).
		Order("timestamp_nanos ASC, camera ASC").
		Find(&rows).Error
	if err != nil {
		return nil, dbError(err, "stacks_for_playback").Context("playback_id", id.String()).Build()
	}

	infos := make([]microscope.StackInfo, len(rows))
	for i, row := range rows {
		infos[i] = row.Info()
	}
	return infos, nil
}

// CountPlaybacks returns the number of recorded playbacks and how many succeeded.
func (j *Journal) CountPlaybacks(ctx context.Context) (total, succeeded int64, err error) {
	if err := j.db.WithContext(ctx).Model(&Playback{}).Count(&total).Error; err != nil {
		return 0, 0, dbError(err, "count_playbacks").Build()
	}
	if err := j.db.WithContext(ctx).Model(&Playback{}).Where("success = ?", true).Count(&succeeded).Error; err != nil {
		return 0, 0, dbError(err, "count_playbacks").Build()
	}
	return total, succeeded, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return dbError(err, "close").Build()
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close").Build()
	}
	j.logger.Debug("journal closed", "path", j.path)
	return nil
}

func dbError(err error, operation string) *errors.ErrorBuilder {
	return errors.New(err).
		Component(ComponentJournal).
		Category(errors.CategoryDatabase).
		Context("operation", operation)
}
