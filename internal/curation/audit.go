package curation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditSink accepts curation trail entries. Implementations are best-effort:
// the finalizer treats failures as warnings, never as rollback triggers.
type AuditSink interface {
	Record(ctx context.Context, entry CurationAction) error
}

// IDProvider issues identifiers for audit trail entries.
type IDProvider interface {
	NewID() (string, error)
}

// RecorderConfig describes the dependencies of the database-backed audit sink.
type RecorderConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Recorder appends curation actions to the audit table.
type Recorder struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewRecorder constructs the audit recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Database == nil {
		return nil, errors.New("curation: audit recorder requires a database handle")
	}
	if cfg.IDProvider == nil {
		return nil, errors.New("curation: audit recorder requires an id provider")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Record inserts one audit entry, filling in the id and timestamp when absent.
func (r *Recorder) Record(ctx context.Context, entry CurationAction) error {
	if entry.ActionID == "" {
		actionID, err := r.idProvider.NewID()
		if err != nil {
			return fmt.Errorf("curation: audit id generation failed: %w", err)
		}
		entry.ActionID = actionID
	}
	if entry.RecordedAtSeconds == 0 {
		entry.RecordedAtSeconds = r.clock().UTC().Unix()
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("curation: audit insert failed: %w", err)
	}
	return nil
}
