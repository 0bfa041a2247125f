package curation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atelierworks/opencall-backend/internal/auth"
	"github.com/atelierworks/opencall-backend/internal/submissions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingAudit    = errors.New("audit sink is required")
	// errStatusGuard aborts the finalize transaction when the conditional
	// status update matched no row.
	errStatusGuard = errors.New("status guard tripped")
	noOpLogger     = zap.NewNop()
)

const (
	opBeginCuration = "curation.begin"
	opFinalize      = "curation.finalize"
)

// ServiceConfig describes the dependencies of the curation finalizer.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Audit    AuditSink
	Logger   *zap.Logger
}

// Service drives the open call state machine: live -> under_curation ->
// curated, with curated terminal. At most one finalize ever succeeds per
// call.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	audit  AuditSink
	logger *zap.Logger
}

// NewService constructs the curation finalizer.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("%s: %w", opFinalize, errMissingDatabase)
	}
	if cfg.Audit == nil {
		return nil, fmt.Errorf("%s: %w", opFinalize, errMissingAudit)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, audit: cfg.Audit, logger: logger}, nil
}

// BeginCuration explicitly moves a live call to under_curation, closing
// intake before the deadline if the curator chooses. The transition has no
// side effects beyond the status flip and is idempotent while the call
// remains under curation.
func (s *Service) BeginCuration(ctx context.Context, callID submissions.CallID, caller auth.Principal) error {
	if !caller.CanCurate() {
		return fmt.Errorf("%w: caller %s", ErrNotAuthorized, caller.UserID)
	}

	call, err := s.loadCall(ctx, callID)
	if err != nil {
		return err
	}
	switch submissions.CallStatus(call.Status) {
	case submissions.CallStatusCurated:
		return fmt.Errorf("%w: call %s", ErrAlreadyCurated, callID.String())
	case submissions.CallStatusUnderCuration:
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&submissions.OpenCall{}).
		Where("call_id = ? AND status = ?", callID.String(), string(submissions.CallStatusLive)).
		Update("status", string(submissions.CallStatusUnderCuration))
	if result.Error != nil {
		s.logError(opBeginCuration, "status_update_failed", result.Error,
			zap.String("open_call_id", callID.String()))
		return fmt.Errorf("%s: status update failed: %w", opBeginCuration, result.Error)
	}
	if result.RowsAffected == 0 {
		refreshed, err := s.loadCall(ctx, callID)
		if err != nil {
			return err
		}
		switch submissions.CallStatus(refreshed.Status) {
		case submissions.CallStatusUnderCuration:
			return nil
		case submissions.CallStatusCurated:
			return fmt.Errorf("%w: call %s", ErrAlreadyCurated, callID.String())
		default:
			return fmt.Errorf("%w: call %s", ErrConcurrentModification, callID.String())
		}
	}
	return nil
}

// Finalize commits the winner set and closes the open call.
//
// Winners are flagged and the status flipped inside one transaction; the
// status write is conditioned on the call still being under_curation, so a
// concurrent finalize loses wholesale and observes ErrConcurrentModification
// or ErrAlreadyCurated with no partial writes. Audit entries are emitted
// after commit, best-effort.
func (s *Service) Finalize(ctx context.Context, callID submissions.CallID, winnerIDs []string, caller auth.Principal, notes string) (FinalizeResult, error) {
	if !caller.CanCurate() {
		return FinalizeResult{}, fmt.Errorf("%w: caller %s", ErrNotAuthorized, caller.UserID)
	}

	call, err := s.loadCall(ctx, callID)
	if err != nil {
		return FinalizeResult{}, err
	}

	now := s.clock().UTC()
	status := submissions.CallStatus(call.Status)
	if status == submissions.CallStatusLive && now.Unix() >= call.DeadlineSeconds {
		// Deadline passed: the live call moves to curation automatically.
		status, err = s.advancePastDeadline(ctx, callID)
		if err != nil {
			return FinalizeResult{}, err
		}
	}
	switch status {
	case submissions.CallStatusCurated:
		return FinalizeResult{}, fmt.Errorf("%w: call %s", ErrAlreadyCurated, callID.String())
	case submissions.CallStatusLive:
		return FinalizeResult{}, fmt.Errorf("%w: call %s is still live", ErrNotCurating, callID.String())
	}

	winners, err := normalizeWinnerSet(winnerIDs, call.NumWinners)
	if err != nil {
		return FinalizeResult{}, err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(winners) > 0 {
			var matched int64
			if err := tx.Model(&submissions.Submission{}).
				Where("submission_id IN ? AND open_call_id = ?", winners, callID.String()).
				Count(&matched).Error; err != nil {
				return fmt.Errorf("%s: winner lookup failed: %w", opFinalize, err)
			}
			if matched != int64(len(winners)) {
				return fmt.Errorf("%w: %d of %d winners belong to call %s",
					ErrInvalidWinnerSet, matched, len(winners), callID.String())
			}
			if err := tx.Model(&submissions.Submission{}).
				Where("submission_id IN ? AND open_call_id = ?", winners, callID.String()).
				Update("is_selected", true).Error; err != nil {
				return fmt.Errorf("%s: winner update failed: %w", opFinalize, err)
			}
		}

		guard := tx.Model(&submissions.OpenCall{}).
			Where("call_id = ? AND status = ?", callID.String(), string(submissions.CallStatusUnderCuration)).
			Updates(map[string]interface{}{
				"status":         string(submissions.CallStatusCurated),
				"curation_notes": notes,
			})
		if guard.Error != nil {
			return fmt.Errorf("%s: status update failed: %w", opFinalize, guard.Error)
		}
		if guard.RowsAffected == 0 {
			return errStatusGuard
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, errStatusGuard) {
			return FinalizeResult{}, s.classifyGuardFailure(ctx, callID)
		}
		if !errors.Is(txErr, ErrInvalidWinnerSet) {
			s.logError(opFinalize, "transaction_failed", txErr, zap.String("open_call_id", callID.String()))
		}
		return FinalizeResult{}, txErr
	}

	s.recordAuditTrail(ctx, callID, winners, caller.UserID, notes)

	return FinalizeResult{
		CallID:           callID.String(),
		Winners:          winners,
		CuratedAtSeconds: now.Unix(),
	}, nil
}

func normalizeWinnerSet(winnerIDs []string, numWinners int) ([]string, error) {
	winners := make([]string, 0, len(winnerIDs))
	seen := make(map[string]struct{}, len(winnerIDs))
	for _, raw := range winnerIDs {
		id := raw
		if id == "" {
			return nil, fmt.Errorf("%w: empty submission id", ErrInvalidWinnerSet)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate submission id %s", ErrInvalidWinnerSet, id)
		}
		seen[id] = struct{}{}
		winners = append(winners, id)
	}
	if len(winners) > numWinners {
		return nil, fmt.Errorf("%w: %d winners for a quota of %d", ErrTooManyWinners, len(winners), numWinners)
	}
	return winners, nil
}

func (s *Service) advancePastDeadline(ctx context.Context, callID submissions.CallID) (submissions.CallStatus, error) {
	result := s.db.WithContext(ctx).
		Model(&submissions.OpenCall{}).
		Where("call_id = ? AND status = ?", callID.String(), string(submissions.CallStatusLive)).
		Update("status", string(submissions.CallStatusUnderCuration))
	if result.Error != nil {
		s.logError(opFinalize, "deadline_transition_failed", result.Error,
			zap.String("open_call_id", callID.String()))
		return "", fmt.Errorf("%s: deadline transition failed: %w", opFinalize, result.Error)
	}
	refreshed, err := s.loadCall(ctx, callID)
	if err != nil {
		return "", err
	}
	return submissions.CallStatus(refreshed.Status), nil
}

func (s *Service) classifyGuardFailure(ctx context.Context, callID submissions.CallID) error {
	refreshed, err := s.loadCall(ctx, callID)
	if err != nil {
		return fmt.Errorf("%w: call %s", ErrConcurrentModification, callID.String())
	}
	if submissions.CallStatus(refreshed.Status) == submissions.CallStatusCurated {
		return fmt.Errorf("%w: call %s", ErrAlreadyCurated, callID.String())
	}
	return fmt.Errorf("%w: call %s", ErrConcurrentModification, callID.String())
}

func (s *Service) recordAuditTrail(ctx context.Context, callID submissions.CallID, winners []string, curatorID, notes string) {
	for _, winnerID := range winners {
		submissionID := winnerID
		entry := CurationAction{
			OpenCallID:   callID.String(),
			SubmissionID: &submissionID,
			CuratorID:    curatorID,
			Kind:         string(ActionWinnerSelected),
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.Warn("curation audit entry dropped",
				zap.String("operation", opFinalize),
				zap.String("open_call_id", callID.String()),
				zap.String("submission_id", winnerID),
				zap.String("kind", string(ActionWinnerSelected)),
				zap.Error(err))
		}
	}

	entry := CurationAction{
		OpenCallID: callID.String(),
		CuratorID:  curatorID,
		Kind:       string(ActionCallCurated),
		Notes:      notes,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("curation audit entry dropped",
			zap.String("operation", opFinalize),
			zap.String("open_call_id", callID.String()),
			zap.String("kind", string(ActionCallCurated)),
			zap.Error(err))
	}
}

func (s *Service) loadCall(ctx context.Context, callID submissions.CallID) (submissions.OpenCall, error) {
	var call submissions.OpenCall
	err := s.db.WithContext(ctx).
		Where("call_id = ?", callID.String()).
		Take(&call).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return submissions.OpenCall{}, fmt.Errorf("%w: %s", submissions.ErrCallNotFound, callID.String())
	}
	if err != nil {
		s.logError(opFinalize, "call_select_failed", err, zap.String("open_call_id", callID.String()))
		return submissions.OpenCall{}, fmt.Errorf("%s: call select failed: %w", opFinalize, err)
	}
	return call, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("curation service error", attrs...)
}
