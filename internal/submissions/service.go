package submissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opNextAttempt = "submissions.next_attempt"
	opSubmit      = "submissions.submit"
	opListForCall = "submissions.list_for_call"
)

// IDProvider issues identifiers for new submission records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the intake service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service validates and persists submissions, enforcing the per-artist
// attempt quota and the deadline gate.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the intake service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("%s: %w", opSubmit, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("%s: %w", opSubmit, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// NextAttempt computes the index and fee requirement of the artist's next
// submission attempt for the given open call. The result is advisory; Submit
// re-derives it inside its transaction before inserting.
func (s *Service) NextAttempt(ctx context.Context, callID CallID, artistID ArtistID) (Attempt, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Submission{}).
		Where("open_call_id = ? AND artist_id = ?", callID.String(), artistID.String()).
		Count(&count).Error
	if err != nil {
		s.logError(opNextAttempt, "count_failed", err,
			zap.String("open_call_id", callID.String()),
			zap.String("artist_id", artistID.String()))
		return Attempt{}, fmt.Errorf("%s: count failed: %w", opNextAttempt, err)
	}
	return attemptForCount(count)
}

func attemptForCount(count int64) (Attempt, error) {
	if count >= MaxAttempts {
		return Attempt{}, fmt.Errorf("%w: %d of %d attempts used", ErrQuotaExceeded, count, MaxAttempts)
	}
	index := int(count) + 1
	return Attempt{Index: index, FeeRequired: index > 1}, nil
}

// SubmitRequest carries the validated inputs for one submission attempt.
// PaymentConfirmed is the payment gateway's verdict for this attempt; the
// core never initiates charges.
type SubmitRequest struct {
	CallID           CallID
	ArtistID         ArtistID
	PaymentConfirmed bool
	Content          Content
}

// Submit validates and persists a new submission attempt.
//
// Preconditions are checked in order: the call must be live and before its
// deadline, the content must pass structural validation, the attempt must be
// within quota, and any required fee must be confirmed. The quota count and
// the insert run in one transaction with a locking read, and the count is
// re-validated after the insert so that two racing attempts at the quota
// boundary cannot both commit.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Submission, error) {
	call, err := s.loadCall(ctx, req.CallID)
	if err != nil {
		return Submission{}, err
	}

	now := s.clock().UTC()
	if CallStatus(call.Status) != CallStatusLive || now.Unix() >= call.DeadlineSeconds {
		return Submission{}, fmt.Errorf("%w: call %s", ErrSubmissionClosed, req.CallID.String())
	}

	if err := req.Content.Validate(); err != nil {
		return Submission{}, err
	}
	mediaRefs, err := req.Content.mediaRefsJSON()
	if err != nil {
		s.logError(opSubmit, "media_refs_encode_failed", err)
		return Submission{}, fmt.Errorf("%s: encode media refs: %w", opSubmit, err)
	}

	submissionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSubmit, "id_generation_failed", err)
		return Submission{}, fmt.Errorf("%s: id generation failed: %w", opSubmit, err)
	}

	var stored Submission
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Submission{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("open_call_id = ? AND artist_id = ?", req.CallID.String(), req.ArtistID.String()).
			Count(&count).Error; err != nil {
			return fmt.Errorf("%s: count failed: %w", opSubmit, err)
		}

		attempt, err := attemptForCount(count)
		if err != nil {
			return err
		}
		if attempt.FeeRequired && !req.PaymentConfirmed {
			return fmt.Errorf("%w: attempt %d carries a fee", ErrPaymentRequired, attempt.Index)
		}

		paymentStatus := PaymentStatusPaid
		if attempt.Index == 1 {
			paymentStatus = PaymentStatusFree
		}

		stored = Submission{
			SubmissionID:       submissionID,
			OpenCallID:         req.CallID.String(),
			ArtistID:           req.ArtistID.String(),
			AttemptIndex:       attempt.Index,
			PaymentStatus:      string(paymentStatus),
			IsSelected:         false,
			Title:              req.Content.Title,
			Description:        req.Content.Description,
			MediaRefsJSON:      mediaRefs,
			SubmittedAtSeconds: now.Unix(),
		}
		if err := tx.Create(&stored).Error; err != nil {
			return fmt.Errorf("%s: insert failed: %w", opSubmit, err)
		}

		// Revalidate after the insert; the loser of a boundary race rolls back.
		var total int64
		if err := tx.Model(&Submission{}).
			Where("open_call_id = ? AND artist_id = ?", req.CallID.String(), req.ArtistID.String()).
			Count(&total).Error; err != nil {
			return fmt.Errorf("%s: recount failed: %w", opSubmit, err)
		}
		if total > MaxAttempts {
			return fmt.Errorf("%w: concurrent attempt won the final slot", ErrQuotaExceeded)
		}
		return nil
	})
	if txErr != nil {
		if !isDomainError(txErr) {
			s.logError(opSubmit, "transaction_failed", txErr,
				zap.String("open_call_id", req.CallID.String()),
				zap.String("artist_id", req.ArtistID.String()))
		}
		return Submission{}, txErr
	}

	return stored, nil
}

// ListForCall returns all submissions belonging to the open call, ordered by
// submission time.
func (s *Service) ListForCall(ctx context.Context, callID CallID) ([]Submission, error) {
	if _, err := s.loadCall(ctx, callID); err != nil {
		return nil, err
	}
	var entries []Submission
	if err := s.db.WithContext(ctx).
		Where("open_call_id = ?", callID.String()).
		Order("submitted_at_s ASC").
		Find(&entries).Error; err != nil {
		s.logError(opListForCall, "query_failed", err, zap.String("open_call_id", callID.String()))
		return nil, fmt.Errorf("%s: query failed: %w", opListForCall, err)
	}
	return entries, nil
}

func (s *Service) loadCall(ctx context.Context, callID CallID) (OpenCall, error) {
	var call OpenCall
	err := s.db.WithContext(ctx).
		Where("call_id = ?", callID.String()).
		Take(&call).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OpenCall{}, fmt.Errorf("%w: %s", ErrCallNotFound, callID.String())
	}
	if err != nil {
		s.logError(opSubmit, "call_select_failed", err, zap.String("open_call_id", callID.String()))
		return OpenCall{}, fmt.Errorf("%s: call select failed: %w", opSubmit, err)
	}
	return call, nil
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCallNotFound) ||
		errors.Is(err, ErrSubmissionClosed) ||
		errors.Is(err, ErrPaymentRequired) ||
		errors.Is(err, ErrQuotaExceeded)
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
	s.logger.Error("submission service error", attrs...)
}
