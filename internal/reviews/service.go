package reviews

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/atelierworks/opencall-backend/internal/submissions"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opRecordReview = "reviews.record_review"
	opAggregate    = "reviews.aggregate"
	opRank         = "reviews.rank"
)

// ServiceConfig describes the dependencies of the review aggregator.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service records per-reviewer scores and exposes aggregate scores and the
// advisory ranking for curation.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the review aggregator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("%s: %w", opRecordReview, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// ReviewRequest carries one reviewer's scores and notes for a submission.
type ReviewRequest struct {
	SubmissionID SubmissionID
	ReviewerID   ReviewerID
	Scores       ScoreSet
	PublicNotes  string
	PrivateNotes string
}

// RecordReview upserts the reviewer's scores for the submission, overwriting
// any prior review by the same reviewer. Reviews by distinct reviewers are
// independent rows and may proceed fully concurrently.
func (s *Service) RecordReview(ctx context.Context, req ReviewRequest) (Review, error) {
	if err := req.Scores.Validate(); err != nil {
		return Review{}, err
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&submissions.Submission{}).
		Where("submission_id = ?", req.SubmissionID.String()).
		Count(&count).Error
	if err != nil {
		s.logError(opRecordReview, "submission_lookup_failed", err,
			zap.String("submission_id", req.SubmissionID.String()))
		return Review{}, fmt.Errorf("%s: submission lookup failed: %w", opRecordReview, err)
	}
	if count == 0 {
		return Review{}, fmt.Errorf("%w: %s", ErrSubmissionNotFound, req.SubmissionID.String())
	}

	review := Review{
		SubmissionID:     req.SubmissionID.String(),
		ReviewerID:       req.ReviewerID.String(),
		TechnicalScore:   req.Scores.Technical,
		ArtisticScore:    req.Scores.Artistic,
		ThemeScore:       req.Scores.Theme,
		OverallScore:     req.Scores.Overall,
		PublicNotes:      req.PublicNotes,
		PrivateNotes:     req.PrivateNotes,
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_id"}, {Name: "reviewer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"technical_score", "artistic_score", "theme_score", "overall_score",
				"public_notes", "private_notes", "updated_at_s",
			}),
		}).
		Create(&review).Error
	if err != nil {
		s.logError(opRecordReview, "upsert_failed", err,
			zap.String("submission_id", req.SubmissionID.String()),
			zap.String("reviewer_id", req.ReviewerID.String()))
		return Review{}, fmt.Errorf("%s: upsert failed: %w", opRecordReview, err)
	}

	return review, nil
}

// Aggregate returns per-dimension arithmetic means across all reviews of the
// submission, or nil when the submission has no reviews yet.
func (s *Service) Aggregate(ctx context.Context, submissionID SubmissionID) (*AggregateScore, error) {
	var entries []Review
	err := s.db.WithContext(ctx).
		Where("submission_id = ?", submissionID.String()).
		Find(&entries).Error
	if err != nil {
		s.logError(opAggregate, "query_failed", err,
			zap.String("submission_id", submissionID.String()))
		return nil, fmt.Errorf("%s: query failed: %w", opAggregate, err)
	}
	return aggregateOf(entries), nil
}

func aggregateOf(entries []Review) *AggregateScore {
	if len(entries) == 0 {
		return nil
	}
	total := AggregateScore{ReviewCount: len(entries)}
	for _, review := range entries {
		total.Technical += float64(review.TechnicalScore)
		total.Artistic += float64(review.ArtisticScore)
		total.Theme += float64(review.ThemeScore)
		total.Overall += float64(review.OverallScore)
	}
	divisor := float64(len(entries))
	total.Technical /= divisor
	total.Artistic /= divisor
	total.Theme /= divisor
	total.Overall /= divisor
	return &total
}

// Rank orders the call's submissions by aggregate overall score descending.
// Submissions without reviews sort last; ties break by earliest submission
// time. The ordering is advisory input to curation, never an auto-applied
// winner set.
func (s *Service) Rank(ctx context.Context, callID submissions.CallID) ([]RankEntry, error) {
	var callCount int64
	err := s.db.WithContext(ctx).
		Model(&submissions.OpenCall{}).
		Where("call_id = ?", callID.String()).
		Count(&callCount).Error
	if err != nil {
		s.logError(opRank, "call_lookup_failed", err, zap.String("open_call_id", callID.String()))
		return nil, fmt.Errorf("%s: call lookup failed: %w", opRank, err)
	}
	if callCount == 0 {
		return nil, fmt.Errorf("%w: %s", submissions.ErrCallNotFound, callID.String())
	}

	var entries []submissions.Submission
	if err := s.db.WithContext(ctx).
		Where("open_call_id = ?", callID.String()).
		Find(&entries).Error; err != nil {
		s.logError(opRank, "submission_query_failed", err, zap.String("open_call_id", callID.String()))
		return nil, fmt.Errorf("%s: submission query failed: %w", opRank, err)
	}
	if len(entries) == 0 {
		return []RankEntry{}, nil
	}

	submissionIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		submissionIDs = append(submissionIDs, entry.SubmissionID)
	}

	var allReviews []Review
	if err := s.db.WithContext(ctx).
		Where("submission_id IN ?", submissionIDs).
		Find(&allReviews).Error; err != nil {
		s.logError(opRank, "review_query_failed", err, zap.String("open_call_id", callID.String()))
		return nil, fmt.Errorf("%s: review query failed: %w", opRank, err)
	}

	reviewsBySubmission := make(map[string][]Review, len(entries))
	for _, review := range allReviews {
		reviewsBySubmission[review.SubmissionID] = append(reviewsBySubmission[review.SubmissionID], review)
	}

	ranking := make([]RankEntry, 0, len(entries))
	for _, entry := range entries {
		ranking = append(ranking, RankEntry{
			SubmissionID:       entry.SubmissionID,
			Aggregate:          aggregateOf(reviewsBySubmission[entry.SubmissionID]),
			SubmittedAtSeconds: entry.SubmittedAtSeconds,
		})
	}

	sort.SliceStable(ranking, func(left, right int) bool {
		return rankLess(ranking[left], ranking[right])
	})
	return ranking, nil
}

func rankLess(left, right RankEntry) bool {
	switch {
	case left.Aggregate == nil && right.Aggregate == nil:
		// Both unreviewed: promptness decides.
	case left.Aggregate == nil:
		return false
	case right.Aggregate == nil:
		return true
	case left.Aggregate.Overall != right.Aggregate.Overall:
		return left.Aggregate.Overall > right.Aggregate.Overall
	}
	if left.SubmittedAtSeconds != right.SubmittedAtSeconds {
		return left.SubmittedAtSeconds < right.SubmittedAtSeconds
	}
	return left.SubmissionID < right.SubmissionID
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
	s.logger.Error("review service error", attrs...)
}
