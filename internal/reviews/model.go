package reviews

import (
	"errors"
	"fmt"
	"strings"
)

// Scores use one canonical 1..10 scale across every dimension.
const (
	ScoreMin = 1
	ScoreMax = 10
)

const maxIdentifierLength = 190

var (
	// ErrValidation indicates malformed reviewer input.
	ErrValidation = errors.New("reviews: validation failed")
	// ErrInvalidSubmissionID indicates an empty or oversized submission identifier.
	ErrInvalidSubmissionID = fmt.Errorf("%w: invalid submission id", ErrValidation)
	// ErrInvalidReviewerID indicates an empty or oversized reviewer identifier.
	ErrInvalidReviewerID = fmt.Errorf("%w: invalid reviewer id", ErrValidation)
	// ErrSubmissionNotFound indicates the reviewed submission does not exist.
	ErrSubmissionNotFound = errors.New("reviews: submission not found")
)

// SubmissionID represents a validated submission identifier.
type SubmissionID string

// NewSubmissionID validates raw input and returns a SubmissionID.
func NewSubmissionID(rawInput string) (SubmissionID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSubmissionID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSubmissionID, maxIdentifierLength)
	}
	return SubmissionID(trimmed), nil
}

// String returns the underlying string identifier.
func (id SubmissionID) String() string {
	return string(id)
}

// ReviewerID represents a validated reviewer identifier.
type ReviewerID string

// NewReviewerID validates raw input and returns a ReviewerID.
func NewReviewerID(rawInput string) (ReviewerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidReviewerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidReviewerID, maxIdentifierLength)
	}
	return ReviewerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ReviewerID) String() string {
	return string(id)
}

// Review models one reviewer's scored assessment of one submission.
// A reviewer overwrites their own prior row; the composite key keeps
// reviewers from touching each other's reviews.
type Review struct {
	SubmissionID     string `gorm:"column:submission_id;primaryKey;size:190;not null"`
	ReviewerID       string `gorm:"column:reviewer_id;primaryKey;size:190;not null"`
	TechnicalScore   int    `gorm:"column:technical_score;not null"`
	ArtisticScore    int    `gorm:"column:artistic_score;not null"`
	ThemeScore       int    `gorm:"column:theme_score;not null"`
	OverallScore     int    `gorm:"column:overall_score;not null"`
	PublicNotes      string `gorm:"column:public_notes;type:text;not null;default:''"`
	PrivateNotes     string `gorm:"column:private_notes;type:text;not null;default:''"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Review) TableName() string {
	return "reviews"
}

// ScoreSet carries the four scored dimensions of a review.
type ScoreSet struct {
	Technical int
	Artistic  int
	Theme     int
	Overall   int
}

// Validate enforces the configured score scale on every dimension.
func (s ScoreSet) Validate() error {
	dimensions := []struct {
		name  string
		value int
	}{
		{"technical", s.Technical},
		{"artistic", s.Artistic},
		{"theme", s.Theme},
		{"overall", s.Overall},
	}
	for _, dimension := range dimensions {
		if dimension.value < ScoreMin || dimension.value > ScoreMax {
			return fmt.Errorf("%w: %s score %d outside %d..%d",
				ErrValidation, dimension.name, dimension.value, ScoreMin, ScoreMax)
		}
	}
	return nil
}

// AggregateScore holds per-dimension arithmetic means across all reviews of
// one submission. A submission with zero reviews has no AggregateScore at
// all (nil), which callers must treat distinctly from a zero score.
type AggregateScore struct {
	Technical   float64
	Artistic    float64
	Theme       float64
	Overall     float64
	ReviewCount int
}

// RankEntry is one row of the advisory curation ranking.
type RankEntry struct {
	SubmissionID       string
	Aggregate          *AggregateScore
	SubmittedAtSeconds int64
}
