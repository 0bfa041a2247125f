package submissions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CallStatus enumerates the open call lifecycle states. Transitions only
// ever advance: live -> under_curation -> curated.
type CallStatus string

const (
	// CallStatusLive accepts submissions until the deadline.
	CallStatusLive CallStatus = "live"
	// CallStatusUnderCuration closes intake and opens winner selection.
	CallStatusUnderCuration CallStatus = "under_curation"
	// CallStatusCurated is terminal; the call is immutable afterwards.
	CallStatusCurated CallStatus = "curated"
)

// PaymentStatus enumerates the fee state of a submission attempt.
type PaymentStatus string

const (
	// PaymentStatusFree marks the first attempt, which never carries a fee.
	PaymentStatusFree PaymentStatus = "free"
	// PaymentStatusPaid marks attempts two through six.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusUnpaid exists only for legacy rows awaiting repair.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
)

// MaxAttempts caps submissions per artist per open call.
const MaxAttempts = 6

const (
	maxIdentifierLength  = 190
	maxContentTitleChars = 300
	maxMediaRefs         = 20
)

var (
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("submissions: validation failed")
	// ErrInvalidCallID indicates an empty or oversized open call identifier.
	ErrInvalidCallID = fmt.Errorf("%w: invalid open call id", ErrValidation)
	// ErrInvalidArtistID indicates an empty or oversized artist identifier.
	ErrInvalidArtistID = fmt.Errorf("%w: invalid artist id", ErrValidation)
	// ErrCallNotFound indicates the open call does not exist.
	ErrCallNotFound = errors.New("submissions: open call not found")
	// ErrSubmissionClosed indicates the call is past deadline or no longer live.
	ErrSubmissionClosed = errors.New("submissions: open call closed")
	// ErrPaymentRequired indicates the attempt carries a fee that was not confirmed.
	ErrPaymentRequired = errors.New("submissions: payment required")
	// ErrQuotaExceeded indicates the artist has exhausted all attempts.
	ErrQuotaExceeded = errors.New("submissions: attempt quota exceeded")
)

// CallID represents a validated open call identifier.
type CallID string

// NewCallID validates raw input and returns a CallID.
func NewCallID(rawInput string) (CallID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCallID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCallID, maxIdentifierLength)
	}
	return CallID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CallID) String() string {
	return string(id)
}

// ArtistID represents a validated artist identifier.
type ArtistID string

// NewArtistID validates raw input and returns an ArtistID.
func NewArtistID(rawInput string) (ArtistID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidArtistID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidArtistID, maxIdentifierLength)
	}
	return ArtistID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ArtistID) String() string {
	return string(id)
}

// OpenCall models a time-bounded competition with a fixed winner quota.
type OpenCall struct {
	CallID           string `gorm:"column:call_id;primaryKey;size:190;not null"`
	Title            string `gorm:"column:title;size:300;not null"`
	DeadlineSeconds  int64  `gorm:"column:deadline_s;not null"`
	NumWinners       int    `gorm:"column:num_winners;not null"`
	Status           string `gorm:"column:status;size:32;not null;default:'live';index"`
	CurationNotes    string `gorm:"column:curation_notes;type:text;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (OpenCall) TableName() string {
	return "open_calls"
}

// Submission models one artist's entry to one open call.
type Submission struct {
	SubmissionID       string `gorm:"column:submission_id;primaryKey;size:190;not null"`
	OpenCallID         string `gorm:"column:open_call_id;size:190;not null;uniqueIndex:idx_call_artist_attempt,priority:1"`
	ArtistID           string `gorm:"column:artist_id;size:190;not null;uniqueIndex:idx_call_artist_attempt,priority:2"`
	AttemptIndex       int    `gorm:"column:attempt_index;not null;uniqueIndex:idx_call_artist_attempt,priority:3"`
	PaymentStatus      string `gorm:"column:payment_status;size:16;not null"`
	IsSelected         bool   `gorm:"column:is_selected;not null;default:false"`
	Title              string `gorm:"column:title;size:300;not null"`
	Description        string `gorm:"column:description;type:text;not null;default:''"`
	MediaRefsJSON      string `gorm:"column:media_refs_json;type:text;not null"`
	SubmittedAtSeconds int64  `gorm:"column:submitted_at_s;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Submission) TableName() string {
	return "submissions"
}

// MediaRefs decodes the stored blob reference URLs.
func (s Submission) MediaRefs() ([]string, error) {
	var refs []string
	if err := json.Unmarshal([]byte(s.MediaRefsJSON), &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// Content is the structured submission payload validated once at intake.
// Media references are opaque blob store URLs; the core never fetches them.
type Content struct {
	Title       string
	Description string
	MediaRefs   []string
}

// Validate enforces the structural schema for submission content.
func (c Content) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(c.Title) > maxContentTitleChars {
		return fmt.Errorf("%w: title exceeds %d characters", ErrValidation, maxContentTitleChars)
	}
	if len(c.MediaRefs) == 0 {
		return fmt.Errorf("%w: at least one media reference is required", ErrValidation)
	}
	if len(c.MediaRefs) > maxMediaRefs {
		return fmt.Errorf("%w: at most %d media references allowed", ErrValidation, maxMediaRefs)
	}
	for _, ref := range c.MediaRefs {
		if strings.TrimSpace(ref) == "" {
			return fmt.Errorf("%w: empty media reference", ErrValidation)
		}
	}
	return nil
}

func (c Content) mediaRefsJSON() (string, error) {
	encoded, err := json.Marshal(c.MediaRefs)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// Attempt describes the next permissible submission attempt for an artist.
type Attempt struct {
	Index       int
	FeeRequired bool
}
