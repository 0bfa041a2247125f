package curation

import (
	"errors"
	"fmt"
)

// ActionKind names the audited curation actions.
type ActionKind string

const (
	// ActionWinnerSelected audits one submission entering the winner set.
	ActionWinnerSelected ActionKind = "winner_selected"
	// ActionCallCurated audits the call-level finalize, carrying the curator notes.
	ActionCallCurated ActionKind = "call_curated"
)

var (
	// ErrNotAuthorized indicates the caller lacks curator or admin capability.
	ErrNotAuthorized = errors.New("curation: curator capability required")
	// ErrNotCurating indicates the call is not in the under_curation state.
	ErrNotCurating = errors.New("curation: open call is not under curation")
	// ErrAlreadyCurated indicates the call already reached its terminal state.
	// It also satisfies errors.Is against ErrNotCurating, which covers every
	// wrong-state finalize.
	ErrAlreadyCurated = fmt.Errorf("%w: already curated", ErrNotCurating)
	// ErrTooManyWinners indicates the winner set exceeds the call's quota.
	ErrTooManyWinners = errors.New("curation: winner set exceeds quota")
	// ErrInvalidWinnerSet indicates duplicate winners or winners from another call.
	ErrInvalidWinnerSet = errors.New("curation: invalid winner set")
	// ErrConcurrentModification indicates a concurrent writer advanced the call
	// first; callers must re-read before retrying.
	ErrConcurrentModification = errors.New("curation: concurrent modification")
)

// CurationAction is one append-only audit trail entry. Rows are only ever
// inserted, never updated or deleted.
type CurationAction struct {
	ActionID          string  `gorm:"column:action_id;primaryKey;size:190;not null"`
	OpenCallID        string  `gorm:"column:open_call_id;size:190;not null;index:idx_actions_call_time,priority:1"`
	SubmissionID      *string `gorm:"column:submission_id;size:190"`
	CuratorID         string  `gorm:"column:curator_id;size:190;not null"`
	Kind              string  `gorm:"column:kind;size:64;not null"`
	Notes             string  `gorm:"column:notes;type:text;not null;default:''"`
	RecordedAtSeconds int64   `gorm:"column:recorded_at_s;not null;index:idx_actions_call_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (CurationAction) TableName() string {
	return "curation_actions"
}

// FinalizeResult reports a committed finalize.
type FinalizeResult struct {
	CallID           string
	Winners          []string
	CuratedAtSeconds int64
}
