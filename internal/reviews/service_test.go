package reviews

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/atelierworks/opencall-backend/internal/submissions"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	testCallID      = "call-spring-2026"
	testBaseSeconds = int64(1750000000)
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:reviews_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&submissions.OpenCall{}, &submissions.Submission{}, &Review{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := func() time.Time { return time.Unix(testBaseSeconds, 0).UTC() }
	service, err := NewService(ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}

	return service, db
}

func seedCallAndSubmissions(t *testing.T, db *gorm.DB, entries ...submissions.Submission) {
	t.Helper()
	call := submissions.OpenCall{
		CallID:           testCallID,
		Title:            "Spring Open Call 2026",
		DeadlineSeconds:  testBaseSeconds + 3600,
		NumWinners:       3,
		Status:           string(submissions.CallStatusLive),
		CreatedAtSeconds: testBaseSeconds - 86400,
	}
	if err := db.Create(&call).Error; err != nil {
		t.Fatalf("failed to seed call: %v", err)
	}
	for _, entry := range entries {
		if err := db.Create(&entry).Error; err != nil {
			t.Fatalf("failed to seed submission %s: %v", entry.SubmissionID, err)
		}
	}
}

func testSubmission(submissionID, artistID string, submittedAt int64) submissions.Submission {
	return submissions.Submission{
		SubmissionID:       submissionID,
		OpenCallID:         testCallID,
		ArtistID:           artistID,
		AttemptIndex:       1,
		PaymentStatus:      string(submissions.PaymentStatusFree),
		Title:              "Untitled",
		MediaRefsJSON:      `["https://blobs.example/a.jpg"]`,
		SubmittedAtSeconds: submittedAt,
	}
}

func mustSubmissionID(t *testing.T, value string) SubmissionID {
	t.Helper()
	id, err := NewSubmissionID(value)
	if err != nil {
		t.Fatalf("unexpected submission id error: %v", err)
	}
	return id
}

func mustReviewerID(t *testing.T, value string) ReviewerID {
	t.Helper()
	id, err := NewReviewerID(value)
	if err != nil {
		t.Fatalf("unexpected reviewer id error: %v", err)
	}
	return id
}

func validScores() ScoreSet {
	return ScoreSet{Technical: 8, Artistic: 7, Theme: 9, Overall: 8}
}

func TestScoreSetValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		scores ScoreSet
	}{
		{"technical low", ScoreSet{Technical: 0, Artistic: 5, Theme: 5, Overall: 5}},
		{"artistic high", ScoreSet{Technical: 5, Artistic: 11, Theme: 5, Overall: 5}},
		{"theme low", ScoreSet{Technical: 5, Artistic: 5, Theme: -1, Overall: 5}},
		{"overall high", ScoreSet{Technical: 5, Artistic: 5, Theme: 5, Overall: 12}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.scores.Validate(); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRecordReviewCreatesRow(t *testing.T) {
	service, db := newTestService(t)
	seedCallAndSubmissions(t, db, testSubmission("s-1", "artist-a", testBaseSeconds))

	stored, err := service.RecordReview(context.Background(), ReviewRequest{
		SubmissionID: mustSubmissionID(t, "s-1"),
		ReviewerID:   mustReviewerID(t, "reviewer-1"),
		Scores:       validScores(),
		PublicNotes:  "Strong composition",
		PrivateNotes: "Shortlist",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.OverallScore != 8 {
		t.Fatalf("expected overall 8, got %d", stored.OverallScore)
	}

	var row Review
	if err := db.Where("submission_id = ? AND reviewer_id = ?", "s-1", "reviewer-1").Take(&row).Error; err != nil {
		t.Fatalf("failed to load review: %v", err)
	}
	if row.PublicNotes != "Strong composition" || row.PrivateNotes != "Shortlist" {
		t.Fatalf("unexpected notes: %q / %q", row.PublicNotes, row.PrivateNotes)
	}
}

func TestRecordReviewOverwritesOwnReview(t *testing.T) {
	service, db := newTestService(t)
	seedCallAndSubmissions(t, db, testSubmission("s-1", "artist-a", testBaseSeconds))
	submissionID := mustSubmissionID(t, "s-1")
	reviewerID := mustReviewerID(t, "reviewer-1")

	if _, err := service.RecordReview(context.Background(), ReviewRequest{
		SubmissionID: submissionID, ReviewerID: reviewerID, Scores: validScores(),
	}); err != nil {
		t.Fatalf("unexpected first review error: %v", err)
	}

	updated := ScoreSet{Technical: 4, Artistic: 4, Theme: 4, Overall: 4}
	if _, err := service.RecordReview(context.Background(), ReviewRequest{
		SubmissionID: submissionID, ReviewerID: reviewerID, Scores: updated, PublicNotes: "Revised",
	}); err != nil {
		t.Fatalf("unexpected overwrite error: %v", err)
	}

	var count int64
	if err := db.Model(&Review{}).Where("submission_id = ?", "s-1").Count(&count).Error; err != nil {
		t.Fatalf("failed to count reviews: %v", err)
	}
	if count != 1 {
		t.Fatalf("overwrite must not add a second row, got %d", count)
	}

	var row Review
	if err := db.Where("submission_id = ? AND reviewer_id = ?", "s-1", "reviewer-1").Take(&row).Error; err != nil {
		t.Fatalf("failed to load review: %v", err)
	}
	if row.OverallScore != 4 || row.PublicNotes != "Revised" {
		t.Fatalf("expected overwritten review, got %#v", row)
	}
}

func TestRecordReviewKeepsOtherReviewersIndependent(t *testing.T) {
	service, db := newTestService(t)
	seedCallAndSubmissions(t, db, testSubmission("s-1", "artist-a", testBaseSeconds))
	submissionID := mustSubmissionID(t, "s-1")

	if _, err := service.RecordReview(context.Background(), ReviewRequest{
		SubmissionID: submissionID, ReviewerID: mustReviewerID(t, "reviewer-1"), Scores: validScores(),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.RecordReview(context.Background(), ReviewRequest{
		SubmissionID: submissionID, ReviewerID: mustReviewerID(t, "reviewer-2"),
		Scores: ScoreSet{Technical: 6, Artistic: 6, Theme: 6, Overall: 6},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int64
	if err := db.Model(&Review{}).Where("submission_id = ?", "s-1").Count(&count).Error; err != nil {
		t.Fatalf("failed to count reviews: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two independent reviews, got %d", count)
	}
}

func TestRecordReviewRejectsUnknownSubmission(t *testing.T) {
	service, db := newTestService(t)
	seedCallAndSubmissions(t, db)

	_, err := service.RecordReview(context.Background(), ReviewRequest{
		SubmissionID: mustSubmissionID(t, "s-missing"),
		ReviewerID:   mustReviewerID(t, "reviewer-1"),
		Scores:       validScores(),
	})
	if !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}

func TestAggregateComputesPerDimensionMeans(t *testing.T) {
	service, db := newTestService(t)
	seedCallAndSubmissions(t, db, testSubmission("s-1", "artist-a", testBaseSeconds))
	submissionID := mustSubmissionID(t, "s-1")

	if _, err := service.RecordReview(context.Background(), ReviewRequest{
		SubmissionID: submissionID, ReviewerID: mustReviewerID(t, "reviewer-1"),
		Scores: ScoreSet{Technical: 8, Artistic: 6, Theme: 10, Overall: 9},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.RecordReview(context.Background(), ReviewRequest{
		SubmissionID: submissionID, ReviewerID: mustReviewerID(t, "reviewer-2"),
		Scores: ScoreSet{Technical: 6, Artistic: 7, Theme: 5, Overall: 6},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	aggregate, err := service.Aggregate(context.Background(), submissionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aggregate == nil {
		t.Fatalf("expected aggregate for reviewed submission")
	}
	if aggregate.Technical != 7 {
		t.Fatalf("expected technical mean 7, got %v", aggregate.Technical)
	}
	if aggregate.Artistic != 6.5 {
		t.Fatalf("expected artistic mean 6.5, got %v", aggregate.Artistic)
	}
	if aggregate.Theme != 7.5 {
		t.Fatalf("expected theme mean 7.5, got %v", aggregate.Theme)
	}
	if aggregate.Overall != 7.5 {
		t.Fatalf("expected overall mean 7.5, got %v", aggregate.Overall)
	}
	if aggregate.ReviewCount != 2 {
		t.Fatalf("expected review count 2, got %d", aggregate.ReviewCount)
	}
}

func TestAggregateWithoutReviewsIsNil(t *testing.T) {
	service, db := newTestService(t)
	seedCallAndSubmissions(t, db, testSubmission("s-1", "artist-a", testBaseSeconds))

	aggregate, err := service.Aggregate(context.Background(), mustSubmissionID(t, "s-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aggregate != nil {
		t.Fatalf("expected nil aggregate for unreviewed submission, got %#v", aggregate)
	}
}

func TestRankOrdersByOverallThenPromptness(t *testing.T) {
	service, db := newTestService(t)
	seedCallAndSubmissions(t, db,
		testSubmission("s-high", "artist-a", testBaseSeconds+30),
		testSubmission("s-tie-late", "artist-b", testBaseSeconds+20),
		testSubmission("s-tie-early", "artist-c", testBaseSeconds+10),
		testSubmission("s-unreviewed", "artist-d", testBaseSeconds),
	)

	reviewScores := map[string]int{
		"s-high":      9,
		"s-tie-late":  7,
		"s-tie-early": 7,
	}
	for submissionID, overall := range reviewScores {
		if _, err := service.RecordReview(context.Background(), ReviewRequest{
			SubmissionID: mustSubmissionID(t, submissionID),
			ReviewerID:   mustReviewerID(t, "reviewer-1"),
			Scores:       ScoreSet{Technical: overall, Artistic: overall, Theme: overall, Overall: overall},
		}); err != nil {
			t.Fatalf("unexpected review error for %s: %v", submissionID, err)
		}
	}

	ranking, err := service.Rank(context.Background(), submissions.CallID(testCallID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranking) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(ranking))
	}

	expectedOrder := []string{"s-high", "s-tie-early", "s-tie-late", "s-unreviewed"}
	for position, expected := range expectedOrder {
		if ranking[position].SubmissionID != expected {
			t.Fatalf("expected %s at position %d, got %s", expected, position, ranking[position].SubmissionID)
		}
	}
	if ranking[3].Aggregate != nil {
		t.Fatalf("unreviewed submission must carry a nil aggregate")
	}
}

func TestRankUnknownCall(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Rank(context.Background(), submissions.CallID("call-missing"))
	if !errors.Is(err, submissions.ErrCallNotFound) {
		t.Fatalf("expected ErrCallNotFound, got %v", err)
	}
}

func TestRankEmptyCall(t *testing.T) {
	service, db := newTestService(t)
	seedCallAndSubmissions(t, db)

	ranking, err := service.Rank(context.Background(), submissions.CallID(testCallID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranking) != 0 {
		t.Fatalf("expected empty ranking, got %d entries", len(ranking))
	}
}
