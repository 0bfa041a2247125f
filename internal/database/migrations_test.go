package database

import (
	"path/filepath"
	"testing"

	"github.com/atelierworks/opencall-backend/internal/submissions"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsRepairsFirstAttemptPaymentStatus(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&submissions.Submission{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	rows := []submissions.Submission{
		{
			SubmissionID:       "s-legacy",
			OpenCallID:         "call-1",
			ArtistID:           "artist-a",
			AttemptIndex:       1,
			PaymentStatus:      string(submissions.PaymentStatusUnpaid),
			Title:              "Legacy import",
			MediaRefsJSON:      `["https://blobs.example/a.jpg"]`,
			SubmittedAtSeconds: 1750000000,
		},
		{
			SubmissionID:       "s-paid",
			OpenCallID:         "call-1",
			ArtistID:           "artist-a",
			AttemptIndex:       2,
			PaymentStatus:      string(submissions.PaymentStatusPaid),
			Title:              "Second attempt",
			MediaRefsJSON:      `["https://blobs.example/b.jpg"]`,
			SubmittedAtSeconds: 1750000100,
		},
	}
	for _, row := range rows {
		if err := database.Create(&row).Error; err != nil {
			testContext.Fatalf("failed to insert submission: %v", err)
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var repaired submissions.Submission
	if err := database.Where("submission_id = ?", "s-legacy").Take(&repaired).Error; err != nil {
		testContext.Fatalf("failed to reload submission: %v", err)
	}
	if repaired.PaymentStatus != string(submissions.PaymentStatusFree) {
		testContext.Fatalf("expected first attempt repaired to free, got %s", repaired.PaymentStatus)
	}

	var untouched submissions.Submission
	if err := database.Where("submission_id = ?", "s-paid").Take(&untouched).Error; err != nil {
		testContext.Fatalf("failed to reload submission: %v", err)
	}
	if untouched.PaymentStatus != string(submissions.PaymentStatusPaid) {
		testContext.Fatalf("later attempts must keep their payment status, got %s", untouched.PaymentStatus)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationRepairFirstAttemptFree).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}

	// Re-running is a no-op once the record exists.
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to re-apply migrations: %v", err)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}

func TestOpenSQLiteMigratesSchema(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "schema.db")

	database, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	for _, table := range []string{"open_calls", "submissions", "reviews", "curation_actions", "db_migrations"} {
		if !database.Migrator().HasTable(table) {
			testContext.Fatalf("expected table %s to exist", table)
		}
	}
}
