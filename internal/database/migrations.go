package database

import (
	"errors"
	"time"

	"github.com/atelierworks/opencall-backend/internal/submissions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRepairFirstAttemptFree = "2026-07-14_repair_first_attempt_payment_status"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairFirstAttemptFree, apply: repairFirstAttemptPaymentStatus},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// First attempts never carry a fee; rows imported from the legacy system
// sometimes arrived with payment_status left as unpaid.
func repairFirstAttemptPaymentStatus(db *gorm.DB) error {
	return db.Model(&submissions.Submission{}).
		Where("attempt_index = 1 AND payment_status <> ?", string(submissions.PaymentStatusFree)).
		Update("payment_status", string(submissions.PaymentStatusFree)).Error
}
