package db

import (
	"fmt"

	types "github.com/agrobridge/backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Identity
		// =========================
		&types.User{},

		// =========================
		// Batch lifecycle
		// =========================
		&types.Batch{},
		&types.VerificationStage{},

		// =========================
		// Certification
		// =========================
		&types.QualityCertificate{},

		// =========================
		// Cold-chain telemetry
		// =========================
		&types.TemperatureReading{},

		// =========================
		// Ledger anchoring queue
		// =========================
		&types.AnchorSubmission{},
	)
}

// EnsureConstraints adds the constraints AutoMigrate cannot express.
func EnsureConstraints(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}

	// One active certificate per (batch, grade). Revoked certificates stay
	// queryable for audit and do not block reissue.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_certificate_active
		ON quality_certificate (batch_id, grade)
		WHERE revoked = false;
	`).Error; err != nil {
		return fmt.Errorf("create idx_certificate_active: %w", err)
	}

	return nil
}
