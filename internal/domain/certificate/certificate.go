package certificate

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Grade of a quality certificate.
type Grade string

const (
	GradeStandard Grade = "STANDARD"
	GradePremium  Grade = "PREMIUM"
	GradeOrganic  Grade = "ORGANIC"
)

func ValidGrade(g Grade) bool {
	switch g {
	case GradeStandard, GradePremium, GradeOrganic:
		return true
	}
	return false
}

// QualityCertificate binds a grade to the batch's verified stage state via
// PayloadHash. Never mutated after issuance except Revoked. IssuedSnapshot
// keeps the stage snapshot as of issuance for audit; verification recomputes
// the hash against live stage state.
type QualityCertificate struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BatchID        uuid.UUID      `gorm:"type:uuid;not null;index;column:batch_id" json:"batch_id"`
	Grade          Grade          `gorm:"not null;column:grade" json:"grade"`
	CertifyingBody string         `gorm:"not null;column:certifying_body" json:"certifying_body"`
	IssuedBy       uuid.UUID      `gorm:"type:uuid;not null;column:issued_by" json:"issued_by"`
	IssuedAt       time.Time      `gorm:"not null;column:issued_at" json:"issued_at"`
	ExpiresAt      time.Time      `gorm:"not null;column:expires_at" json:"expires_at"`
	PayloadHash    string         `gorm:"not null;column:payload_hash" json:"payload_hash"`
	IssuedSnapshot datatypes.JSON `gorm:"type:jsonb;column:issued_snapshot" json:"issued_snapshot"`
	Revoked        bool           `gorm:"not null;default:false;column:revoked" json:"revoked"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (QualityCertificate) TableName() string { return "quality_certificate" }

// VerificationResult is the structured outcome of VerifyCertificate.
type VerificationResult struct {
	IsValid     bool                `json:"is_valid"`
	IsExpired   bool                `json:"is_expired,omitempty"`
	IsRevoked   bool                `json:"is_revoked,omitempty"`
	Message     string              `json:"message,omitempty"`
	Certificate *QualityCertificate `json:"certificate,omitempty"`
}
