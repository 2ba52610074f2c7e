package ledgeranchor

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusQueued     = "queued"
	StatusSubmitting = "submitting"
	StatusSubmitted  = "submitted"
	StatusConfirmed  = "confirmed"
	StatusFailed     = "failed"
)

// AnchorSubmission is the queued unit of work for the anchoring worker.
// A row is enqueued in the same transaction that creates a stage; the worker
// claims it, submits the payload to the ledger adapter and records the
// submission id. Confirmation arrives out-of-band and flips the row (and the
// stage's anchor_ref) exactly once.
type AnchorSubmission struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StageID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex;column:stage_id" json:"stage_id"`
	BatchID      uuid.UUID      `gorm:"type:uuid;not null;index;column:batch_id" json:"batch_id"`
	Payload      datatypes.JSON `gorm:"type:jsonb;not null;column:payload" json:"payload"`
	PayloadHash  string         `gorm:"not null;column:payload_hash" json:"payload_hash"`
	Status       string         `gorm:"not null;default:queued;index;column:status" json:"status"`
	SubmissionID string         `gorm:"index;column:submission_id" json:"submission_id,omitempty"`
	AnchorRef    string         `gorm:"column:anchor_ref" json:"anchor_ref,omitempty"`
	Attempts     int            `gorm:"not null;default:0;column:attempts" json:"attempts"`
	LastError    string         `gorm:"column:last_error" json:"last_error,omitempty"`
	LastErrorAt  *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt     *time.Time     `gorm:"column:locked_at" json:"locked_at,omitempty"`
	ConfirmedAt  *time.Time     `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (AnchorSubmission) TableName() string { return "anchor_submission" }
