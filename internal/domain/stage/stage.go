package stage

import (
	"time"

	"github.com/google/uuid"
)

// StageType is one checkpoint in the fixed verification sequence.
type StageType string

const (
	TypeHarvest          StageType = "HARVEST"
	TypeCollection       StageType = "COLLECTION"
	TypeProcessing       StageType = "PROCESSING"
	TypePackaging        StageType = "PACKAGING"
	TypeQualityCheck     StageType = "QUALITY_CHECK"
	TypeExport           StageType = "EXPORT"
	TypeCustomsClearance StageType = "CUSTOMS_CLEARANCE"
	TypeDelivery         StageType = "DELIVERY"
)

// Order is the fixed total order over stage types. GetBatchStages and all
// eligibility checks sort by this order, never by creation time.
var Order = []StageType{
	TypeHarvest,
	TypeCollection,
	TypeProcessing,
	TypePackaging,
	TypeQualityCheck,
	TypeExport,
	TypeCustomsClearance,
	TypeDelivery,
}

var rank = func() map[StageType]int {
	m := make(map[StageType]int, len(Order))
	for i, t := range Order {
		m[t] = i
	}
	return m
}()

// Rank returns the position of t in the fixed order, or -1 for an unknown type.
func Rank(t StageType) int {
	if r, ok := rank[t]; ok {
		return r
	}
	return -1
}

// Valid reports whether t is a member of the fixed order.
func Valid(t StageType) bool { return Rank(t) >= 0 }

const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusRejected   = "REJECTED"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// MaxAttempts caps retries per stage type: one rejection may be reopened
// once; a second rejection is terminal for that stage.
const MaxAttempts = 2

// VerificationStage is one checkpoint record. At most one row exists per
// (batch_id, stage_type); the unique index is the arbiter under concurrency.
// A non-null AnchorRef makes the row immutable.
type VerificationStage struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BatchID      uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_stage_batch_type;column:batch_id" json:"batch_id"`
	StageType    StageType  `gorm:"not null;uniqueIndex:idx_stage_batch_type;column:stage_type" json:"stage_type"`
	Status       string     `gorm:"not null;default:PENDING;column:status" json:"status"`
	ActorID      uuid.UUID  `gorm:"type:uuid;not null;column:actor_id" json:"actor_id"`
	ActorRole    string     `gorm:"column:actor_role" json:"actor_role"`
	LocationName string     `gorm:"column:location_name" json:"location_name"`
	Lat          *float64   `gorm:"column:lat" json:"lat,omitempty"`
	Lon          *float64   `gorm:"column:lon" json:"lon,omitempty"`
	Notes        string     `gorm:"column:notes" json:"notes"`
	EvidenceURL  string     `gorm:"column:evidence_url" json:"evidence_url"`
	Attempts     int        `gorm:"not null;default:1;column:attempts" json:"attempts"`
	OutOfOrder   bool       `gorm:"not null;default:false;column:out_of_order" json:"out_of_order"`
	AnchorRef    *string    `gorm:"column:anchor_ref" json:"anchor_ref,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;default:now()" json:"updated_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (VerificationStage) TableName() string { return "verification_stage" }

// Anchored reports whether the stage carries a confirmed ledger reference
// and is therefore append-only.
func (s *VerificationStage) Anchored() bool {
	return s.AnchorRef != nil && *s.AnchorRef != ""
}
