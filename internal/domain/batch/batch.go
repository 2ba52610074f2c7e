package batch

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusActive    = "ACTIVE"
	StatusFinalized = "FINALIZED"
	StatusFlagged   = "FLAGGED"
)

// Batch is the identity record for a physical produce lot. Created once at
// intake; afterwards only CurrentStageType, Status and QRCode mutate.
type Batch struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProducerID       uuid.UUID      `gorm:"type:uuid;not null;index;column:producer_id" json:"producer_id"`
	Variety          string         `gorm:"not null;column:variety" json:"variety"`
	Origin           string         `gorm:"not null;column:origin" json:"origin"`
	WeightKg         float64        `gorm:"not null;column:weight_kg" json:"weight_kg"`
	HarvestDate      time.Time      `gorm:"not null;column:harvest_date" json:"harvest_date"`
	CurrentStageType string         `gorm:"column:current_stage_type" json:"current_stage_type"`
	Status           string         `gorm:"not null;default:ACTIVE;column:status" json:"status"`
	GenesisHash      string         `gorm:"not null;column:genesis_hash" json:"genesis_hash"`
	QRCode           string         `gorm:"column:qr_code" json:"qr_code"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Batch) TableName() string { return "batch" }
