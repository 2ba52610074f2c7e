package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleProducer    = "PRODUCER"
	RoleCooperative = "COOPERATIVE"
	RoleProcessor   = "PROCESSOR"
	RoleExporter    = "EXPORTER"
	RoleInspector   = "INSPECTOR"
	RoleAdmin       = "ADMIN"
)

// User is an actor in the verification chain. ADMIN is the elevated role:
// it may create stages out of order and update stages it did not create.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email     string         `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password  string         `gorm:"not null;column:password" json:"-"`
	FullName  string         `gorm:"not null;column:full_name" json:"full_name"`
	Role      string         `gorm:"not null;default:PRODUCER;column:role" json:"role"`
	Org       string         `gorm:"column:org" json:"org"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "app_user" }

// ValidRole reports whether r is a known role value.
func ValidRole(r string) bool {
	switch r {
	case RoleProducer, RoleCooperative, RoleProcessor, RoleExporter, RoleInspector, RoleAdmin:
		return true
	}
	return false
}
