package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// TemperatureReading is one cold-chain telemetry sample. Append-only: rows
// are never updated once written; ordering is by Timestamp.
type TemperatureReading struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BatchID   uuid.UUID `gorm:"type:uuid;not null;index:idx_reading_batch_ts;column:batch_id" json:"batch_id"`
	Timestamp time.Time `gorm:"not null;index:idx_reading_batch_ts;column:timestamp" json:"timestamp"`
	ValueC    float64   `gorm:"not null;column:value_c" json:"value_c"`
	Humidity  *float64  `gorm:"column:humidity" json:"humidity,omitempty"`
	Lat       *float64  `gorm:"column:lat" json:"lat,omitempty"`
	Lon       *float64  `gorm:"column:lon" json:"lon,omitempty"`
	DeviceID  string    `gorm:"column:device_id" json:"device_id"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (TemperatureReading) TableName() string { return "temperature_reading" }
