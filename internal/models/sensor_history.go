package models

import "time"

// SensorHistory is one reading. RecordedAt is stored in UTC.
type SensorHistory struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	SensorID   uint      `gorm:"not null;index:idx_history_sensor_time" json:"sensor_id"`
	State      float64   `gorm:"not null" json:"state"`
	RecordedAt time.Time `gorm:"not null;index:idx_history_sensor_time" json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at"`

	// Relationships
	Sensor Sensor `gorm:"foreignKey:SensorID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}
