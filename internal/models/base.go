package models

import "time"

// BaseModel replaces gorm.Model without soft deletes; rows are removed for real
// so unique columns can be reused.
type BaseModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
