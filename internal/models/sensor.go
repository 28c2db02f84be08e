package models

type Sensor struct {
	BaseModel

	FriendlyName      string `gorm:"uniqueIndex;not null" json:"friendly_name"`
	UnitOfMeasurement string `gorm:"not null" json:"unit_of_measurement"`
	RoomID            *uint  `gorm:"index" json:"room_id"`

	// Relationships
	Room *Room `gorm:"foreignKey:RoomID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
}
