package models

type Room struct {
	BaseModel

	Name   string `gorm:"uniqueIndex;not null" json:"name"`
	Volume int    `gorm:"not null" json:"volume"`

	// Relationships
	Sensors       []Sensor       `gorm:"foreignKey:RoomID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"sensors"`
	Subscriptions []Subscription `gorm:"foreignKey:RoomID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
