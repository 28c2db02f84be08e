package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	AlertStatusSent      = "sent"
	AlertStatusFailed    = "failed"
	AlertStatusAbandoned = "abandoned"
)

// Alert records one notification about a high reading and its delivery state.
type Alert struct {
	BaseModel

	SensorID   uint           `gorm:"not null;index" json:"sensor_id"`
	RoomID     uint           `gorm:"not null;index" json:"room_id"`
	RoomName   string         `gorm:"not null" json:"room_name"`
	State      float64        `gorm:"not null" json:"state"`
	Recipients datatypes.JSON `gorm:"not null" json:"recipients"`
	Status     string         `gorm:"not null;index" json:"status"`
	Attempts   int            `gorm:"not null;default:0" json:"attempts"`
	LastError  string         `json:"last_error,omitempty"`
	SentAt     *time.Time     `json:"sent_at,omitempty"`
}

func (a *Alert) SetRecipients(emails []string) error {
	raw, err := json.Marshal(emails)

	if err != nil {
		return err
	}

	a.Recipients = datatypes.JSON(raw)

	return nil
}

func (a *Alert) Emails() ([]string, error) {
	var emails []string

	if len(a.Recipients) == 0 {
		return emails, nil
	}

	if err := json.Unmarshal(a.Recipients, &emails); err != nil {
		return nil, err
	}

	return emails, nil
}
