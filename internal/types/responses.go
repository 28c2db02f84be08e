package types

import (
	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/models"
)

// UserResponse is the public view of a user; the password digest never leaves the store.
type UserResponse struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      auth.Role `json:"role,omitempty"`
}

func NewUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

// NewAdminUserResponse also exposes the role tier.
func NewAdminUserResponse(user models.User) UserResponse {
	response := NewUserResponse(user)
	response.Role = user.Role

	return response
}

// RoomSensor is the sensor summary nested under a room.
type RoomSensor struct {
	ID                uint   `json:"id"`
	FriendlyName      string `json:"friendly_name"`
	UnitOfMeasurement string `json:"unit_of_measurement"`
}

type RoomResponse struct {
	ID      uint         `json:"id"`
	Name    string       `json:"name"`
	Volume  int          `json:"volume"`
	Sensors []RoomSensor `json:"sensors"`
}

func NewRoomResponse(room models.Room) RoomResponse {
	sensors := make([]RoomSensor, 0, len(room.Sensors))

	for _, sensor := range room.Sensors {
		sensors = append(sensors, RoomSensor{
			ID:                sensor.ID,
			FriendlyName:      sensor.FriendlyName,
			UnitOfMeasurement: sensor.UnitOfMeasurement,
		})
	}

	return RoomResponse{
		ID:      room.ID,
		Name:    room.Name,
		Volume:  room.Volume,
		Sensors: sensors,
	}
}

// Pagination is embedded in every list query.
type Pagination struct {
	Take int `form:"take,default=20" binding:"min=1,max=100"`
	Skip int `form:"skip,default=0" binding:"min=0"`
}
