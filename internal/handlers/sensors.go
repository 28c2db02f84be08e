package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/models"
	"github.com/breathe-dev/breathe/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SensorListQuery struct {
	ID           uint   `form:"id"`
	FriendlyName string `form:"friendly_name"`
	RoomID       uint   `form:"room_id"`
	types.Pagination
}

type CreateSensorRequest struct {
	FriendlyName      string `json:"friendly_name" binding:"required,min=1,max=100"`
	UnitOfMeasurement string `json:"unit_of_measurement" binding:"required,min=1,max=20"`
	RoomID            *uint  `json:"room_id" binding:"omitempty,min=1"`
}

// UpdateSensorRequest leaves the room alone unless room_id or detach_room is sent.
type UpdateSensorRequest struct {
	ID                uint   `json:"id" binding:"required"`
	FriendlyName      string `json:"friendly_name" binding:"required,min=1,max=100"`
	UnitOfMeasurement string `json:"unit_of_measurement" binding:"required,min=1,max=20"`
	RoomID            *uint  `json:"room_id" binding:"omitempty,min=1"`
	DetachRoom        bool   `json:"detach_room"`
}

type DeleteSensorRequest struct {
	ID    uint `json:"id" binding:"required"`
	Force bool `json:"force"`
}

func (h *Handler) ListSensors(ctx *gin.Context) {
	h.listSensors(ctx, false)
}

func (h *Handler) AdminListSensors(ctx *gin.Context) {
	h.listSensors(ctx, true)
}

// listSensors applies every given filter. Admins match friendly_name exactly.
func (h *Handler) listSensors(ctx *gin.Context, exactName bool) {
	var query SensorListQuery

	if !bindQuery(ctx, &query) {
		return
	}

	q := h.store.DB.WithContext(ctx.Request.Context())

	if query.ID != 0 {
		q = q.Where("id = ?", query.ID)
	}

	if query.FriendlyName != "" {
		if exactName {
			q = q.Where("friendly_name = ?", query.FriendlyName)
		} else {
			q = q.Where("friendly_name LIKE ? ESCAPE '!'", containsPattern(query.FriendlyName))
		}
	}

	if query.RoomID != 0 {
		q = q.Where("room_id = ?", query.RoomID)
	}

	sensors := []models.Sensor{}

	if err := q.Order("id").Limit(query.Take).Offset(query.Skip).Find(&sensors).Error; err != nil {
		h.internalError(ctx, "listing sensors failed", err)
		return
	}

	if len(sensors) == 0 {
		respondMessage(ctx, http.StatusNotFound, "No sensors found")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"sensors": sensors, "take": query.Take})
}

func (h *Handler) CreateSensor(ctx *gin.Context) {
	var req CreateSensorRequest

	if !bindJSON(ctx, &req) {
		return
	}

	sensor := models.Sensor{
		FriendlyName:      strings.TrimSpace(req.FriendlyName),
		UnitOfMeasurement: req.UnitOfMeasurement,
		RoomID:            req.RoomID,
	}

	if !h.checkSensorWritable(ctx, sensor) {
		return
	}

	if err := h.store.DB.WithContext(ctx.Request.Context()).Create(&sensor).Error; err != nil {
		if db.IsUniqueViolation(err) {
			respondMessage(ctx, http.StatusConflict, "Sensor already exists")
			return
		}

		h.internalError(ctx, "creating sensor failed", err)
		return
	}

	h.logger.Info("sensor created", zap.Uint("sensor_id", sensor.ID), zap.String("friendly_name", sensor.FriendlyName))

	ctx.JSON(http.StatusCreated, gin.H{"sensor": sensor})
}

func (h *Handler) UpdateSensor(ctx *gin.Context) {
	var req UpdateSensorRequest

	if !bindJSON(ctx, &req) {
		return
	}

	sensor, ok := h.findSensor(ctx, req.ID)

	if !ok {
		return
	}

	if req.RoomID != nil && req.DetachRoom {
		respondMessage(ctx, http.StatusBadRequest, "room_id and detach_room cannot be combined")
		return
	}

	sensor.FriendlyName = strings.TrimSpace(req.FriendlyName)
	sensor.UnitOfMeasurement = req.UnitOfMeasurement

	columns := []any{"unit_of_measurement"}

	switch {
	case req.RoomID != nil:
		sensor.RoomID = req.RoomID
		columns = append(columns, "room_id")
	case req.DetachRoom:
		sensor.RoomID = nil
		columns = append(columns, "room_id")
	}

	if !h.checkSensorWritable(ctx, sensor) {
		return
	}

	err := h.store.DB.WithContext(ctx.Request.Context()).
		Model(&sensor).
		Select("friendly_name", columns...).
		Updates(&sensor).Error

	if err != nil {
		if db.IsUniqueViolation(err) {
			respondMessage(ctx, http.StatusConflict, "Sensor already exists")
			return
		}

		h.internalError(ctx, "updating sensor failed", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"sensor": sensor})
}

func (h *Handler) DeleteSensor(ctx *gin.Context) {
	var req DeleteSensorRequest

	if !bindJSON(ctx, &req) {
		return
	}

	sensor, ok := h.findSensor(ctx, req.ID)

	if !ok {
		return
	}

	var historyCount int64

	err := h.store.DB.WithContext(ctx.Request.Context()).
		Model(&models.SensorHistory{}).
		Where("sensor_id = ?", sensor.ID).
		Count(&historyCount).Error

	if err != nil {
		h.internalError(ctx, "counting sensor history failed", err)
		return
	}

	if historyCount > 0 && !req.Force {
		ctx.JSON(http.StatusConflict, gin.H{
			"message":       "Sensor has recorded history, set force to delete it",
			"history_count": historyCount,
		})
		return
	}

	err = h.store.DB.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sensor_id = ?", sensor.ID).Delete(&models.SensorHistory{}).Error; err != nil {
			return fmt.Errorf("deleting history of sensor %d: %w", sensor.ID, err)
		}

		return tx.Delete(&sensor).Error
	})

	if err != nil {
		h.internalError(ctx, "deleting sensor failed", err)
		return
	}

	h.logger.Info("sensor deleted", zap.Uint("sensor_id", sensor.ID), zap.Int64("deleted_history", historyCount))

	ctx.JSON(http.StatusOK, gin.H{
		"message":         "Sensor deleted successfully",
		"deleted_history": historyCount,
	})
}

func (h *Handler) findSensor(ctx *gin.Context, id uint) (models.Sensor, bool) {
	var sensor models.Sensor

	if err := h.store.DB.WithContext(ctx.Request.Context()).First(&sensor, id).Error; err != nil {
		if db.IsNotFound(err) {
			respondMessage(ctx, http.StatusNotFound, "Sensor not found")
			return sensor, false
		}

		h.internalError(ctx, "loading sensor failed", err)
		return sensor, false
	}

	return sensor, true
}

// checkSensorWritable rejects a taken friendly name or a missing room.
func (h *Handler) checkSensorWritable(ctx *gin.Context, sensor models.Sensor) bool {
	taken, err := h.sensorNameTaken(ctx.Request.Context(), sensor.FriendlyName, sensor.ID)

	if err != nil {
		h.internalError(ctx, "checking sensor name failed", err)
		return false
	}

	if taken {
		respondMessage(ctx, http.StatusConflict, "Sensor already exists")
		return false
	}

	if sensor.RoomID != nil {
		if _, ok := h.findRoom(ctx, *sensor.RoomID); !ok {
			return false
		}
	}

	return true
}

func (h *Handler) sensorNameTaken(ctx context.Context, name string, exceptID uint) (bool, error) {
	var count int64

	err := h.store.DB.WithContext(ctx).
		Model(&models.Sensor{}).
		Where("friendly_name = ? AND id <> ?", name, exceptID).
		Count(&count).Error

	return count > 0, err
}
