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

type RoomListQuery struct {
	RoomID uint   `form:"room_id"`
	Name   string `form:"name"`
	types.Pagination
}

type CreateRoomRequest struct {
	Name   string `json:"name" binding:"required,min=1,max=100"`
	Volume *int   `json:"volume" binding:"required,min=0,max=10000"`
}

type UpdateRoomRequest struct {
	RoomID uint   `json:"room_id" binding:"required"`
	Name   string `json:"name" binding:"required,min=1,max=100"`
	Volume *int   `json:"volume" binding:"required,min=0,max=10000"`
}

type DeleteRoomRequest struct {
	RoomID uint `json:"room_id" binding:"required"`
}

func withSensors(tx *gorm.DB) *gorm.DB {
	return tx.Order("sensors.id")
}

func (h *Handler) ListRooms(ctx *gin.Context) {
	var query RoomListQuery

	if !bindQuery(ctx, &query) {
		return
	}

	q := h.store.DB.WithContext(ctx.Request.Context()).Preload("Sensors", withSensors)

	if query.RoomID != 0 || query.Name != "" {
		var room models.Room

		if query.RoomID != 0 {
			q = q.Where("id = ?", query.RoomID)
		}

		if query.Name != "" {
			q = q.Where("name = ?", query.Name)
		}

		if err := q.First(&room).Error; err != nil {
			if db.IsNotFound(err) {
				respondMessage(ctx, http.StatusNotFound, "Room not found")
				return
			}

			h.internalError(ctx, "loading room failed", err)
			return
		}

		ctx.JSON(http.StatusOK, types.NewRoomResponse(room))
		return
	}

	rooms := []models.Room{}

	if err := q.Order("id").Limit(query.Take).Offset(query.Skip).Find(&rooms).Error; err != nil {
		h.internalError(ctx, "listing rooms failed", err)
		return
	}

	response := make([]types.RoomResponse, 0, len(rooms))

	for _, room := range rooms {
		response = append(response, types.NewRoomResponse(room))
	}

	ctx.JSON(http.StatusOK, response)
}

func (h *Handler) CreateRoom(ctx *gin.Context) {
	var req CreateRoomRequest

	if !bindJSON(ctx, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)

	taken, err := h.roomNameTaken(ctx.Request.Context(), name, 0)

	if err != nil {
		h.internalError(ctx, "checking room name failed", err)
		return
	}

	if taken {
		respondMessage(ctx, http.StatusConflict, "Room already exists")
		return
	}

	room := models.Room{Name: name, Volume: *req.Volume}

	if err := h.store.DB.WithContext(ctx.Request.Context()).Create(&room).Error; err != nil {
		if db.IsUniqueViolation(err) {
			respondMessage(ctx, http.StatusConflict, "Room already exists")
			return
		}

		h.internalError(ctx, "creating room failed", err)
		return
	}

	h.logger.Info("room created", zap.Uint("room_id", room.ID), zap.String("name", room.Name))

	ctx.JSON(http.StatusCreated, gin.H{"id": room.ID})
}

func (h *Handler) UpdateRoom(ctx *gin.Context) {
	var req UpdateRoomRequest

	if !bindJSON(ctx, &req) {
		return
	}

	room, ok := h.findRoom(ctx, req.RoomID)

	if !ok {
		return
	}

	name := strings.TrimSpace(req.Name)

	taken, err := h.roomNameTaken(ctx.Request.Context(), name, room.ID)

	if err != nil {
		h.internalError(ctx, "checking room name failed", err)
		return
	}

	if taken {
		respondMessage(ctx, http.StatusConflict, "Room already exists")
		return
	}

	err = h.store.DB.WithContext(ctx.Request.Context()).
		Model(&room).
		Updates(map[string]any{"name": name, "volume": *req.Volume}).Error

	if err != nil {
		if db.IsUniqueViolation(err) {
			respondMessage(ctx, http.StatusConflict, "Room already exists")
			return
		}

		h.internalError(ctx, "updating room failed", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *Handler) DeleteRoom(ctx *gin.Context) {
	var req DeleteRoomRequest

	if !bindJSON(ctx, &req) {
		return
	}

	room, ok := h.findRoom(ctx, req.RoomID)

	if !ok {
		return
	}

	err := h.store.DB.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Sensor{}).Where("room_id = ?", room.ID).Update("room_id", nil).Error; err != nil {
			return fmt.Errorf("detaching sensors: %w", err)
		}

		if err := tx.Where("room_id = ?", room.ID).Delete(&models.Subscription{}).Error; err != nil {
			return fmt.Errorf("deleting subscriptions: %w", err)
		}

		return tx.Delete(&room).Error
	})

	if err != nil {
		h.internalError(ctx, "deleting room failed", err)
		return
	}

	h.logger.Info("room deleted", zap.Uint("room_id", room.ID))

	ctx.Status(http.StatusNoContent)
}

func (h *Handler) findRoom(ctx *gin.Context, id uint) (models.Room, bool) {
	var room models.Room

	if err := h.store.DB.WithContext(ctx.Request.Context()).First(&room, id).Error; err != nil {
		if db.IsNotFound(err) {
			respondMessage(ctx, http.StatusNotFound, "Room not found")
			return room, false
		}

		h.internalError(ctx, "loading room failed", err)
		return room, false
	}

	return room, true
}

func (h *Handler) roomNameTaken(ctx context.Context, name string, exceptID uint) (bool, error) {
	var count int64

	err := h.store.DB.WithContext(ctx).
		Model(&models.Room{}).
		Where("name = ? AND id <> ?", name, exceptID).
		Count(&count).Error

	return count > 0, err
}
