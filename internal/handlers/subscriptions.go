package handlers

import (
	"net/http"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/models"
	"github.com/breathe-dev/breathe/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SubscriptionListQuery struct {
	UserID uint `form:"user_id"`
	RoomID uint `form:"room_id"`
	types.Pagination
}

type SubscriptionRequest struct {
	UserID uint `json:"user_id" binding:"required"`
	RoomID uint `json:"room_id" binding:"required"`
}

func (h *Handler) ListSubscriptions(ctx *gin.Context) {
	var query SubscriptionListQuery

	if !bindQuery(ctx, &query) {
		return
	}

	q := h.store.DB.WithContext(ctx.Request.Context())

	if query.UserID != 0 {
		q = q.Where("user_id = ?", query.UserID)
	}

	if query.RoomID != 0 {
		q = q.Where("room_id = ?", query.RoomID)
	}

	subscriptions := []models.Subscription{}

	if err := q.Order("id").Limit(query.Take).Offset(query.Skip).Find(&subscriptions).Error; err != nil {
		h.internalError(ctx, "listing subscriptions failed", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"subscriptions": subscriptions})
}

func (h *Handler) CreateSubscription(ctx *gin.Context) {
	var req SubscriptionRequest

	if !bindJSON(ctx, &req) {
		return
	}

	if _, ok := h.findUser(ctx, req.UserID); !ok {
		return
	}

	if _, ok := h.findRoom(ctx, req.RoomID); !ok {
		return
	}

	subscription := models.Subscription{UserID: req.UserID, RoomID: req.RoomID}

	if err := h.store.DB.WithContext(ctx.Request.Context()).Create(&subscription).Error; err != nil {
		if db.IsUniqueViolation(err) {
			respondMessage(ctx, http.StatusConflict, "Subscription already exists")
			return
		}

		h.internalError(ctx, "creating subscription failed", err)
		return
	}

	h.logger.Info("subscription created", zap.Uint("user_id", req.UserID), zap.Uint("room_id", req.RoomID))

	ctx.JSON(http.StatusCreated, gin.H{"subscription": subscription})
}

func (h *Handler) DeleteSubscription(ctx *gin.Context) {
	var req SubscriptionRequest

	if !bindJSON(ctx, &req) {
		return
	}

	err := h.store.DB.WithContext(ctx.Request.Context()).
		Where("user_id = ? AND room_id = ?", req.UserID, req.RoomID).
		Delete(&models.Subscription{}).Error

	if err != nil {
		h.internalError(ctx, "deleting subscription failed", err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
