package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/models"
	"github.com/breathe-dev/breathe/internal/types"
	"github.com/breathe-dev/breathe/internal/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type UserListQuery struct {
	Username string `form:"username"`
	types.Pagination
}

type UpdateUserRequest struct {
	Username  *string `json:"username" binding:"omitempty,min=3,max=30"`
	Email     *string `json:"email" binding:"omitempty,email"`
	FirstName *string `json:"first_name" binding:"omitempty,min=1,max=50"`
	LastName  *string `json:"last_name" binding:"omitempty,min=1,max=50"`
	Password  *string `json:"password" binding:"omitempty,min=8,max=100"`
}

func (h *Handler) ListUsers(ctx *gin.Context) {
	var query UserListQuery

	if !bindQuery(ctx, &query) {
		return
	}

	users := []models.User{}

	q := h.store.DB.WithContext(ctx.Request.Context())

	if query.Username != "" {
		q = q.Where("username LIKE ? ESCAPE '!'", containsPattern(query.Username))
	}

	if err := q.Order("id").Limit(query.Take).Offset(query.Skip).Find(&users).Error; err != nil {
		h.internalError(ctx, "listing users failed", err)
		return
	}

	response := make([]types.UserResponse, 0, len(users))

	for _, user := range users {
		response = append(response, types.NewUserResponse(user))
	}

	ctx.JSON(http.StatusOK, response)
}

func (h *Handler) GetMe(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		respondMessage(ctx, http.StatusUnauthorized, err.Error())
		return
	}

	user, ok := h.findUser(ctx, userID)

	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, types.NewUserResponse(user))
}

func (h *Handler) UpdateMe(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		respondMessage(ctx, http.StatusUnauthorized, err.Error())
		return
	}

	var req UpdateUserRequest

	if !bindJSON(ctx, &req) {
		return
	}

	user, ok := h.findUser(ctx, userID)

	if !ok {
		return
	}

	if !h.applyUserUpdate(ctx, &user, req) {
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *Handler) DeleteMe(ctx *gin.Context) {
	userID, err := utils.GetCurrentUserID(ctx)

	if err != nil {
		respondMessage(ctx, http.StatusUnauthorized, err.Error())
		return
	}

	if _, ok := h.findUser(ctx, userID); !ok {
		return
	}

	if err := deleteUser(ctx.Request.Context(), h.store, userID); err != nil {
		h.internalError(ctx, "deleting user failed", err)
		return
	}

	h.setTokenCookie(ctx, "", -1)

	ctx.Status(http.StatusNoContent)
}

// findUser writes a 404 or 500 itself when it returns false.
func (h *Handler) findUser(ctx *gin.Context, id uint) (models.User, bool) {
	var user models.User

	if err := h.store.DB.WithContext(ctx.Request.Context()).First(&user, id).Error; err != nil {
		if db.IsNotFound(err) {
			respondMessage(ctx, http.StatusNotFound, "User not found")
			return user, false
		}

		h.internalError(ctx, "loading user failed", err)
		return user, false
	}

	return user, true
}

// applyUserUpdate saves the fields present in req onto user.
func (h *Handler) applyUserUpdate(ctx *gin.Context, user *models.User, req UpdateUserRequest) bool {
	var email, username string

	if req.Email != nil {
		email = normalizeEmail(*req.Email)
	}

	if req.Username != nil {
		username = strings.TrimSpace(*req.Username)
	}

	if msg, ok := h.checkIdentityFree(ctx, email, username, user.ID, "Email already used.", "Username already used."); !ok {
		if msg != "" {
			respondMessage(ctx, http.StatusBadRequest, msg)
		}
		return false
	}

	if email != "" {
		user.Email = email
	}

	if username != "" {
		user.Username = username
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}

	if req.LastName != nil {
		user.LastName = *req.LastName
	}

	if req.Password != nil {
		digest, err := auth.HashPassword(*req.Password)

		if err != nil {
			h.internalError(ctx, "hashing password failed", err)
			return false
		}

		user.Password = digest
	}

	if err := h.store.DB.WithContext(ctx.Request.Context()).Save(user).Error; err != nil {
		if db.IsUniqueViolation(err) {
			h.respondIdentityConflict(ctx, email, username, user.ID, "Email already used.", "Username already used.")
			return false
		}

		h.internalError(ctx, "updating user failed", err)
		return false
	}

	h.logger.Info("user updated", zap.Uint("user_id", user.ID))

	return true
}

func deleteUser(ctx context.Context, store *db.Store, userID uint) error {
	return store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.Subscription{}).Error; err != nil {
			return fmt.Errorf("deleting subscriptions of user %d: %w", userID, err)
		}

		if err := tx.Delete(&models.User{}, userID).Error; err != nil {
			return fmt.Errorf("deleting user %d: %w", userID, err)
		}

		return nil
	})
}
