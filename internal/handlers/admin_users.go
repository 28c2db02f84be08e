package handlers

import (
	"net/http"
	"strings"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/models"
	"github.com/breathe-dev/breathe/internal/types"
	"github.com/breathe-dev/breathe/internal/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminUserListQuery struct {
	UserID   uint   `form:"user_id"`
	Username string `form:"username"`
	types.Pagination
}

type AdminCreateUserRequest struct {
	RegisterRequest
	Role *auth.Role `json:"role" binding:"omitempty,min=1,max=4"`
}

type AdminUpdateUserRequest struct {
	UserID uint `json:"user_id" binding:"required"`
	UpdateUserRequest
	Role *auth.Role `json:"role" binding:"omitempty,min=1,max=4"`
}

type AdminDeleteUserRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

func (h *Handler) AdminListUsers(ctx *gin.Context) {
	var query AdminUserListQuery

	if !bindQuery(ctx, &query) {
		return
	}

	if query.UserID != 0 {
		user, ok := h.findUser(ctx, query.UserID)

		if !ok {
			return
		}

		ctx.JSON(http.StatusOK, types.NewAdminUserResponse(user))
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
		response = append(response, types.NewAdminUserResponse(user))
	}

	ctx.JSON(http.StatusOK, gin.H{"users": response})
}

func (h *Handler) AdminCreateUser(ctx *gin.Context) {
	var req AdminCreateUserRequest

	if !bindJSON(ctx, &req) {
		return
	}

	role := auth.RoleUser

	if req.Role != nil {
		role = *req.Role
	}

	if !h.callerOutranks(ctx, role) {
		return
	}

	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)

	if msg, ok := h.checkIdentityFree(ctx, email, username, 0, "This email is already used.", "This username is already used."); !ok {
		if msg != "" {
			respondMessage(ctx, http.StatusBadRequest, msg)
		}
		return
	}

	digest, err := auth.HashPassword(req.Password)

	if err != nil {
		h.internalError(ctx, "hashing password failed", err)
		return
	}

	user := models.User{
		Email:     email,
		Username:  username,
		Password:  digest,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
	}

	if err := h.store.DB.WithContext(ctx.Request.Context()).Create(&user).Error; err != nil {
		if db.IsUniqueViolation(err) {
			h.respondIdentityConflict(ctx, email, username, 0, "This email is already used.", "This username is already used.")
			return
		}

		h.internalError(ctx, "creating user failed", err)
		return
	}

	h.logger.Info("user created by admin", zap.Uint("user_id", user.ID), zap.Stringer("role", user.Role))

	ctx.JSON(http.StatusCreated, types.NewAdminUserResponse(user))
}

func (h *Handler) AdminUpdateUser(ctx *gin.Context) {
	var req AdminUpdateUserRequest

	if !bindJSON(ctx, &req) {
		return
	}

	user, ok := h.findUser(ctx, req.UserID)

	if !ok || !h.callerOutranks(ctx, user.Role) {
		return
	}

	if req.Role != nil {
		if !h.callerOutranks(ctx, *req.Role) {
			return
		}

		user.Role = *req.Role
	}

	if !h.applyUserUpdate(ctx, &user, req.UpdateUserRequest) {
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *Handler) AdminDeleteUser(ctx *gin.Context) {
	var req AdminDeleteUserRequest

	if !bindJSON(ctx, &req) {
		return
	}

	user, ok := h.findUser(ctx, req.UserID)

	if !ok || !h.callerOutranks(ctx, user.Role) {
		return
	}

	if err := deleteUser(ctx.Request.Context(), h.store, user.ID); err != nil {
		h.internalError(ctx, "deleting user failed", err)
		return
	}

	h.logger.Info("user deleted by admin", zap.Uint("user_id", user.ID))

	ctx.Status(http.StatusNoContent)
}

// callerOutranks rejects the request unless the caller's role is at least target.
func (h *Handler) callerOutranks(ctx *gin.Context, target auth.Role) bool {
	role, ok := utils.GetCurrentRole(ctx)

	if !ok || !role.AtLeast(target) {
		respondMessage(ctx, http.StatusUnauthorized, "Insufficient permissions: "+target.String()+" role required")
		return false
	}

	return true
}
