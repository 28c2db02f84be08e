package handlers

import (
	"net/http"
	"strings"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/models"
	"github.com/breathe-dev/breathe/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6,max=128"`
	Username  string `json:"username" binding:"required,min=1,max=50"`
	FirstName string `json:"first_name" binding:"required,min=1,max=50"`
	LastName  string `json:"last_name" binding:"required,min=1,max=50"`
}

func (h *Handler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !bindJSON(ctx, &req) {
		return
	}

	var user models.User

	err := h.store.DB.WithContext(ctx.Request.Context()).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error

	if err != nil {
		if db.IsNotFound(err) {
			respondMessage(ctx, http.StatusNotFound, "No user linked to this email.")
			return
		}

		h.internalError(ctx, "loading user for login failed", err)
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.Password)

	if err != nil {
		h.logger.Warn("stored password digest is unreadable", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	if !ok {
		respondMessage(ctx, http.StatusBadRequest, "Invalid credentials.")
		return
	}

	token, err := h.tokens.Generate(user.ID)

	if err != nil {
		h.internalError(ctx, "generating token failed", err)
		return
	}

	h.setTokenCookie(ctx, token, int(h.tokens.Expiry().Seconds()))

	ctx.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !bindJSON(ctx, &req) {
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
		Role:      auth.RoleUser,
	}

	if err := h.store.DB.WithContext(ctx.Request.Context()).Create(&user).Error; err != nil {
		if db.IsUniqueViolation(err) {
			h.respondIdentityConflict(ctx, email, username, 0, "This email is already used.", "This username is already used.")
			return
		}

		h.internalError(ctx, "creating user failed", err)
		return
	}

	h.logger.Info("user registered", zap.Uint("user_id", user.ID))

	respondMessage(ctx, http.StatusCreated, "User registered successfully. You can now login.")
}

func (h *Handler) Logout(ctx *gin.Context) {
	h.setTokenCookie(ctx, "", -1)

	respondMessage(ctx, http.StatusOK, "Logged out successfully")
}

func (h *Handler) setTokenCookie(ctx *gin.Context, value string, maxAge int) {
	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     types.TokenCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.cookieDomain,
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

// respondIdentityConflict answers a unique violation that slipped past
// checkIdentityFree, naming the column that actually collided.
func (h *Handler) respondIdentityConflict(ctx *gin.Context, email, username string, exceptID uint, emailTaken, usernameTaken string) {
	msg, ok := h.checkIdentityFree(ctx, email, username, exceptID, emailTaken, usernameTaken)

	if !ok && msg == "" {
		return
	}

	if ok {
		msg = "Email or username already used."
	}

	respondMessage(ctx, http.StatusBadRequest, msg)
}

// checkIdentityFree reports whether email and username are unused by anyone
// other than exceptID. Empty values are skipped. When it returns false with an
// empty message the response has already been written.
func (h *Handler) checkIdentityFree(ctx *gin.Context, email, username string, exceptID uint, emailTaken, usernameTaken string) (string, bool) {
	checks := []struct {
		column string
		value  string
		msg    string
	}{
		{"email", email, emailTaken},
		{"username", username, usernameTaken},
	}

	for _, check := range checks {
		if check.value == "" {
			continue
		}

		var count int64

		err := h.store.DB.WithContext(ctx.Request.Context()).
			Model(&models.User{}).
			Where(check.column+" = ? AND id <> ?", check.value, exceptID).
			Count(&count).Error

		if err != nil {
			h.internalError(ctx, "checking user uniqueness failed", err)
			return "", false
		}

		if count > 0 {
			return check.msg, false
		}
	}

	return "", true
}
