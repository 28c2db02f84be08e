package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/models"
	"github.com/breathe-dev/breathe/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthenticatedUser struct {
	ID uint `json:"id"`
}

// Authenticate verifies the bearer token from the Authorization header, or the
// token cookie when no header is sent, and stores the caller in the context.
func Authenticate(tokens *auth.TokenService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, err := bearerToken(ctx)

		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
			return
		}

		claims, err := tokens.Verify(tokenString)

		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}

		ctx.Set(types.ContextUserKey, AuthenticatedUser{ID: claims.UserID})
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) (string, error) {
	authHeader := ctx.GetHeader("Authorization")

	if authHeader == "" {
		if cookie, err := ctx.Cookie(types.TokenCookieName); err == nil && cookie != "" {
			return cookie, nil
		}

		return "", errors.New("Authorization token is required")
	}

	parts := strings.SplitN(authHeader, " ", 2)

	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("Authorization header format must be Bearer {token}")
	}

	return strings.TrimSpace(parts[1]), nil
}

// RequireRole loads the caller's stored role and rejects anyone below minRole.
// It must run after Authenticate.
func RequireRole(store *db.Store, minRole auth.Role, logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		value, exists := ctx.Get(types.ContextUserKey)
		caller, ok := value.(AuthenticatedUser)

		if !exists || !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "User not authenticated"})
			return
		}

		var user models.User

		err := store.DB.WithContext(ctx.Request.Context()).Select("id", "role").First(&user, caller.ID).Error

		if err != nil {
			if db.IsNotFound(err) {
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "User not found"})
				return
			}

			logger.Error("role lookup failed", zap.Uint("user_id", caller.ID), zap.Error(err))
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}

		if !user.Role.AtLeast(minRole) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Insufficient permissions: " + minRole.String() + " role required"})
			return
		}

		ctx.Set(types.ContextRoleKey, user.Role)
		ctx.Next()
	}
}
