package utils

import (
	"errors"

	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/middleware"
	"github.com/breathe-dev/breathe/internal/types"
	"github.com/gin-gonic/gin"
)

var ErrNotAuthenticated = errors.New("User not authenticated")

func GetCurrentUser(ctx *gin.Context) (middleware.AuthenticatedUser, error) {
	user, exists := ctx.Get(types.ContextUserKey)

	if !exists {
		return middleware.AuthenticatedUser{}, ErrNotAuthenticated
	}

	authenticatedUser, ok := user.(middleware.AuthenticatedUser)

	if !ok {
		return middleware.AuthenticatedUser{}, errors.New("Invalid user type in context")
	}

	return authenticatedUser, nil
}

func GetCurrentUserID(ctx *gin.Context) (uint, error) {
	user, err := GetCurrentUser(ctx)

	if err != nil {
		return 0, err
	}

	return user.ID, nil
}

// GetCurrentRole is only set on routes behind middleware.RequireRole.
func GetCurrentRole(ctx *gin.Context) (auth.Role, bool) {
	value, exists := ctx.Get(types.ContextRoleKey)

	if !exists {
		return 0, false
	}

	role, ok := value.(auth.Role)

	return role, ok
}
