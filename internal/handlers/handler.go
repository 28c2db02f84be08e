package handlers

import (
	"net/http"
	"strings"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusReporter is a background worker whose state shows up in /health.
type StatusReporter interface {
	Status() map[string]any
}

// Handler carries the dependencies shared by every route.
type Handler struct {
	store        *db.Store
	tokens       *auth.TokenService
	history      *services.HistoryService
	retrier      StatusReporter
	logger       *zap.Logger
	cookieDomain string
}

type Dependencies struct {
	Store        *db.Store
	Tokens       *auth.TokenService
	History      *services.HistoryService
	Retrier      StatusReporter
	Logger       *zap.Logger
	CookieDomain string
}

func New(deps Dependencies) *Handler {
	logger := deps.Logger

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		store:        deps.Store,
		tokens:       deps.Tokens,
		history:      deps.History,
		retrier:      deps.Retrier,
		logger:       logger,
		cookieDomain: deps.CookieDomain,
	}
}

func respondMessage(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, gin.H{"message": message})
}

func (h *Handler) internalError(ctx *gin.Context, msg string, err error) {
	_ = ctx.Error(err)
	h.logger.Error(msg, zap.String("path", ctx.FullPath()), zap.Error(err))
	respondMessage(ctx, http.StatusInternalServerError, "Internal server error")
}

func bindJSON(ctx *gin.Context, body any) bool {
	if err := ctx.ShouldBindJSON(body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request", "details": err.Error()})
		return false
	}

	return true
}

func bindQuery(ctx *gin.Context, query any) bool {
	if err := ctx.ShouldBindQuery(query); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"message": "Invalid query parameters", "details": err.Error()})
		return false
	}

	return true
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern builds a LIKE pattern for a substring match; use with ESCAPE '!'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
