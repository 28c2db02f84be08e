package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) HealthCheck(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK

	if err := h.store.Ping(pingCtx); err != nil {
		h.logger.Warn("database ping failed", zap.Error(err))
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.retrier != nil {
		body["alert_retrier"] = h.retrier.Status()
	}

	ctx.JSON(code, body)
}
