package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/breathe-dev/breathe/internal/models"
	"github.com/breathe-dev/breathe/internal/services"
	"github.com/breathe-dev/breathe/internal/types"
	"github.com/breathe-dev/breathe/internal/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type HistoryFilterQuery struct {
	SensorID     uint   `form:"sensor_id"`
	FriendlyName string `form:"friendly_name"`
	StartDate    string `form:"start_date"`
	EndDate      string `form:"end_date"`
}

type HistoryListQuery struct {
	HistoryFilterQuery
	types.Pagination
}

type CreateHistoryRequest struct {
	FriendlyName string   `json:"friendly_name" binding:"required"`
	State        *float64 `json:"state" binding:"required"`
	RecordedAt   string   `json:"recorded_at"`
}

type DeleteHistoryRequest struct {
	HistoryIDs []uint `json:"history_ids" binding:"required,min=1,dive,min=1"`
}

func (h *Handler) ListHistory(ctx *gin.Context) {
	var query HistoryListQuery

	if !bindQuery(ctx, &query) {
		return
	}

	sensor, filter, ok := h.historyFilter(ctx, query.HistoryFilterQuery)

	if !ok {
		return
	}

	filter.Take = query.Take
	filter.Skip = query.Skip

	histories, err := h.history.List(ctx.Request.Context(), filter)

	if err != nil {
		h.internalError(ctx, "listing history failed", err)
		return
	}

	h.logger.Debug("history listed", zap.Uint("sensor_id", sensor.ID), zap.Int("count", len(histories)))

	ctx.JSON(http.StatusOK, gin.H{"sensorHistories": histories})
}

// ExportHistory streams every matching reading as an xlsx workbook.
func (h *Handler) ExportHistory(ctx *gin.Context) {
	var query HistoryFilterQuery

	if !bindQuery(ctx, &query) {
		return
	}

	sensor, filter, ok := h.historyFilter(ctx, query)

	if !ok {
		return
	}

	histories, err := h.history.List(ctx.Request.Context(), filter)

	if err != nil {
		h.internalError(ctx, "listing history for export failed", err)
		return
	}

	var buf bytes.Buffer

	if err := services.WriteHistoryWorkbook(&buf, sensor, histories); err != nil {
		h.internalError(ctx, "writing history workbook failed", err)
		return
	}

	filename := fmt.Sprintf("%s-history-%s.xlsx", sensor.FriendlyName, time.Now().UTC().Format("20060102"))
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) CreateHistory(ctx *gin.Context) {
	var req CreateHistoryRequest

	if !bindJSON(ctx, &req) {
		return
	}

	recordedAt := time.Now().UTC()

	if req.RecordedAt != "" {
		parsed, err := utils.ParseTimestamp(req.RecordedAt)

		if err != nil {
			respondMessage(ctx, http.StatusBadRequest, "Invalid date format for recorded_at")
			return
		}

		recordedAt = parsed
	}

	result, err := h.history.Record(ctx.Request.Context(), req.FriendlyName, *req.State, recordedAt)

	if err != nil {
		if errors.Is(err, services.ErrSensorNotFound) {
			respondMessage(ctx, http.StatusNotFound, err.Error())
			return
		}

		h.internalError(ctx, "recording history failed", err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"sensorHistory": result.History,
		"mailStatus":    result.MailStatus,
	})
}

func (h *Handler) DeleteHistory(ctx *gin.Context) {
	var req DeleteHistoryRequest

	if !bindJSON(ctx, &req) {
		return
	}

	result := h.store.DB.WithContext(ctx.Request.Context()).Where("id IN ?", req.HistoryIDs).Delete(&models.SensorHistory{})

	if result.Error != nil {
		h.internalError(ctx, "deleting history failed", result.Error)
		return
	}

	h.logger.Info("history deleted", zap.Int("requested", len(req.HistoryIDs)), zap.Int64("deleted", result.RowsAffected))

	ctx.JSON(http.StatusOK, gin.H{"deleted": result.RowsAffected})
}

// historyFilter resolves the sensor and date range, writing the error response itself.
func (h *Handler) historyFilter(ctx *gin.Context, query HistoryFilterQuery) (models.Sensor, services.HistoryFilter, bool) {
	var filter services.HistoryFilter

	start, startErr := utils.ParseOptionalTimestamp(query.StartDate)
	end, endErr := utils.ParseOptionalTimestamp(query.EndDate)

	if startErr != nil || endErr != nil {
		respondMessage(ctx, http.StatusBadRequest, "Invalid date format for start_date or end_date")
		return models.Sensor{}, filter, false
	}

	sensor, err := h.history.ResolveSensor(ctx.Request.Context(), query.SensorID, query.FriendlyName)

	if err != nil {
		switch {
		case errors.Is(err, services.ErrSensorRequired), errors.Is(err, services.ErrSensorMismatch):
			respondMessage(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrSensorNotFound):
			respondMessage(ctx, http.StatusNotFound, err.Error())
		default:
			h.internalError(ctx, "resolving sensor failed", err)
		}

		return sensor, filter, false
	}

	filter.SensorID = sensor.ID
	filter.Start = start
	filter.End = end

	return sensor, filter, true
}
