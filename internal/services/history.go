package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/models"
	"go.uber.org/zap"
)

var (
	ErrSensorNotFound = errors.New("Sensor not found")
	ErrSensorMismatch = errors.New("Sensor ID does not match the friendly name provided")
	ErrSensorRequired = errors.New("Either sensor_id or friendly_name is required")
)

// MailStatus is the outcome of alert delivery for one recorded reading.
type MailStatus string

const (
	MailNotRequired  MailStatus = "not_required"
	MailNoRecipients MailStatus = "no_recipients"
	MailSent         MailStatus = "sent"
	MailFailed       MailStatus = "failed"
)

// Reading is a recorded history row together with its sensor and room.
type Reading struct {
	HistoryID         uint      `json:"history_id"`
	SensorID          uint      `json:"sensor_id"`
	FriendlyName      string    `json:"friendly_name"`
	UnitOfMeasurement string    `json:"unit_of_measurement"`
	RoomID            *uint     `json:"room_id"`
	RoomName          string    `json:"room_name,omitempty"`
	State             float64   `json:"state"`
	RecordedAt        time.Time `json:"recorded_at"`
}

type ReadingBroadcaster interface {
	BroadcastReading(reading Reading)
}

type ReadingSink interface {
	WriteReading(ctx context.Context, reading Reading) error
}

type RecordResult struct {
	History    models.SensorHistory
	MailStatus MailStatus
}

type HistoryFilter struct {
	SensorID uint
	Start    *time.Time
	End      *time.Time
	// Take of 0 means no limit.
	Take int
	Skip int
}

type HistoryService struct {
	store       *db.Store
	notifier    Notifier
	threshold   float64
	mailTimeout time.Duration
	broadcaster ReadingBroadcaster
	sink        ReadingSink
	logger      *zap.Logger
}

type HistoryOption func(*HistoryService)

func WithBroadcaster(b ReadingBroadcaster) HistoryOption {
	return func(s *HistoryService) { s.broadcaster = b }
}

func WithSink(sink ReadingSink) HistoryOption {
	return func(s *HistoryService) { s.sink = sink }
}

func NewHistoryService(store *db.Store, notifier Notifier, threshold float64, mailTimeout time.Duration, logger *zap.Logger, opts ...HistoryOption) *HistoryService {
	s := &HistoryService{
		store:       store,
		notifier:    notifier,
		threshold:   threshold,
		mailTimeout: mailTimeout,
		logger:      logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ResolveSensor finds a sensor by id, by friendly name, or by both. When both
// are given they must name the same sensor.
func (s *HistoryService) ResolveSensor(ctx context.Context, sensorID uint, friendlyName string) (models.Sensor, error) {
	var sensor models.Sensor

	query := s.store.DB.WithContext(ctx)

	switch {
	case sensorID != 0:
		query = query.Where("id = ?", sensorID)
	case friendlyName != "":
		query = query.Where("friendly_name = ?", friendlyName)
	default:
		return sensor, ErrSensorRequired
	}

	if err := query.First(&sensor).Error; err != nil {
		if db.IsNotFound(err) {
			return sensor, ErrSensorNotFound
		}

		return sensor, err
	}

	if sensorID != 0 && friendlyName != "" && sensor.FriendlyName != friendlyName {
		return sensor, ErrSensorMismatch
	}

	return sensor, nil
}

// List returns a sensor's readings oldest first. Both bounds are inclusive.
func (s *HistoryService) List(ctx context.Context, filter HistoryFilter) ([]models.SensorHistory, error) {
	histories := []models.SensorHistory{}

	query := s.store.DB.WithContext(ctx).Where("sensor_id = ?", filter.SensorID)

	if filter.Start != nil {
		query = query.Where("recorded_at >= ?", filter.Start.UTC())
	}

	if filter.End != nil {
		query = query.Where("recorded_at <= ?", filter.End.UTC())
	}

	if filter.Take > 0 {
		query = query.Limit(filter.Take)
	}

	if filter.Skip > 0 {
		query = query.Offset(filter.Skip)
	}

	if err := query.Order("recorded_at ASC").Order("id ASC").Find(&histories).Error; err != nil {
		return nil, fmt.Errorf("listing history for sensor %d: %w", filter.SensorID, err)
	}

	return histories, nil
}

// Record stores a reading for the named sensor, publishes it and, above the
// alert threshold, emails the room's subscribers and waits for the outcome.
func (s *HistoryService) Record(ctx context.Context, friendlyName string, state float64, recordedAt time.Time) (RecordResult, error) {
	var sensor models.Sensor

	err := s.store.DB.WithContext(ctx).Preload("Room").Where("friendly_name = ?", friendlyName).First(&sensor).Error

	if err != nil {
		if db.IsNotFound(err) {
			return RecordResult{}, ErrSensorNotFound
		}

		return RecordResult{}, fmt.Errorf("loading sensor %q: %w", friendlyName, err)
	}

	history := models.SensorHistory{
		SensorID:   sensor.ID,
		State:      state,
		RecordedAt: recordedAt.UTC(),
	}

	if err := s.store.DB.WithContext(ctx).Create(&history).Error; err != nil {
		return RecordResult{}, fmt.Errorf("creating history for sensor %d: %w", sensor.ID, err)
	}

	reading := Reading{
		HistoryID:         history.ID,
		SensorID:          sensor.ID,
		FriendlyName:      sensor.FriendlyName,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		RoomID:            sensor.RoomID,
		State:             history.State,
		RecordedAt:        history.RecordedAt,
	}

	if sensor.Room != nil {
		reading.RoomName = sensor.Room.Name
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastReading(reading)
	}

	if s.sink != nil {
		if err := s.sink.WriteReading(ctx, reading); err != nil {
			s.logger.Warn("mirroring reading failed", zap.Uint("history_id", history.ID), zap.Error(err))
		}
	}

	return RecordResult{History: history, MailStatus: s.alert(ctx, sensor, state)}, nil
}

func (s *HistoryService) alert(ctx context.Context, sensor models.Sensor, state float64) MailStatus {
	if state <= s.threshold {
		return MailNotRequired
	}

	if sensor.Room == nil {
		return MailNoRecipients
	}

	// The alert goes out even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	emails, err := s.SubscriberEmails(ctx, sensor.Room.ID)

	if err != nil {
		s.logger.Error("resolving alert recipients failed", zap.Uint("room_id", sensor.Room.ID), zap.Error(err))
		return MailFailed
	}

	if len(emails) == 0 {
		return MailNoRecipients
	}

	alert := models.Alert{
		SensorID: sensor.ID,
		RoomID:   sensor.Room.ID,
		RoomName: sensor.Room.Name,
		State:    state,
		Attempts: 1,
	}

	if err := alert.SetRecipients(emails); err != nil {
		s.logger.Error("encoding alert recipients failed", zap.Error(err))
		return MailFailed
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()

	status := MailSent

	if err := s.notifier.SendAlert(sendCtx, emails, state, sensor.Room.Name); err != nil {
		s.logger.Warn("alert email failed",
			zap.Uint("sensor_id", sensor.ID),
			zap.String("room", sensor.Room.Name),
			zap.Error(err),
		)

		alert.Status = models.AlertStatusFailed
		alert.LastError = err.Error()
		status = MailFailed
	} else {
		sentAt := time.Now().UTC()
		alert.Status = models.AlertStatusSent
		alert.SentAt = &sentAt
	}

	if err := s.store.DB.WithContext(ctx).Create(&alert).Error; err != nil {
		s.logger.Error("recording alert failed", zap.Uint("sensor_id", sensor.ID), zap.Error(err))
	}

	return status
}

// SubscriberEmails returns the addresses of every user subscribed to the room.
func (s *HistoryService) SubscriberEmails(ctx context.Context, roomID uint) ([]string, error) {
	var emails []string

	err := s.store.DB.WithContext(ctx).
		Model(&models.User{}).
		Joins("JOIN subscriptions ON subscriptions.user_id = users.id").
		Where("subscriptions.room_id = ?", roomID).
		Order("users.id").
		Pluck("users.email", &emails).Error

	if err != nil {
		return nil, fmt.Errorf("loading subscribers of room %d: %w", roomID, err)
	}

	return emails, nil
}
