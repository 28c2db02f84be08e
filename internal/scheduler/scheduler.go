package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/models"
	"github.com/breathe-dev/breathe/internal/services"
	"go.uber.org/zap"
)

// AlertRetrier periodically re-sends alerts whose delivery failed.
type AlertRetrier struct {
	store       *db.Store
	notifier    services.Notifier
	interval    time.Duration
	maxAttempts int
	sendTimeout time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
}

func NewAlertRetrier(store *db.Store, notifier services.Notifier, interval time.Duration, maxAttempts int, sendTimeout time.Duration, logger *zap.Logger) *AlertRetrier {
	return &AlertRetrier{
		store:       store,
		notifier:    notifier,
		interval:    interval,
		maxAttempts: maxAttempts,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Start runs the retry loop until ctx is cancelled or Stop is called.
func (r *AlertRetrier) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx, r.done)

	r.logger.Info("alert retrier started", zap.Duration("interval", r.interval), zap.Int("max_attempts", r.maxAttempts))
}

// Stop cancels the loop and waits for an in-flight pass to finish.
func (r *AlertRetrier) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	r.logger.Info("alert retrier stopped")
}

func (r *AlertRetrier) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RetryPending(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("alert retry pass failed", zap.Error(err))
			}
		}
	}
}

// RetryPending re-sends every failed alert still under the attempt cap and
// returns how many were delivered.
func (r *AlertRetrier) RetryPending(ctx context.Context) (int, error) {
	var alerts []models.Alert

	err := r.store.DB.WithContext(ctx).
		Where("status = ? AND attempts < ?", models.AlertStatusFailed, r.maxAttempts).
		Order("id").
		Find(&alerts).Error

	if err != nil {
		return 0, fmt.Errorf("loading failed alerts: %w", err)
	}

	delivered := 0

	for i := range alerts {
		if ctx.Err() != nil {
			break
		}

		if r.retry(ctx, &alerts[i]) {
			delivered++
		}
	}

	r.mu.Lock()
	r.lastRun = time.Now().UTC()
	r.mu.Unlock()

	if len(alerts) > 0 {
		r.logger.Info("alert retry pass done", zap.Int("pending", len(alerts)), zap.Int("delivered", delivered))
	}

	return delivered, nil
}

func (r *AlertRetrier) retry(ctx context.Context, alert *models.Alert) bool {
	emails, err := alert.Emails()

	if err != nil || len(emails) == 0 {
		alert.Status = models.AlertStatusAbandoned
		alert.LastError = services.ErrNoRecipients.Error()
		r.save(ctx, alert)
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	err = r.notifier.SendAlert(sendCtx, emails, alert.State, alert.RoomName)
	cancel()

	alert.Attempts++

	if err != nil {
		alert.LastError = err.Error()

		if alert.Attempts >= r.maxAttempts {
			alert.Status = models.AlertStatusAbandoned
			r.logger.Warn("alert abandoned", zap.Uint("alert_id", alert.ID), zap.Int("attempts", alert.Attempts), zap.Error(err))
		}

		r.save(ctx, alert)
		return false
	}

	sentAt := time.Now().UTC()
	alert.Status = models.AlertStatusSent
	alert.SentAt = &sentAt
	alert.LastError = ""
	r.save(ctx, alert)

	return true
}

func (r *AlertRetrier) save(ctx context.Context, alert *models.Alert) {
	if err := r.store.DB.WithContext(ctx).Save(alert).Error; err != nil {
		r.logger.Error("saving alert failed", zap.Uint("alert_id", alert.ID), zap.Error(err))
	}
}

// Status reports whether the loop is running and when it last ran.
func (r *AlertRetrier) Status() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]any{
		"running":  r.cancel != nil,
		"last_run": r.lastRun,
	}
}
