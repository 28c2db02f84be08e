package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/breathe-dev/breathe/db"
	"github.com/breathe-dev/breathe/internal/auth"
	"github.com/breathe-dev/breathe/internal/models"
	"github.com/breathe-dev/breathe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type historyFixture struct {
	store    *db.Store
	room     models.Room
	sensor   models.Sensor
	notifier *fakeNotifier
	service  *HistoryService
}

func newHistoryFixture(t *testing.T, subscribers int, opts ...HistoryOption) historyFixture {
	t.Helper()

	store := testutil.NewStore(t)
	room := testutil.CreateRoom(t, store, "B204", 180)
	sensor := testutil.CreateSensor(t, store, "co2-b204", &room.ID)

	for i := 0; i < subscribers; i++ {
		user := testutil.CreateUser(t, store, []string{"ana", "bo", "cy", "dee"}[i], auth.RoleUser)
		testutil.Subscribe(t, store, user.ID, room.ID)
	}

	notifier := &fakeNotifier{}
	service := NewHistoryService(store, notifier, 800, time.Second, zap.NewNop(), opts...)

	return historyFixture{store: store, room: room, sensor: sensor, notifier: notifier, service: service}
}

func TestRecord_HighReadingNotifiesSubscribersOnce(t *testing.T) {
	f := newHistoryFixture(t, 3)

	result, err := f.service.Record(context.Background(), "co2-b204", 1500, at(9))
	require.NoError(t, err)

	assert.Equal(t, MailSent, result.MailStatus)
	assert.NotZero(t, result.History.ID)
	assert.Equal(t, f.sensor.ID, result.History.SensorID)

	calls := f.notifier.Calls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []string{"ana@example.com", "bo@example.com", "cy@example.com"}, calls[0].Emails)
	assert.Equal(t, "B204", calls[0].RoomName)
	assert.Equal(t, AlertLevelEvacuate, AlertLevelFor(calls[0].State))

	var alert models.Alert
	require.NoError(t, f.store.DB.First(&alert).Error)
	assert.Equal(t, models.AlertStatusSent, alert.Status)
	assert.Equal(t, 1, alert.Attempts)
	assert.NotNil(t, alert.SentAt)

	emails, err := alert.Emails()
	require.NoError(t, err)
	assert.Len(t, emails, 3)
}

func TestRecord_LowReadingSendsNothing(t *testing.T) {
	f := newHistoryFixture(t, 2)

	for _, state := range []float64{500, 800} {
		result, err := f.service.Record(context.Background(), "co2-b204", state, at(9))
		require.NoError(t, err)
		assert.Equal(t, MailNotRequired, result.MailStatus)
	}

	assert.Empty(t, f.notifier.Calls())

	var count int64
	require.NoError(t, f.store.DB.Model(&models.Alert{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecord_NoRecipients(t *testing.T) {
	f := newHistoryFixture(t, 0)

	result, err := f.service.Record(context.Background(), "co2-b204", 1000, at(9))
	require.NoError(t, err)
	assert.Equal(t, MailNoRecipients, result.MailStatus)

	testutil.CreateSensor(t, f.store, "co2-hallway", nil)
	result, err = f.service.Record(context.Background(), "co2-hallway", 1000, at(9))
	require.NoError(t, err)
	assert.Equal(t, MailNoRecipients, result.MailStatus)

	assert.Empty(t, f.notifier.Calls())
}

func TestRecord_NotifierFailureIsReportedAndStored(t *testing.T) {
	f := newHistoryFixture(t, 1)
	f.notifier.err = errMailDown

	result, err := f.service.Record(context.Background(), "co2-b204", 900, at(9))
	require.NoError(t, err)
	assert.Equal(t, MailFailed, result.MailStatus)

	var alert models.Alert
	require.NoError(t, f.store.DB.First(&alert).Error)
	assert.Equal(t, models.AlertStatusFailed, alert.Status)
	assert.Equal(t, errMailDown.Error(), alert.LastError)
	assert.Nil(t, alert.SentAt)

	var histories int64
	require.NoError(t, f.store.DB.Model(&models.SensorHistory{}).Count(&histories).Error)
	assert.Equal(t, int64(1), histories)
}

func TestRecord_CancelledRequestStillAlerts(t *testing.T) {
	f := newHistoryFixture(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	result, err := f.service.Record(ctx, "co2-b204", 900, at(9))
	cancel()

	require.NoError(t, err)
	assert.Equal(t, MailSent, result.MailStatus)
	assert.Len(t, f.notifier.Calls(), 1)
}

func TestRecord_UnknownSensor(t *testing.T) {
	f := newHistoryFixture(t, 1)

	_, err := f.service.Record(context.Background(), "nope", 1500, at(9))
	assert.ErrorIs(t, err, ErrSensorNotFound)
	assert.Empty(t, f.notifier.Calls())
}

func TestRecord_PublishesReading(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	sink := &recordingSink{err: errMailDown}
	f := newHistoryFixture(t, 0, WithBroadcaster(broadcaster), WithSink(sink))

	local := time.Date(2024, 5, 10, 11, 0, 0, 0, time.FixedZone("CEST", 2*60*60))

	result, err := f.service.Record(context.Background(), "co2-b204", 640, local)
	require.NoError(t, err)
	assert.True(t, at(9).Equal(result.History.RecordedAt))
	assert.Equal(t, time.UTC, result.History.RecordedAt.Location())

	require.Len(t, broadcaster.readings, 1)
	reading := broadcaster.readings[0]
	assert.Equal(t, result.History.ID, reading.HistoryID)
	assert.Equal(t, "B204", reading.RoomName)
	assert.Equal(t, "ppm", reading.UnitOfMeasurement)
	assert.Equal(t, f.room.ID, *reading.RoomID)

	assert.Len(t, sink.readings, 1)
}

func TestResolveSensor(t *testing.T) {
	f := newHistoryFixture(t, 0)
	other := testutil.CreateSensor(t, f.store, "co2-other", nil)
	ctx := context.Background()

	sensor, err := f.service.ResolveSensor(ctx, f.sensor.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "co2-b204", sensor.FriendlyName)

	sensor, err = f.service.ResolveSensor(ctx, 0, "co2-other")
	require.NoError(t, err)
	assert.Equal(t, other.ID, sensor.ID)

	_, err = f.service.ResolveSensor(ctx, f.sensor.ID, "co2-b204")
	require.NoError(t, err)

	_, err = f.service.ResolveSensor(ctx, f.sensor.ID, "co2-other")
	assert.ErrorIs(t, err, ErrSensorMismatch)

	_, err = f.service.ResolveSensor(ctx, 9999, "")
	assert.ErrorIs(t, err, ErrSensorNotFound)

	_, err = f.service.ResolveSensor(ctx, 0, "missing")
	assert.ErrorIs(t, err, ErrSensorNotFound)

	_, err = f.service.ResolveSensor(ctx, 0, "")
	assert.ErrorIs(t, err, ErrSensorRequired)
}

func TestList_RangeIsInclusiveAndOrdered(t *testing.T) {
	f := newHistoryFixture(t, 0)
	ctx := context.Background()

	for _, hour := range []int{12, 8, 10, 9, 11} {
		_, err := f.service.Record(ctx, "co2-b204", float64(400+hour), at(hour))
		require.NoError(t, err)
	}

	all, err := f.service.List(ctx, HistoryFilter{SensorID: f.sensor.ID})
	require.NoError(t, err)
	require.Len(t, all, 5)

	for i := 1; i < len(all); i++ {
		assert.True(t, !all[i].RecordedAt.Before(all[i-1].RecordedAt))
	}

	start, end := at(9), at(11)
	ranged, err := f.service.List(ctx, HistoryFilter{SensorID: f.sensor.ID, Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.True(t, at(9).Equal(ranged[0].RecordedAt))
	assert.True(t, at(11).Equal(ranged[2].RecordedAt))

	page, err := f.service.List(ctx, HistoryFilter{SensorID: f.sensor.ID, Take: 2, Skip: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, at(9).Equal(page[0].RecordedAt))

	empty, err := f.service.List(ctx, HistoryFilter{SensorID: 9999})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRecord_WithMailpit(t *testing.T) {
	var received []MailpitMessage
	server := newMailpit(t, http.StatusOK, &received)

	f := newHistoryFixture(t, 2)
	service := NewHistoryService(f.store, NewMailpitNotifier(server.URL, "alerts@breathe.local", "Breathe", time.Second, zap.NewNop()), 800, time.Second, zap.NewNop())

	result, err := service.Record(context.Background(), "co2-b204", 1500, at(9))
	require.NoError(t, err)
	assert.Equal(t, MailSent, result.MailStatus)

	require.Len(t, received, 1)
	assert.Len(t, received[0].To, 2)
	assert.Contains(t, received[0].Subject, "evacuate")
}
