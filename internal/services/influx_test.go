package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInflux struct {
	mu      sync.Mutex
	healthy bool
	lines   []string
	query   string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		if f.healthy {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lines = append(f.lines, string(body))
		f.query = r.URL.RawQuery
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestInfluxSink_WriteReading(t *testing.T) {
	fake := &fakeInflux{healthy: true}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	sink, err := NewInfluxSink(context.Background(), server.URL, "token", "campus", "air")
	require.NoError(t, err)
	defer sink.Close()

	roomID := uint(3)
	err = sink.WriteReading(context.Background(), Reading{
		HistoryID:         17,
		SensorID:          4,
		FriendlyName:      "co2-b204",
		UnitOfMeasurement: "ppm",
		RoomID:            &roomID,
		RoomName:          "B204",
		State:             915,
		RecordedAt:        at(9),
	})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()

	require.Len(t, fake.lines, 1)
	line := fake.lines[0]
	assert.Contains(t, line, "sensor_readings,")
	assert.Contains(t, line, "room=B204")
	assert.Contains(t, line, "sensor=co2-b204")
	assert.Contains(t, line, "state=915")
	assert.Contains(t, fake.query, "bucket=air")
	assert.Contains(t, fake.query, "org=campus")
}

func TestInfluxSink_Unhealthy(t *testing.T) {
	server := httptest.NewServer(&fakeInflux{healthy: false})
	t.Cleanup(server.Close)

	_, err := NewInfluxSink(context.Background(), server.URL, "token", "campus", "air")
	assert.Error(t, err)
}
