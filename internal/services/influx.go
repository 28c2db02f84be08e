package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const readingMeasurement = "sensor_readings"

// InfluxSink mirrors every recorded reading into an InfluxDB bucket.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewInfluxSink(ctx context.Context, url, token, org, bucket string) (*InfluxSink, error) {
	client := influxdb2.NewClient(url, token)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	healthy, err := client.Ping(pingCtx)

	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping failed: %w", err)
	}

	if !healthy {
		client.Close()
		return nil, errors.New("influxdb is not healthy")
	}

	return &InfluxSink{client: client, writeAPI: client.WriteAPIBlocking(org, bucket)}, nil
}

func (s *InfluxSink) WriteReading(ctx context.Context, reading Reading) error {
	tags := map[string]string{
		"sensor": reading.FriendlyName,
		"unit":   reading.UnitOfMeasurement,
	}

	if reading.RoomName != "" {
		tags["room"] = reading.RoomName
	}

	point := write.NewPoint(
		readingMeasurement,
		tags,
		map[string]any{
			"state":      reading.State,
			"history_id": strconv.FormatUint(uint64(reading.HistoryID), 10),
		},
		reading.RecordedAt,
	)

	return s.writeAPI.WritePoint(ctx, point)
}

func (s *InfluxSink) Close() {
	s.client.Close()
}
