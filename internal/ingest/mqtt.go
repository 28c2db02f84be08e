package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/breathe-dev/breathe/internal/services"
	"github.com/breathe-dev/breathe/internal/utils"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout    = 10 * time.Second
	subscribeTimeout  = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds
	recordTimeout     = 30 * time.Second
)

var (
	ErrBadTopic   = errors.New("topic does not match <prefix>/<friendly_name>/state")
	ErrBadPayload = errors.New(`payload must be a number or {"state": n, "recorded_at": "..."}`)
)

// Recorder stores one reading; *services.HistoryService satisfies it.
type Recorder interface {
	Record(ctx context.Context, friendlyName string, state float64, recordedAt time.Time) (services.RecordResult, error)
}

// Ingestor turns sensor state messages into recorded readings.
type Ingestor struct {
	recorder Recorder
	prefix   string
	logger   *zap.Logger
	now      func() time.Time
}

func NewIngestor(recorder Recorder, prefix string, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		recorder: recorder,
		prefix:   strings.Trim(prefix, "/"),
		logger:   logger,
		now:      time.Now,
	}
}

// Topic is the subscription filter covering every sensor.
func (i *Ingestor) Topic() string {
	return i.prefix + "/+/state"
}

func (i *Ingestor) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	name, err := i.sensorName(topic)

	if err != nil {
		return err
	}

	state, recordedAt, err := parsePayload(payload, i.now)

	if err != nil {
		return err
	}

	result, err := i.recorder.Record(ctx, name, state, recordedAt)

	if err != nil {
		return fmt.Errorf("recording %s: %w", name, err)
	}

	i.logger.Debug("reading ingested",
		zap.String("sensor", name),
		zap.Float64("state", state),
		zap.String("mail_status", string(result.MailStatus)),
	)

	return nil
}

func (i *Ingestor) sensorName(topic string) (string, error) {
	rest, ok := strings.CutPrefix(topic, i.prefix+"/")

	if !ok {
		return "", ErrBadTopic
	}

	name, ok := strings.CutSuffix(rest, "/state")

	if !ok || name == "" || strings.Contains(name, "/") {
		return "", ErrBadTopic
	}

	return name, nil
}

type statePayload struct {
	State      *float64 `json:"state"`
	RecordedAt string   `json:"recorded_at"`
}

func parsePayload(payload []byte, now func() time.Time) (float64, time.Time, error) {
	trimmed := strings.TrimSpace(string(payload))

	if state, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return state, now().UTC(), nil
	}

	var body statePayload

	if err := json.Unmarshal([]byte(trimmed), &body); err != nil || body.State == nil {
		return 0, time.Time{}, ErrBadPayload
	}

	if body.RecordedAt == "" {
		return *body.State, now().UTC(), nil
	}

	recordedAt, err := utils.ParseTimestamp(body.RecordedAt)

	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}

	return *body.State, recordedAt, nil
}

type SubscriberConfig struct {
	Broker   string
	ClientID string
}

// Subscriber feeds an Ingestor from an MQTT broker.
type Subscriber struct {
	client pahomqtt.Client
	topic  string
	logger *zap.Logger
}

func Subscribe(cfg SubscriberConfig, ingestor *Ingestor, logger *zap.Logger) (*Subscriber, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)

	s := &Subscriber{topic: ingestor.Topic(), logger: logger}

	handler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in mqtt handler", zap.String("topic", msg.Topic()), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := ingestor.HandleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
			logger.Warn("dropping mqtt message", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	}

	// Resubscribe after every (re)connect since the session is clean.
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		token := c.Subscribe(s.topic, 1, handler)

		if !token.WaitTimeout(subscribeTimeout) {
			logger.Error("mqtt subscribe timed out", zap.String("topic", s.topic))
			return
		}

		if err := token.Error(); err != nil {
			logger.Error("mqtt subscribe failed", zap.String("topic", s.topic), zap.Error(err))
			return
		}

		logger.Info("mqtt subscribed", zap.String("topic", s.topic))
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	s.client = pahomqtt.NewClient(opts)

	token := s.client.Connect()

	if !token.WaitTimeout(connectTimeout) {
		s.client.Disconnect(0)
		return nil, fmt.Errorf("connecting to %s: timed out after %s", cfg.Broker, connectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Broker, err)
	}

	return s, nil
}

func (s *Subscriber) Close() {
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.topic).WaitTimeout(subscribeTimeout)
	}

	s.client.Disconnect(disconnectQuiesce)
	s.logger.Info("mqtt subscriber closed")
}
