package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrNoRecipients = errors.New("no recipients")

// Notifier delivers an air-quality alert to a list of addresses.
type Notifier interface {
	SendAlert(ctx context.Context, emails []string, state float64, roomName string) error
}

type MailpitAddress struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

type MailpitMessage struct {
	From    MailpitAddress   `json:"From"`
	To      []MailpitAddress `json:"To"`
	Subject string           `json:"Subject"`
	Text    string           `json:"Text"`
	HTML    string           `json:"HTML"`
	Tags    []string         `json:"Tags,omitempty"`
}

type MailpitResponse struct {
	ID string `json:"ID"`
}

// MailpitNotifier sends through the Mailpit HTTP send API. It does not retry;
// failed alerts are picked up by the alert retrier.
type MailpitNotifier struct {
	httpClient *resty.Client
	from       MailpitAddress
	logger     *zap.Logger
}

func NewMailpitNotifier(baseURL, fromEmail, fromName string, timeout time.Duration, logger *zap.Logger) *MailpitNotifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &MailpitNotifier{
		httpClient: client,
		from:       MailpitAddress{Email: fromEmail, Name: fromName},
		logger:     logger,
	}
}

func (n *MailpitNotifier) SendAlert(ctx context.Context, emails []string, state float64, roomName string) error {
	if len(emails) == 0 {
		return ErrNoRecipients
	}

	msg := BuildAlertMessage(state, roomName)

	to := make([]MailpitAddress, 0, len(emails))

	for _, email := range emails {
		name, _, _ := strings.Cut(email, "@")
		to = append(to, MailpitAddress{Email: email, Name: name})
	}

	payload := MailpitMessage{
		From:    n.from,
		To:      to,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
		Tags:    []string{"co2", string(msg.Level)},
	}

	var result MailpitResponse

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		Post("/api/v1/send")

	if err != nil {
		return fmt.Errorf("mailpit: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("mailpit returned status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	n.logger.Info("alert email sent",
		zap.String("message_id", result.ID),
		zap.String("room", roomName),
		zap.Float64("state", state),
		zap.Int("recipients", len(emails)),
		zap.String("level", string(msg.Level)),
	)

	return nil
}
