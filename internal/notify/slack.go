package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"alertengine/internal/config"
	"alertengine/internal/domain"
	"alertengine/internal/permanent"
)

// SlackSender posts alert notifications to a Slack incoming webhook.
// Params: webhook URL and HTTP timeout.
// Returns: slack channel sender.
type SlackSender struct {
	cfg    config.SlackNotifier
	client *http.Client
}

// slackMessage is the incoming-webhook payload.
// Params: fallback text plus one colored attachment.
// Returns: JSON body for the webhook.
type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color string `json:"color"`
	Text  string `json:"text"`
}

// NewSlackSender creates the webhook channel sender.
// Params: slack notifier config.
// Returns: sender with bounded HTTP client.
func NewSlackSender(cfg config.SlackNotifier) *SlackSender {
	return &SlackSender{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *SlackSender) Channel() string {
	return ChannelSlack
}

// Send posts one alert to the incoming webhook.
// Params: context and alert snapshot.
// Returns: request or non-2xx status error.
func (s *SlackSender) Send(ctx context.Context, alert domain.Alert) error {
	if s.cfg.WebhookURL == "" {
		return permanent.Mark(errors.New("slack webhook url is not configured"))
	}

	body, err := json.Marshal(slackMessage{
		Text: fmt.Sprintf("[%s] %s", alert.Severity, alert.Title),
		Attachments: []slackAttachment{{
			Color: severityColor(alert.Severity),
			Text:  FormatMessage(alert),
		}},
	})
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return unexpectedHTTPStatusError(resp.StatusCode)
	}
	return nil
}

// severityColor maps a severity to the Slack attachment bar color.
// Params: alert severity.
// Returns: hex color string.
func severityColor(sev domain.Severity) string {
	switch sev {
	case domain.SeverityCritical:
		return "#d32f2f"
	case domain.SeverityHigh:
		return "#f57c00"
	case domain.SeverityMedium:
		return "#fbc02d"
	case domain.SeverityLow:
		return "#388e3c"
	default:
		return "#1976d2"
	}
}
