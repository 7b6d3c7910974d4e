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

// PushSender forwards alert notifications to a mobile push gateway over HTTP.
// The gateway owns device tokens and platform delivery; this side only posts
// the alert document.
// Params: gateway URL, method, headers, and timeout.
// Returns: push channel sender.
type PushSender struct {
	cfg    config.PushNotifier
	client *http.Client
}

// pushPayload is the gateway request body.
// Params: alert snapshot plus rendered text.
// Returns: JSON body for the gateway.
type pushPayload struct {
	Alert   domain.Alert `json:"alert"`
	Title   string       `json:"title"`
	Message string       `json:"message"`
}

// NewPushSender creates the push gateway channel sender.
// Params: push notifier config.
// Returns: sender with bounded HTTP client.
func NewPushSender(cfg config.PushNotifier) *PushSender {
	return &PushSender{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *PushSender) Channel() string {
	return ChannelPush
}

// Send posts one alert to the push gateway.
// Params: context and alert snapshot.
// Returns: request or non-2xx status error.
func (s *PushSender) Send(ctx context.Context, alert domain.Alert) error {
	if s.cfg.URL == "" {
		return permanent.Mark(errors.New("push gateway url is not configured"))
	}

	body, err := json.Marshal(pushPayload{
		Alert:   alert,
		Title:   fmt.Sprintf("[%s] %s", alert.Severity, alert.Title),
		Message: FormatMessage(alert),
	})
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	method := s.cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post push gateway: %w", err)
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

// unexpectedHTTPStatusError reports a non-2xx delivery response. Client
// errors other than 429 are marked permanent since resending the same
// payload cannot succeed.
// Params: HTTP status code.
// Returns: descriptive error, permanently-marked for non-retryable statuses.
func unexpectedHTTPStatusError(code int) error {
	err := fmt.Errorf("unexpected http status: %d %s", code, http.StatusText(code))
	if code >= http.StatusBadRequest && code < http.StatusInternalServerError &&
		code != http.StatusTooManyRequests {
		return permanent.Mark(err)
	}
	return err
}
