package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"alertengine/internal/config"
	"alertengine/internal/domain"

	"github.com/nats-io/nats.go"
)

// WebsocketSender publishes alert notifications to a NATS broadcast subject.
// The UI layer's websocket gateway subscribes to the subject and pushes the
// payload to connected browsers; this keeps the engine free of socket state.
// Params: NATS connection and broadcast subject.
// Returns: websocket channel sender.
type WebsocketSender struct {
	nc      *nats.Conn
	subject string
	initErr error
}

// broadcastPayload is the wire shape consumed by the websocket gateway.
// Params: alert snapshot, rendered text, and publish time.
// Returns: JSON payload for the broadcast subject.
type broadcastPayload struct {
	Alert   domain.Alert `json:"alert"`
	Message string       `json:"message"`
	SentAt  time.Time    `json:"sent_at"`
}

// NewWebsocketSender connects to NATS for broadcast publishing.
// Params: websocket notifier config.
// Returns: initialized sender; connection errors surface on Send.
func NewWebsocketSender(cfg config.WebsocketNotifier) *WebsocketSender {
	sender := &WebsocketSender{subject: cfg.Subject}
	nc, err := nats.Connect(strings.Join(cfg.URL, ","),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		sender.initErr = fmt.Errorf("connect nats broadcast: %w", err)
		return sender
	}
	sender.nc = nc
	return sender
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *WebsocketSender) Channel() string {
	return ChannelWebsocket
}

// Send publishes one alert payload to the broadcast subject.
// Params: context and alert snapshot.
// Returns: encode or publish error.
func (s *WebsocketSender) Send(_ context.Context, alert domain.Alert) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.nc == nil {
		return errors.New("nats broadcast connection is not initialized")
	}
	body, err := json.Marshal(broadcastPayload{
		Alert:   alert,
		Message: FormatMessage(alert),
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode broadcast payload: %w", err)
	}
	if err := s.nc.Publish(s.subject, body); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

// Close drains the broadcast connection.
// Params: none.
// Returns: nil after close.
func (s *WebsocketSender) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
