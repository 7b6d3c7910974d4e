package metricsource

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"alertengine/internal/config"

	"github.com/nats-io/nats.go"
)

// Sample is the wire shape metric producers publish on the sample subject.
// Params: metric name, numeric value, and optional observation timestamp.
// Returns: decoded sample; a zero timestamp means "now".
type Sample struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Subscriber consumes metric samples from NATS into a cache.
// Params: NATS connection and core subscription.
// Returns: sample feed lifecycle handle.
type Subscriber struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *slog.Logger
}

// NewSubscriber connects to NATS and subscribes to the sample subject.
// Params: metric source config, target cache, and logger.
// Returns: started subscriber or initialization error.
func NewSubscriber(cfg config.MetricConfig, cache *Cache, logger *slog.Logger) (*Subscriber, error) {
	nc, err := nats.Connect(strings.Join(cfg.URL, ","),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats metric source: %w", err)
	}

	subscriber := &Subscriber{nc: nc, logger: logger}
	sub, err := nc.Subscribe(cfg.Subject, func(message *nats.Msg) {
		var s Sample
		if decodeErr := json.Unmarshal(message.Data, &s); decodeErr != nil {
			logger.Warn("metric sample decode failed",
				"subject", message.Subject, "error", decodeErr.Error())
			return
		}
		if strings.TrimSpace(s.Name) == "" {
			logger.Warn("metric sample missing name", "subject", message.Subject)
			return
		}
		at := s.Timestamp
		if at.IsZero() {
			at = time.Now().UTC()
		}
		cache.Observe(s.Name, s.Value, at)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %q: %w", cfg.Subject, err)
	}
	subscriber.sub = sub
	return subscriber, nil
}

// Close drains the subscription and closes the connection.
// Params: none.
// Returns: drain error.
func (s *Subscriber) Close() error {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.nc.Close()
			return err
		}
	}
	s.nc.Close()
	return nil
}
