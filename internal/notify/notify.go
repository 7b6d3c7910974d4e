// Package notify delivers alert notifications with severity-tiered channel
// selection, per-key throttling, and failure isolation.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"alertengine/internal/clock"
	"alertengine/internal/config"
	"alertengine/internal/domain"
	"alertengine/internal/metrics"
	"alertengine/internal/permanent"
)

const (
	// ChannelWebsocket identifies the UI broadcast transport.
	ChannelWebsocket = "websocket"
	// ChannelEmail identifies the SMTP transport.
	ChannelEmail = "email"
	// ChannelSlack identifies the Slack webhook transport.
	ChannelSlack = "slack"
	// ChannelPush identifies the push gateway transport.
	ChannelPush = "push"
	// ChannelTelegram identifies the Telegram Bot API transport.
	ChannelTelegram = "telegram"
)

// channelOrder fixes deterministic fan-out and selection order.
var channelOrder = []string{
	ChannelWebsocket,
	ChannelEmail,
	ChannelSlack,
	ChannelPush,
	ChannelTelegram,
}

// ChannelSender sends one alert notification to one transport.
// Params: context and alert payload.
// Returns: transport error when delivery fails.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, alert domain.Alert) error
}

// Dispatcher fans alert notifications out to configured channels.
// Params: sender registry, throttle state, retry policies, logger, and clock.
// Returns: best-effort delivery decoupled from alert state changes.
type Dispatcher struct {
	senders  map[string]ChannelSender
	retries  map[string]config.NotifyRetry
	throttle *ThrottleStore
	logger   *slog.Logger
	clock    clock.Clock
}

// NewDispatcher builds the dispatcher from enabled channel config sections.
// Params: notify config, logger, and clock.
// Returns: dispatcher with one sender per enabled channel.
func NewDispatcher(cfg config.NotifyConfig, logger *slog.Logger, clk clock.Clock) *Dispatcher {
	dispatcher := &Dispatcher{
		senders:  make(map[string]ChannelSender),
		retries:  make(map[string]config.NotifyRetry),
		throttle: NewThrottleStore(),
		logger:   logger,
		clock:    clk,
	}
	if cfg.Websocket.Enabled {
		dispatcher.register(NewWebsocketSender(cfg.Websocket), cfg.Websocket.Retry)
	}
	if cfg.Email.Enabled {
		dispatcher.register(NewEmailSender(cfg.Email), cfg.Email.Retry)
	}
	if cfg.Slack.Enabled {
		dispatcher.register(NewSlackSender(cfg.Slack), cfg.Slack.Retry)
	}
	if cfg.Push.Enabled {
		dispatcher.register(NewPushSender(cfg.Push), cfg.Push.Retry)
	}
	if cfg.Telegram.Enabled {
		dispatcher.register(NewTelegramSender(cfg.Telegram), cfg.Telegram.Retry)
	}
	return dispatcher
}

// NewDispatcherWithSenders builds a dispatcher over explicit senders.
// Params: sender list, throttle store, logger, and clock.
// Returns: dispatcher used by tests and custom wirings.
func NewDispatcherWithSenders(senders []ChannelSender, logger *slog.Logger, clk clock.Clock) *Dispatcher {
	dispatcher := &Dispatcher{
		senders:  make(map[string]ChannelSender),
		retries:  make(map[string]config.NotifyRetry),
		throttle: NewThrottleStore(),
		logger:   logger,
		clock:    clk,
	}
	for _, sender := range senders {
		dispatcher.register(sender, config.NotifyRetry{})
	}
	return dispatcher
}

// register stores one sender with its retry policy.
// Params: channel sender and retry settings.
// Returns: sender registered under its channel key.
func (d *Dispatcher) register(sender ChannelSender, retry config.NotifyRetry) {
	d.senders[sender.Channel()] = sender
	d.retries[sender.Channel()] = retry
}

// Channels returns configured channel keys in fan-out order.
// Params: none.
// Returns: deterministic sender list.
func (d *Dispatcher) Channels() []string {
	channels := make([]string, 0, len(d.senders))
	for _, channel := range channelOrder {
		if _, ok := d.senders[channel]; ok {
			channels = append(channels, channel)
		}
	}
	return channels
}

// SendNotifications dispatches one alert to its selected channels.
// Params: context, alert snapshot, and extra requested channels (rule routes).
// Returns: nothing; every channel failure is logged and contained here.
//
// A throttled dispatch skips all channels and leaves the throttle timestamp
// untouched; an attempted dispatch stamps the key regardless of per-channel
// outcomes.
func (d *Dispatcher) SendNotifications(ctx context.Context, alert domain.Alert, requested []string) {
	now := d.clock.Now()
	key := ThrottleKey(alert)
	interval := ThrottleInterval(alert.Severity)
	if interval > 0 {
		if last, ok := d.throttle.LastSent(key); ok && now.Sub(last) < interval {
			metrics.NotificationsThrottled.WithLabelValues(string(alert.Severity)).Inc()
			d.logger.Debug("notification throttled", "key", key, "severity", alert.Severity)
			return
		}
	}

	channels := d.selectChannels(alert.Severity, requested)
	var wg sync.WaitGroup
	for _, channel := range channels {
		sender := d.senders[channel]
		wg.Add(1)
		go func(sender ChannelSender) {
			defer wg.Done()
			if err := d.sendWithRetry(ctx, sender, alert, d.retries[sender.Channel()]); err != nil {
				metrics.NotificationsFailed.WithLabelValues(sender.Channel()).Inc()
				d.logger.Error("notification send failed",
					"channel", sender.Channel(), "alert_id", alert.ID, "error", err.Error())
				return
			}
			metrics.NotificationsSent.WithLabelValues(sender.Channel()).Inc()
		}(sender)
	}
	wg.Wait()
	d.throttle.MarkSent(key, now)
}

// selectChannels applies the severity policy and merges requested channels.
// Params: alert severity and extra requested channel keys.
// Returns: configured channels in deterministic order.
//
// WEBSOCKET is always selected; EMAIL joins at HIGH, SLACK and PUSH at
// CRITICAL. Requested channels extend the set but never bypass throttling.
func (d *Dispatcher) selectChannels(severity domain.Severity, requested []string) []string {
	wanted := map[string]bool{ChannelWebsocket: true}
	if severity.Rank() >= domain.SeverityHigh.Rank() {
		wanted[ChannelEmail] = true
	}
	if severity == domain.SeverityCritical {
		wanted[ChannelSlack] = true
		wanted[ChannelPush] = true
	}
	for _, channel := range requested {
		wanted[strings.ToLower(strings.TrimSpace(channel))] = true
	}

	selected := make([]string, 0, len(wanted))
	for _, channel := range channelOrder {
		if !wanted[channel] {
			continue
		}
		if _, configured := d.senders[channel]; !configured {
			continue
		}
		selected = append(selected, channel)
	}
	return selected
}

// sendWithRetry sends one notification with channel-specific retry policy.
// Params: sender, alert payload, and retry policy for the sender channel.
// Returns: final error after retries.
func (d *Dispatcher) sendWithRetry(ctx context.Context, sender ChannelSender, alert domain.Alert, retry config.NotifyRetry) error {
	if !retry.Enabled {
		return sender.Send(ctx, alert)
	}

	backoff := time.Duration(retry.InitialMS) * time.Millisecond
	maxBackoff := time.Duration(retry.MaxMS) * time.Millisecond
	attempt := 0
	for {
		attempt++
		err := sender.Send(ctx, alert)
		if err == nil {
			if retry.LogEachAttempt && attempt > 1 {
				d.logger.Info("notify send recovered after retries",
					"channel", sender.Channel(), "attempt", attempt)
			}
			return nil
		}
		if retry.LogEachAttempt {
			d.logger.Warn("notify send attempt failed",
				"channel", sender.Channel(), "attempt", attempt, "error", err.Error())
		}
		if permanent.Is(err) {
			return fmt.Errorf("channel %s failed permanently: %w", sender.Channel(), err)
		}
		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			return fmt.Errorf("channel %s failed after %d attempts: %w", sender.Channel(), attempt, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if strings.EqualFold(retry.Backoff, "exponential") {
			backoff *= 2
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// Close releases transport resources held by registered senders.
// Params: none.
// Returns: first close error.
func (d *Dispatcher) Close() error {
	var firstErr error
	for _, sender := range d.senders {
		closer, ok := sender.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FormatMessage renders the human-readable notification body for one alert.
// Params: alert snapshot.
// Returns: multi-line message with severity, title, and numeric context.
func FormatMessage(alert domain.Alert) string {
	var builder strings.Builder
	builder.WriteString("[")
	builder.WriteString(string(alert.Severity))
	builder.WriteString("] ")
	builder.WriteString(alert.Title)
	builder.WriteString("\n")
	builder.WriteString(alert.Message)
	if alert.Component != "" {
		builder.WriteString("\ncomponent: ")
		builder.WriteString(alert.Component)
	}
	if alert.MetricValue != nil && alert.Threshold != nil {
		builder.WriteString(fmt.Sprintf("\nvalue: %.2f (threshold: %.2f)", *alert.MetricValue, *alert.Threshold))
	}
	if alert.Count > 1 {
		builder.WriteString(fmt.Sprintf("\noccurrences: %d", alert.Count))
	}
	return builder.String()
}
