package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"alertengine/internal/clock"
	"alertengine/internal/config"
	"alertengine/internal/domain"
	"alertengine/internal/permanent"
)

type captureSender struct {
	channel string
	mu      sync.Mutex
	items   []domain.Alert
}

func (s *captureSender) Channel() string { return s.channel }

func (s *captureSender) Send(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, alert)
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type failingSender struct {
	channel string
	mu      sync.Mutex
	calls   int
	err     error
}

func (s *failingSender) Channel() string { return s.channel }

func (s *failingSender) Send(_ context.Context, _ domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *failingSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(at time.Time) *clock.Func {
	fn := clock.Func(func() time.Time { return at })
	return &fn
}

func testAlert(severity domain.Severity) domain.Alert {
	return domain.Alert{
		ID:        "a-1",
		Type:      domain.TypeHighCPUUsage,
		Severity:  severity,
		Status:    domain.StatusActive,
		Component: "api",
		Source:    "monitor",
		Title:     "High CPU",
		Message:   "cpu above threshold",
		Count:     1,
	}
}

func TestCriticalIsNeverThrottled(t *testing.T) {
	t.Parallel()

	sender := &captureSender{channel: ChannelWebsocket}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := NewDispatcherWithSenders([]ChannelSender{sender}, testLogger(), fixedClock(now))

	alert := testAlert(domain.SeverityCritical)
	dispatcher.SendNotifications(context.Background(), alert, nil)
	dispatcher.SendNotifications(context.Background(), alert, nil)

	if got := sender.count(); got != 2 {
		t.Fatalf("expected 2 deliveries for CRITICAL, got %d", got)
	}
}

func TestLowSeverityThrottledWithinWindow(t *testing.T) {
	t.Parallel()

	sender := &captureSender{channel: ChannelWebsocket}
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := clock.Func(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	})
	dispatcher := NewDispatcherWithSenders([]ChannelSender{sender}, testLogger(), tick)

	alert := testAlert(domain.SeverityLow)
	dispatcher.SendNotifications(context.Background(), alert, nil)
	dispatcher.SendNotifications(context.Background(), alert, nil)
	if got := sender.count(); got != 1 {
		t.Fatalf("expected second LOW dispatch throttled, got %d deliveries", got)
	}

	mu.Lock()
	current = current.Add(901 * time.Second)
	mu.Unlock()
	dispatcher.SendNotifications(context.Background(), alert, nil)
	if got := sender.count(); got != 2 {
		t.Fatalf("expected delivery after throttle window, got %d", got)
	}
}

func TestThrottleSkipDoesNotStampTimestamp(t *testing.T) {
	t.Parallel()

	sender := &captureSender{channel: ChannelWebsocket}
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := clock.Func(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	})
	dispatcher := NewDispatcherWithSenders([]ChannelSender{sender}, testLogger(), tick)

	alert := testAlert(domain.SeverityHigh)
	dispatcher.SendNotifications(context.Background(), alert, nil)

	advance := func(d time.Duration) {
		mu.Lock()
		current = current.Add(d)
		mu.Unlock()
	}

	// Two throttled attempts must not extend the window: 30s + 31s past the
	// first send crosses the 60s interval even though the second attempt was
	// only 31s before the third.
	advance(30 * time.Second)
	dispatcher.SendNotifications(context.Background(), alert, nil)
	advance(31 * time.Second)
	dispatcher.SendNotifications(context.Background(), alert, nil)

	if got := sender.count(); got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
}

func TestChannelSelectionBySeverity(t *testing.T) {
	t.Parallel()

	senders := []ChannelSender{
		&captureSender{channel: ChannelWebsocket},
		&captureSender{channel: ChannelEmail},
		&captureSender{channel: ChannelSlack},
		&captureSender{channel: ChannelPush},
		&captureSender{channel: ChannelTelegram},
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := NewDispatcherWithSenders(senders, testLogger(), fixedClock(now))

	cases := []struct {
		name      string
		severity  domain.Severity
		requested []string
		want      []string
	}{
		{"medium", domain.SeverityMedium, nil, []string{ChannelWebsocket}},
		{"high", domain.SeverityHigh, nil, []string{ChannelWebsocket, ChannelEmail}},
		{"critical", domain.SeverityCritical, nil,
			[]string{ChannelWebsocket, ChannelEmail, ChannelSlack, ChannelPush}},
		{"rule channels union", domain.SeverityMedium, []string{"telegram"},
			[]string{ChannelWebsocket, ChannelTelegram}},
	}
	for _, tc := range cases {
		got := dispatcher.selectChannels(tc.severity, tc.requested)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: expected channels %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestChannelFailureDoesNotAbortOthers(t *testing.T) {
	t.Parallel()

	broken := &failingSender{channel: ChannelWebsocket, err: errors.New("socket down")}
	healthy := &captureSender{channel: ChannelEmail}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := NewDispatcherWithSenders([]ChannelSender{broken, healthy}, testLogger(), fixedClock(now))

	dispatcher.SendNotifications(context.Background(), testAlert(domain.SeverityCritical), nil)

	if broken.callCount() != 1 {
		t.Fatalf("expected broken channel attempted once, got %d", broken.callCount())
	}
	if healthy.count() != 1 {
		t.Fatalf("expected healthy channel delivered despite failure, got %d", healthy.count())
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	sender := &failingSender{
		channel: ChannelPush,
		err:     permanent.Mark(errors.New("payload rejected")),
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := NewDispatcherWithSenders([]ChannelSender{sender}, testLogger(), fixedClock(now))
	dispatcher.retries[ChannelPush] = config.NotifyRetry{
		Enabled:     true,
		MaxAttempts: 5,
		Backoff:     "exponential",
		InitialMS:   1,
		MaxMS:       2,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := dispatcher.sendWithRetry(ctx, sender, testAlert(domain.SeverityCritical), dispatcher.retries[ChannelPush])
	if err == nil {
		t.Fatalf("expected permanent error to surface")
	}
	if sender.callCount() != 1 {
		t.Fatalf("expected exactly one attempt for permanent error, got %d", sender.callCount())
	}
}

func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()

	sender := &flakySender{channel: ChannelSlack, failures: 2}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := NewDispatcherWithSenders([]ChannelSender{sender}, testLogger(), fixedClock(now))
	retry := config.NotifyRetry{
		Enabled:     true,
		MaxAttempts: 5,
		Backoff:     "exponential",
		InitialMS:   1,
		MaxMS:       2,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := dispatcher.sendWithRetry(ctx, sender, testAlert(domain.SeverityCritical), retry); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if sender.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", sender.calls)
	}
}

type flakySender struct {
	channel  string
	failures int
	calls    int
}

func (s *flakySender) Channel() string { return s.channel }

func (s *flakySender) Send(_ context.Context, _ domain.Alert) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("temporary error")
	}
	return nil
}

func TestFormatMessageIncludesNumericContext(t *testing.T) {
	t.Parallel()

	value := 92.5
	threshold := 85.0
	alert := testAlert(domain.SeverityHigh)
	alert.MetricValue = &value
	alert.Threshold = &threshold
	alert.Count = 3

	got := FormatMessage(alert)
	want := "[HIGH] High CPU\ncpu above threshold\ncomponent: api\nvalue: 92.50 (threshold: 85.00)\noccurrences: 3"
	if got != want {
		t.Fatalf("unexpected message:\n got: %q\nwant: %q", got, want)
	}
}
