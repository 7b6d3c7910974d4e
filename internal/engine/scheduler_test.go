package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"alertengine/internal/clock"
	"alertengine/internal/domain"
	"alertengine/internal/manager"
	"alertengine/internal/store"
)

func newRealTimeScheduler(t *testing.T, interval time.Duration) (*Scheduler, *manager.Manager, *stubSource) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memStore := store.NewMemoryStore()
	mgr := manager.New(memStore, nil, logger, clock.RealClock{})
	source := &stubSource{values: map[string]float64{}, errs: map[string]error{}}
	eng := New(memStore, source, mgr, NewCooldownStore(), logger, clock.RealClock{})

	if err := memStore.PutRule(context.Background(), cpuRule()); err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	return NewScheduler(eng, interval, logger), mgr, source
}

func waitForActiveAlert(t *testing.T, mgr *manager.Manager) domain.Alert {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		page, err := mgr.GetAlerts(context.Background(), domain.Filters{
			Statuses: []domain.Status{domain.StatusActive},
		}, domain.Page{})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(page.Alerts) > 0 {
			return page.Alerts[0]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no alert fired before deadline")
	return domain.Alert{}
}

func TestSchedulerRunsImmediateEvaluation(t *testing.T) {
	t.Parallel()

	scheduler, mgr, source := newRealTimeScheduler(t, time.Hour)
	source.set("cpu_usage", 95)

	scheduler.StartMonitoring()
	defer scheduler.StopMonitoring()

	alert := waitForActiveAlert(t, mgr)
	if alert.Type != domain.TypeHighCPUUsage {
		t.Fatalf("unexpected alert type %s", alert.Type)
	}
}

// blockingSource parks the first metric fetch until released, so tests can
// hold an evaluation pass in flight.
type blockingSource struct {
	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
	value     float64
}

func (s *blockingSource) GetCurrentMetric(ctx context.Context, _ string) (float64, error) {
	s.enterOnce.Do(func() { close(s.entered) })
	select {
	case <-s.release:
		return s.value, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestStopLetsInFlightPassFinish(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memStore := store.NewMemoryStore()
	mgr := manager.New(memStore, nil, logger, clock.RealClock{})
	source := &blockingSource{entered: make(chan struct{}), release: make(chan struct{}), value: 95}
	eng := New(memStore, source, mgr, NewCooldownStore(), logger, clock.RealClock{})
	if err := memStore.PutRule(context.Background(), cpuRule()); err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	scheduler := NewScheduler(eng, time.Hour, logger)

	scheduler.StartMonitoring()
	select {
	case <-source.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("evaluation pass never reached the metric source")
	}

	stopped := make(chan struct{})
	go func() {
		scheduler.StopMonitoring()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatalf("stop returned while a pass was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(source.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return after the pass finished")
	}

	// Stopping only prevents new ticks; the pass underway still fires.
	page, err := mgr.GetAlerts(context.Background(), domain.Filters{}, domain.Page{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Total != 1 || page.Alerts[0].Type != domain.TypeHighCPUUsage {
		t.Fatalf("expected the in-flight pass to fire its alert, got total=%d", page.Total)
	}
}

func TestSchedulerStartAndStopAreIdempotent(t *testing.T) {
	t.Parallel()

	scheduler, _, source := newRealTimeScheduler(t, 10*time.Millisecond)
	source.set("cpu_usage", 10)

	scheduler.StartMonitoring()
	scheduler.StartMonitoring()

	time.Sleep(50 * time.Millisecond)

	scheduler.StopMonitoring()
	scheduler.StopMonitoring()

	// Restart after stop must work as well.
	scheduler.StartMonitoring()
	scheduler.StopMonitoring()
}
