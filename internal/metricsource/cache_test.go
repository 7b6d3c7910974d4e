package metricsource

import (
	"context"
	"testing"
	"time"

	"alertengine/internal/clock"
)

func TestCacheReturnsLatestSample(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache(5*time.Minute, clock.Func(func() time.Time { return now }))

	cache.Observe("cpu_usage", 42, now.Add(-time.Minute))
	cache.Observe("cpu_usage", 85, now)

	value, err := cache.GetCurrentMetric(context.Background(), "cpu_usage")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != 85 {
		t.Fatalf("expected latest sample 85, got %v", value)
	}
}

func TestCacheRejectsUnknownMetric(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache(5*time.Minute, clock.Func(func() time.Time { return now }))

	if _, err := cache.GetCurrentMetric(context.Background(), "memory_usage"); err == nil {
		t.Fatalf("expected error for unknown metric")
	}
}

func TestCacheRejectsStaleSample(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache(5*time.Minute, clock.Func(func() time.Time { return now }))

	cache.Observe("cpu_usage", 85, now.Add(-6*time.Minute))
	if _, err := cache.GetCurrentMetric(context.Background(), "cpu_usage"); err == nil {
		t.Fatalf("expected stale sample rejected")
	}

	// Zero staleness window disables the check.
	open := NewCache(0, clock.Func(func() time.Time { return now }))
	open.Observe("cpu_usage", 85, now.Add(-time.Hour))
	if _, err := open.GetCurrentMetric(context.Background(), "cpu_usage"); err != nil {
		t.Fatalf("expected no staleness check, got %v", err)
	}
}
