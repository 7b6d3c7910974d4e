package manager

import (
	"context"
	"testing"
	"time"

	"alertengine/internal/domain"
)

func TestStatsTotalsAndBreakdowns(t *testing.T) {
	t.Parallel()

	mgr, _, clk := newTestManager(t)
	ctx := context.Background()

	active := cpuDraft()
	if _, err := mgr.CreateAlert(ctx, active); err != nil {
		t.Fatalf("create active: %v", err)
	}

	clk.advance(time.Second)
	global := cpuDraft()
	global.Type = domain.TypeServiceDown
	global.Severity = domain.SeverityCritical
	global.Component = ""
	toResolve, err := mgr.CreateAlert(ctx, global)
	if err != nil {
		t.Fatalf("create global: %v", err)
	}
	clk.advance(10 * time.Minute)
	if _, err := mgr.ResolveAlert(ctx, toResolve.ID, "oncall"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stats, err := mgr.GetAlertStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	if stats.TotalActive != 1 {
		t.Fatalf("expected 1 active, got %d", stats.TotalActive)
	}
	if stats.TotalResolved != 1 {
		t.Fatalf("expected 1 resolved, got %d", stats.TotalResolved)
	}
	if stats.BySeverity[domain.SeverityHigh] != 1 || stats.BySeverity[domain.SeverityCritical] != 1 {
		t.Fatalf("unexpected severity breakdown: %v", stats.BySeverity)
	}
	if len(stats.BySeverity) != 2 {
		t.Fatalf("expected only observed severities, got %v", stats.BySeverity)
	}
	if stats.ByType[domain.TypeHighCPUUsage] != 1 || stats.ByType[domain.TypeServiceDown] != 1 {
		t.Fatalf("unexpected type breakdown: %v", stats.ByType)
	}
	if _, ok := stats.ByComponent[""]; ok {
		t.Fatalf("blank component must be excluded: %v", stats.ByComponent)
	}
	if stats.ByComponent["SYSTEM_RESOURCES"] != 1 {
		t.Fatalf("unexpected component breakdown: %v", stats.ByComponent)
	}
}

func TestStatsAverageResolutionTime(t *testing.T) {
	t.Parallel()

	mgr, _, clk := newTestManager(t)
	ctx := context.Background()

	first, err := mgr.CreateAlert(ctx, cpuDraft())
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	clk.advance(10 * time.Minute)
	if _, err := mgr.ResolveAlert(ctx, first.ID, "oncall"); err != nil {
		t.Fatalf("resolve first: %v", err)
	}

	other := cpuDraft()
	other.Type = domain.TypeQueueBacklog
	second, err := mgr.CreateAlert(ctx, other)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	clk.advance(30 * time.Minute)
	if _, err := mgr.ResolveAlert(ctx, second.ID, "oncall"); err != nil {
		t.Fatalf("resolve second: %v", err)
	}

	stats, err := mgr.GetAlertStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	// First resolved after 10m, second after 30m: mean 20m.
	if stats.AvgResolutionTime != 20*time.Minute {
		t.Fatalf("expected avg 20m, got %s", stats.AvgResolutionTime)
	}
}

func TestStatsAverageZeroWithoutResolutions(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.CreateAlert(ctx, cpuDraft()); err != nil {
		t.Fatalf("create: %v", err)
	}
	stats, err := mgr.GetAlertStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.AvgResolutionTime != 0 {
		t.Fatalf("expected zero average, got %s", stats.AvgResolutionTime)
	}
}

func TestStatsTrends(t *testing.T) {
	t.Parallel()

	mgr, _, clk := newTestManager(t)
	ctx := context.Background()

	// Alert created yesterday at 09:00.
	base := clk.Now()
	clk.advance(-27 * time.Hour)
	if _, err := mgr.CreateAlert(ctx, cpuDraft()); err != nil {
		t.Fatalf("create yesterday: %v", err)
	}

	// Two alerts created today at 12:00.
	clk.advance(base.Sub(clk.Now()))
	today := cpuDraft()
	today.Type = domain.TypeQueueBacklog
	if _, err := mgr.CreateAlert(ctx, today); err != nil {
		t.Fatalf("create today 1: %v", err)
	}
	other := cpuDraft()
	other.Type = domain.TypeServiceDown
	if _, err := mgr.CreateAlert(ctx, other); err != nil {
		t.Fatalf("create today 2: %v", err)
	}

	stats, err := mgr.GetAlertStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	daily := stats.Trends.Daily
	if len(daily) != 7 {
		t.Fatalf("expected 7 daily buckets, got %d", len(daily))
	}
	if daily[6].Date != clk.Now().Format("2006-01-02") {
		t.Fatalf("last bucket must be today, got %s", daily[6].Date)
	}
	if daily[6].Count != 2 {
		t.Fatalf("expected 2 alerts today, got %d", daily[6].Count)
	}
	if daily[5].Count != 1 {
		t.Fatalf("expected 1 alert yesterday, got %d", daily[5].Count)
	}

	hourly := stats.Trends.Hourly
	if len(hourly) != 24 {
		t.Fatalf("expected 24 hourly buckets, got %d", len(hourly))
	}
	if hourly[12].Count != 2 {
		t.Fatalf("expected 2 alerts in hour 12, got %d", hourly[12].Count)
	}
	if hourly[9].Count != 1 {
		t.Fatalf("expected 1 alert in hour 9, got %d", hourly[9].Count)
	}
}
