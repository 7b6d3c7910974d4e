package manager

import (
	"context"
	"time"

	"alertengine/internal/domain"
)

const (
	dailyTrendDays  = 7
	hoursPerDay     = 24
	trendDateLayout = "2006-01-02"
)

// GetAlertStats aggregates the whole alert store into a dashboard snapshot.
// Breakdowns cover every stored alert; components are omitted when blank,
// and only observed dimension values appear in the maps.
// Params: context.
// Returns: totals, breakdowns, mean resolution time, and creation trends.
func (m *Manager) GetAlertStats(ctx context.Context) (domain.Stats, error) {
	alerts, err := m.store.Query(ctx, domain.Filters{})
	if err != nil {
		return domain.Stats{}, err
	}

	stats := domain.Stats{
		BySeverity:  make(map[domain.Severity]int),
		ByComponent: make(map[string]int),
		ByType:      make(map[domain.AlertType]int),
	}

	var resolvedTotal time.Duration
	var resolvedCount int
	for _, alert := range alerts {
		switch alert.Status {
		case domain.StatusActive:
			stats.TotalActive++
		case domain.StatusResolved:
			stats.TotalResolved++
		}

		stats.BySeverity[alert.Severity]++
		stats.ByType[alert.Type]++
		if alert.Component != "" {
			stats.ByComponent[alert.Component]++
		}

		if alert.ResolvedAt != nil {
			resolvedTotal += alert.ResolvedAt.Sub(alert.CreatedAt)
			resolvedCount++
		}
	}
	if resolvedCount > 0 {
		stats.AvgResolutionTime = resolvedTotal / time.Duration(resolvedCount)
	}

	stats.Trends = m.buildTrends(alerts)
	return stats, nil
}

// buildTrends fills the 7-day creation trend and hour-of-day histogram.
// Daily buckets run oldest to newest ending today; hourly buckets count
// creations per hour of day across all stored alerts.
// Params: all stored alerts.
// Returns: populated trends.
func (m *Manager) buildTrends(alerts []domain.Alert) domain.Trends {
	now := m.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	dailyIndex := make(map[string]int, dailyTrendDays)
	daily := make([]domain.DailyTrendPoint, dailyTrendDays)
	for i := 0; i < dailyTrendDays; i++ {
		date := today.AddDate(0, 0, i-dailyTrendDays+1).Format(trendDateLayout)
		daily[i] = domain.DailyTrendPoint{Date: date}
		dailyIndex[date] = i
	}

	hourly := make([]domain.HourlyTrendPoint, hoursPerDay)
	for i := range hourly {
		hourly[i].Hour = i
	}

	for _, alert := range alerts {
		created := alert.CreatedAt.In(now.Location())
		if idx, ok := dailyIndex[created.Format(trendDateLayout)]; ok {
			daily[idx].Count++
		}
		hourly[created.Hour()].Count++
	}

	return domain.Trends{Daily: daily, Hourly: hourly}
}
