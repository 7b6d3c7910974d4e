package domain

import "time"

// Filters restricts alert queries; empty slices impose no restriction.
// Params: severity/status/component/type sets and inclusive CreatedAt range.
// Returns: AND-combined predicate over stored alerts.
type Filters struct {
	Severities []Severity
	Statuses   []Status
	Components []string
	Types      []AlertType
	From       *time.Time
	To         *time.Time
}

// Match reports whether one alert satisfies every present filter.
// Params: candidate alert.
// Returns: true when all set filters accept the alert.
func (f Filters) Match(alert Alert) bool {
	if len(f.Severities) > 0 && !containsValue(f.Severities, alert.Severity) {
		return false
	}
	if len(f.Statuses) > 0 && !containsValue(f.Statuses, alert.Status) {
		return false
	}
	if len(f.Components) > 0 && !containsValue(f.Components, alert.Component) {
		return false
	}
	if len(f.Types) > 0 && !containsValue(f.Types, alert.Type) {
		return false
	}
	if f.From != nil && alert.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && alert.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func containsValue[T comparable](values []T, candidate T) bool {
	for _, value := range values {
		if value == candidate {
			return true
		}
	}
	return false
}

// Page selects one 1-indexed slice of a filtered result set.
// Params: page number and fixed page size; zero values disable pagination.
// Returns: pagination window for alert queries.
type Page struct {
	Number int
	Limit  int
}

// AlertPage is one query result with its pre-pagination total.
// Params: page slice ordered by CreatedAt descending and filtered count.
// Returns: query response for the external read layer.
type AlertPage struct {
	Alerts []Alert
	Total  int
}

// DailyTrendPoint counts alerts created on one calendar date.
// Params: date in YYYY-MM-DD form and alert count.
// Returns: one bucket of the 7-day creation trend.
type DailyTrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// HourlyTrendPoint counts alerts created during one hour of day.
// Params: hour index 0-23 and alert count across all days.
// Returns: one bucket of the hour-of-day histogram.
type HourlyTrendPoint struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Trends groups time-bucketed creation statistics.
// Params: 7 daily buckets oldest-first and 24 hourly buckets.
// Returns: trend section of alert statistics.
type Trends struct {
	Daily  []DailyTrendPoint  `json:"daily"`
	Hourly []HourlyTrendPoint `json:"hourly"`
}

// Stats aggregates the whole alert store for dashboards.
// Params: totals, dimension breakdowns, resolution timing, and trends.
// Returns: statistics snapshot computed on demand.
type Stats struct {
	TotalActive       int               `json:"total_active"`
	TotalResolved     int               `json:"total_resolved"`
	BySeverity        map[Severity]int  `json:"by_severity"`
	ByComponent       map[string]int    `json:"by_component"`
	ByType            map[AlertType]int `json:"by_type"`
	AvgResolutionTime time.Duration     `json:"avg_resolution_time"`
	Trends            Trends            `json:"trends"`
}
