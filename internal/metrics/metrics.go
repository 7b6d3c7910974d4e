// Package metrics exposes Prometheus collectors for the alert engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsCreated counts newly minted alert records.
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertengine_alerts_created_total",
		Help: "Total number of new alerts created",
	}, []string{"severity", "type"})

	// AlertsDeduplicated counts create requests folded into an ACTIVE alert.
	AlertsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertengine_alerts_deduplicated_total",
		Help: "Total number of duplicate alert creations merged by dedup key",
	}, []string{"type"})

	// AlertTransitions counts lifecycle transitions by target status.
	AlertTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertengine_alert_transitions_total",
		Help: "Total number of alert state transitions",
	}, []string{"status"})

	// ActiveAlerts tracks currently ACTIVE alerts by severity.
	ActiveAlerts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alertengine_active_alerts",
		Help: "Number of currently active alerts",
	}, []string{"severity"})

	// NotificationsSent counts successful channel deliveries.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertengine_notifications_sent_total",
		Help: "Total number of notifications delivered per channel",
	}, []string{"channel"})

	// NotificationsFailed counts channel deliveries that exhausted retries.
	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertengine_notifications_failed_total",
		Help: "Total number of failed notification deliveries per channel",
	}, []string{"channel"})

	// NotificationsThrottled counts dispatch attempts skipped by throttle window.
	NotificationsThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertengine_notifications_throttled_total",
		Help: "Total number of notification dispatches skipped by throttling",
	}, []string{"severity"})

	// RuleEvaluations counts per-rule evaluation outcomes.
	RuleEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertengine_rule_evaluations_total",
		Help: "Total number of rule evaluations by outcome",
	}, []string{"outcome"})

	// EvaluationDuration observes one full rule sweep duration.
	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alertengine_evaluation_duration_seconds",
		Help:    "Duration of one rule evaluation sweep",
		Buckets: prometheus.DefBuckets,
	})
)

// Rule evaluation outcome labels.
const (
	OutcomeFired       = "fired"
	OutcomeSkipped     = "skipped"
	OutcomeResolved    = "auto_resolved"
	OutcomeNoMatch     = "no_match"
	OutcomeFetchError  = "fetch_error"
	OutcomeCreateError = "create_error"
)
