// Package engine evaluates declarative alert rules against live metric
// samples, firing alerts through the manager and auto-resolving them when a
// rule's recovery condition holds.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"alertengine/internal/clock"
	"alertengine/internal/domain"
	"alertengine/internal/metrics"
	"alertengine/internal/store"
)

// ruleEngineSource marks alerts created by rule evaluation.
const ruleEngineSource = "rule-engine"

// autoResolverUser is the synthetic user recorded on auto-resolved alerts.
const autoResolverUser = "auto-resolver"

// MetricSource samples one named metric on demand.
// Params: context and metric name.
// Returns: current value or a fetch error.
type MetricSource interface {
	GetCurrentMetric(ctx context.Context, name string) (float64, error)
}

// AlertService is the manager surface the engine drives.
// Params: alert creation, rule-scoped active lookup, and resolution.
// Returns: lifecycle operations used during evaluation.
type AlertService interface {
	CreateAlert(ctx context.Context, draft domain.Draft) (domain.Alert, error)
	ActiveAlertsForRule(ctx context.Context, ruleID string) ([]domain.Alert, error)
	ResolveAlert(ctx context.Context, id, userID string) (domain.Alert, error)
}

// RuleEngine runs one evaluation pass over all enabled rules.
// Params: rule store, metric source, alert service, cooldowns, logger, clock.
// Returns: per-rule isolated evaluation; one bad rule never stops the rest.
type RuleEngine struct {
	rules     store.AlertStore
	source    MetricSource
	alerts    AlertService
	cooldowns *CooldownStore
	logger    *slog.Logger
	clock     clock.Clock
}

// New creates the rule engine.
// Params: rule store, metric source, alert service, cooldown store, logger,
// and clock.
// Returns: engine ready for evaluation ticks.
func New(rules store.AlertStore, source MetricSource, alerts AlertService, cooldowns *CooldownStore, logger *slog.Logger, clk clock.Clock) *RuleEngine {
	return &RuleEngine{
		rules:     rules,
		source:    source,
		alerts:    alerts,
		cooldowns: cooldowns,
		logger:    logger,
		clock:     clk,
	}
}

// EvaluateRules runs one pass over every enabled rule. Rule listing failure
// aborts the pass; any single rule's failure is logged and skipped.
// Params: context.
// Returns: rule listing error only.
func (e *RuleEngine) EvaluateRules(ctx context.Context) error {
	start := e.clock.Now()
	defer func() {
		metrics.EvaluationDuration.Observe(e.clock.Now().Sub(start).Seconds())
	}()

	rules, err := e.rules.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		e.evaluateRule(ctx, rule)
	}
	return nil
}

// evaluateRule applies cooldown, condition, and auto-resolve logic to one rule.
// Params: context and rule.
// Returns: nothing; failures are logged and counted.
func (e *RuleEngine) evaluateRule(ctx context.Context, rule domain.AlertRule) {
	now := e.clock.Now()
	if !e.cooldowns.Ready(rule.ID, rule.CooldownPeriod, now) {
		metrics.RuleEvaluations.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return
	}

	value, err := e.source.GetCurrentMetric(ctx, rule.Condition.Metric)
	if err != nil {
		metrics.RuleEvaluations.WithLabelValues(metrics.OutcomeFetchError).Inc()
		e.logger.Warn("metric fetch failed",
			"rule", rule.ID, "metric", rule.Condition.Metric, "error", err.Error())
		return
	}

	met, known := evaluateCondition(rule.Condition, value)
	if !known {
		e.logger.Warn("unknown condition operator",
			"rule", rule.ID, "operator", rule.Condition.Operator)
	}

	if met {
		e.fire(ctx, rule, value)
		return
	}
	if rule.AutoResolve && rule.AutoResolveCondition != nil {
		e.autoResolve(ctx, rule, value)
		return
	}
	metrics.RuleEvaluations.WithLabelValues(metrics.OutcomeNoMatch).Inc()
}

// fire creates the alert for a met condition and stamps the cooldown.
// Params: context, rule, and sampled metric value.
// Returns: nothing; creation failure leaves the cooldown unstamped so the
// next tick retries.
func (e *RuleEngine) fire(ctx context.Context, rule domain.AlertRule, value float64) {
	metricValue := value
	threshold := rule.Condition.Value
	draft := domain.Draft{
		Type:      rule.AlertType,
		Severity:  rule.Severity,
		Component: rule.Component,
		Source:    ruleEngineSource,
		Title:     rule.Name,
		Message: fmt.Sprintf("%s: metric %s is %.2f (threshold %.2f)",
			rule.Name, rule.Condition.Metric, value, threshold),
		MetricValue: &metricValue,
		Threshold:   &threshold,
		Metadata:    map[string]string{domain.MetadataRuleID: rule.ID},
		Channels:    rule.NotificationChannels,
	}

	if _, err := e.alerts.CreateAlert(ctx, draft); err != nil {
		metrics.RuleEvaluations.WithLabelValues(metrics.OutcomeCreateError).Inc()
		e.logger.Error("rule alert creation failed", "rule", rule.ID, "error", err.Error())
		return
	}

	e.cooldowns.MarkFired(rule.ID, e.clock.Now())
	metrics.RuleEvaluations.WithLabelValues(metrics.OutcomeFired).Inc()
	e.logger.Info("rule fired",
		"rule", rule.ID, "metric", rule.Condition.Metric, "value", value)
}

// autoResolve closes the rule's ACTIVE alerts when the recovery condition holds.
// Params: context, rule, and sampled metric value.
// Returns: nothing; per-alert failures are logged individually.
func (e *RuleEngine) autoResolve(ctx context.Context, rule domain.AlertRule, value float64) {
	met, known := evaluateCondition(*rule.AutoResolveCondition, value)
	if !known {
		e.logger.Warn("unknown auto-resolve operator",
			"rule", rule.ID, "operator", rule.AutoResolveCondition.Operator)
	}
	if !met {
		metrics.RuleEvaluations.WithLabelValues(metrics.OutcomeNoMatch).Inc()
		return
	}

	active, err := e.alerts.ActiveAlertsForRule(ctx, rule.ID)
	if err != nil {
		e.logger.Error("active alert lookup failed", "rule", rule.ID, "error", err.Error())
		return
	}
	if len(active) == 0 {
		metrics.RuleEvaluations.WithLabelValues(metrics.OutcomeNoMatch).Inc()
		return
	}

	resolved := 0
	for _, alert := range active {
		if _, err := e.alerts.ResolveAlert(ctx, alert.ID, autoResolverUser); err != nil {
			e.logger.Error("auto-resolve failed",
				"rule", rule.ID, "alert", alert.ID, "error", err.Error())
			continue
		}
		resolved++
	}
	if resolved > 0 {
		metrics.RuleEvaluations.WithLabelValues(metrics.OutcomeResolved).Inc()
		e.logger.Info("rule auto-resolved alerts",
			"rule", rule.ID, "count", resolved, "metric", rule.Condition.Metric, "value", value)
	}
}
