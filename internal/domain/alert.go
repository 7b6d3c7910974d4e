package domain

import (
	"strings"
	"time"
)

// Severity is alert importance level ordered from informational to critical.
// Params: five-level severity constants.
// Returns: ordering used by notification channel policy and throttling.
type Severity string

const (
	// SeverityInfo marks informational alerts.
	SeverityInfo Severity = "INFO"
	// SeverityLow marks low-impact alerts.
	SeverityLow Severity = "LOW"
	// SeverityMedium marks degraded-but-working alerts.
	SeverityMedium Severity = "MEDIUM"
	// SeverityHigh marks alerts needing prompt attention.
	SeverityHigh Severity = "HIGH"
	// SeverityCritical marks alerts needing immediate attention.
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Valid reports whether severity is one of the recognized levels.
// Params: none.
// Returns: true for known severity values.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns numeric severity order.
// Params: none.
// Returns: 0 (INFO) through 4 (CRITICAL), -1 for unknown values.
func (s Severity) Rank() int {
	rank, ok := severityRank[s]
	if !ok {
		return -1
	}
	return rank
}

// Status is alert lifecycle state.
// Params: active/acknowledged/resolved/suppressed state constants.
// Returns: state machine values for manager transitions.
type Status string

const (
	// StatusActive indicates an open, unhandled problem.
	StatusActive Status = "ACTIVE"
	// StatusAcknowledged indicates a human has seen the alert.
	StatusAcknowledged Status = "ACKNOWLEDGED"
	// StatusResolved indicates the alert is closed (terminal).
	StatusResolved Status = "RESOLVED"
	// StatusSuppressed indicates the alert is muted until ExpiresAt.
	StatusSuppressed Status = "SUPPRESSED"
)

// Valid reports whether status is one of the recognized lifecycle states.
// Params: none.
// Returns: true for known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusResolved, StatusSuppressed:
		return true
	default:
		return false
	}
}

// AlertType classifies the kind of problem an alert reports.
// Params: registered alert kind constants.
// Returns: dedup dimension and validation domain for drafts.
type AlertType string

const (
	// TypeHighCPUUsage reports CPU saturation.
	TypeHighCPUUsage AlertType = "HIGH_CPU_USAGE"
	// TypeHighMemoryUsage reports memory saturation.
	TypeHighMemoryUsage AlertType = "HIGH_MEMORY_USAGE"
	// TypeHighErrorRate reports elevated request error ratio.
	TypeHighErrorRate AlertType = "HIGH_ERROR_RATE"
	// TypeSlowResponseTime reports latency regression.
	TypeSlowResponseTime AlertType = "SLOW_RESPONSE_TIME"
	// TypeServiceDown reports an unreachable dependency.
	TypeServiceDown AlertType = "SERVICE_DOWN"
	// TypeDatabaseSlowQuery reports slow database statements.
	TypeDatabaseSlowQuery AlertType = "DATABASE_SLOW_QUERY"
	// TypeQueueBacklog reports queue depth above safe limits.
	TypeQueueBacklog AlertType = "QUEUE_BACKLOG"
	// TypeLowDiskSpace reports storage capacity pressure.
	TypeLowDiskSpace AlertType = "LOW_DISK_SPACE"
)

var knownAlertTypes = map[AlertType]struct{}{
	TypeHighCPUUsage:      {},
	TypeHighMemoryUsage:   {},
	TypeHighErrorRate:     {},
	TypeSlowResponseTime:  {},
	TypeServiceDown:       {},
	TypeDatabaseSlowQuery: {},
	TypeQueueBacklog:      {},
	TypeLowDiskSpace:      {},
}

// Valid reports whether the alert type is registered.
// Params: none.
// Returns: true for known alert kinds.
func (t AlertType) Valid() bool {
	_, ok := knownAlertTypes[t]
	return ok
}

// Alert is one observed or ongoing problem instance.
// Params: identity, classification, occurrence counters, and audit stamps.
// Returns: persisted alert record for store and notification layers.
type Alert struct {
	ID             string            `json:"id"`
	Type           AlertType         `json:"type"`
	Severity       Severity          `json:"severity"`
	Status         Status            `json:"status"`
	Component      string            `json:"component,omitempty"`
	Source         string            `json:"source,omitempty"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	MetricValue    *float64          `json:"metric_value,omitempty"`
	Threshold      *float64          `json:"threshold,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Count          int               `json:"count"`
	CreatedAt      time.Time         `json:"created_at"`
	LastOccurrence time.Time         `json:"last_occurrence"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string            `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy     string            `json:"resolved_by,omitempty"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
}

// MetadataRuleID is the metadata key carrying the originating rule id.
const MetadataRuleID = "ruleId"

// DedupKey builds the deterministic identity of one ongoing problem.
// Params: none.
// Returns: sanitized (type, component, source) key path.
func (a Alert) DedupKey() string {
	return BuildDedupKey(a.Type, a.Component, a.Source)
}

// SuppressionExpired reports whether a SUPPRESSED alert outlived its window.
// Params: current time.
// Returns: true when status is SUPPRESSED and ExpiresAt has passed.
func (a Alert) SuppressionExpired(now time.Time) bool {
	if a.Status != StatusSuppressed || a.ExpiresAt == nil {
		return false
	}
	return now.After(*a.ExpiresAt)
}

// BuildDedupKey builds the dedup key path from raw alert dimensions.
// Params: alert type, optional component, and producer source.
// Returns: stable key in the alert/<type>/<component>/<source> namespace.
func BuildDedupKey(alertType AlertType, component, source string) string {
	componentToken := component
	if strings.TrimSpace(componentToken) == "" {
		componentToken = "global"
	}
	var builder strings.Builder
	builder.Grow(len("alert/") + len(alertType) + len(componentToken) + len(source) + 2)
	builder.WriteString("alert/")
	builder.WriteString(sanitizeKeyToken(string(alertType)))
	builder.WriteByte('/')
	builder.WriteString(sanitizeKeyToken(componentToken))
	builder.WriteByte('/')
	builder.WriteString(sanitizeKeyToken(source))
	return builder.String()
}

// sanitizeKeyToken converts key fragments into stable bucket-safe tokens.
// Params: raw value with possible separators.
// Returns: sanitized string with unsupported chars replaced by underscore.
func sanitizeKeyToken(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "_"
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + 32)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Draft is the caller-supplied input for alert creation.
// Params: classification, content, optional numeric context and metadata.
// Returns: validated input consumed by the alert manager.
type Draft struct {
	Type        AlertType
	Severity    Severity
	Component   string
	Source      string
	Title       string
	Message     string
	MetricValue *float64
	Threshold   *float64
	Metadata    map[string]string
	Count       int
	// Channels requests delivery beyond the severity policy, e.g. the
	// channels configured on the originating rule.
	Channels []string
}
