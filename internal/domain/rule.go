package domain

import "time"

// Operator is a numeric comparison in a rule condition.
// Params: six comparison constants.
// Returns: exhaustive operator domain; unknown operators fail closed.
type Operator string

const (
	// OperatorGT matches values strictly above the threshold.
	OperatorGT Operator = "gt"
	// OperatorGTE matches values at or above the threshold.
	OperatorGTE Operator = "gte"
	// OperatorLT matches values strictly below the threshold.
	OperatorLT Operator = "lt"
	// OperatorLTE matches values at or below the threshold.
	OperatorLTE Operator = "lte"
	// OperatorEQ matches values equal to the threshold.
	OperatorEQ Operator = "eq"
	// OperatorNEQ matches values different from the threshold.
	OperatorNEQ Operator = "neq"
)

// Valid reports whether the operator is one of the six comparisons.
// Params: none.
// Returns: true for known operators.
func (o Operator) Valid() bool {
	switch o {
	case OperatorGT, OperatorGTE, OperatorLT, OperatorLTE, OperatorEQ, OperatorNEQ:
		return true
	default:
		return false
	}
}

// Condition compares one named metric against a numeric threshold.
// Params: metric name, operator, threshold value, and optional hold duration.
// Returns: declarative trigger shared by raise and auto-resolve checks.
type Condition struct {
	Metric   string
	Operator Operator
	Value    float64
	Duration time.Duration
}

// AlertRule is a declarative trigger definition read at each evaluation tick.
// Params: trigger condition, delivery channels, cooldown, and auto-resolution.
// Returns: configuration record interpreted by the rule engine.
type AlertRule struct {
	ID                   string
	Name                 string
	Enabled              bool
	AlertType            AlertType
	Severity             Severity
	Component            string
	Condition            Condition
	NotificationChannels []string
	CooldownPeriod       time.Duration
	AutoResolve          bool
	AutoResolveCondition *Condition
}
