package engine

import "alertengine/internal/domain"

// evaluateCondition applies one rule condition to a metric sample.
// Unknown operators fail closed: the condition reports not met and the
// second return value flags the operator as unrecognized.
// Params: condition and sampled metric value.
// Returns: whether the condition holds, and whether the operator was known.
func evaluateCondition(condition domain.Condition, value float64) (bool, bool) {
	switch condition.Operator {
	case domain.OperatorGT:
		return value > condition.Value, true
	case domain.OperatorGTE:
		return value >= condition.Value, true
	case domain.OperatorLT:
		return value < condition.Value, true
	case domain.OperatorLTE:
		return value <= condition.Value, true
	case domain.OperatorEQ:
		return value == condition.Value, true
	case domain.OperatorNEQ:
		return value != condition.Value, true
	default:
		return false, false
	}
}
