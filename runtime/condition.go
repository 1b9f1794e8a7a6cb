package runtime

import (
	"strconv"
	"strings"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpGreater   Operator = "greater"
	OpLess      Operator = "less"
	OpContains  Operator = "contains"
	OpExists    Operator = "exists"
	OpNotExists Operator = "not_exists"
)

// ValidOperator reports whether op is one of the supported operators.
func ValidOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreater, OpLess, OpContains, OpExists, OpNotExists:
		return true
	}
	return false
}

// EvaluateCondition is the pure predicate behind condition nodes and choice
// visibility. exists reports variable presence in the store; for exists/
// not_exists the comparand is ignored. greater/less require both sides to
// parse numerically and evaluate to false otherwise; conditions gate story
// flow and must never abort it.
func EvaluateCondition(value string, op Operator, comparand string, exists bool) bool {
	switch op {
	case OpExists:
		return exists
	case OpNotExists:
		return !exists
	}
	if !exists {
		return false
	}
	switch op {
	case OpEquals:
		return valuesEqual(value, comparand)
	case OpNotEquals:
		return !valuesEqual(value, comparand)
	case OpGreater:
		a, b, ok := bothNumeric(value, comparand)
		return ok && a > b
	case OpLess:
		a, b, ok := bothNumeric(value, comparand)
		return ok && a < b
	case OpContains:
		return strings.Contains(value, comparand)
	}
	return false
}

// valuesEqual compares numerically when both sides parse as numbers, so
// "5" equals "5.0"; otherwise it falls back to string equality.
func valuesEqual(a, b string) bool {
	if fa, fb, ok := bothNumeric(a, b); ok {
		return fa == fb
	}
	return a == b
}

func bothNumeric(a, b string) (float64, float64, bool) {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return fa, fb, true
}
