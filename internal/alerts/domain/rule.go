package alerts

import (
	"errors"
	"time"
)

// Condition compares a reading value against a rule threshold.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// Valid returns true when the condition is supported.
func (c Condition) Valid() bool {
	switch c {
	case ConditionAbove, ConditionBelow:
		return true
	default:
		return false
	}
}

// Rule is a user-authored threshold condition on a reading type, scoped to a
// property. The core treats rules as read-only input.
type Rule struct {
	ID          string
	PropertyID  string
	ReadingType string
	Condition   Condition
	Threshold   float64
	Enabled     bool
	CreatedAt   time.Time
}

// Validate checks rule invariants.
func (r Rule) Validate() error {
	if r.ID == "" {
		return errors.New("alert rule: empty id")
	}
	if r.PropertyID == "" {
		return errors.New("alert rule: empty property id")
	}
	if r.ReadingType == "" {
		return errors.New("alert rule: empty reading type")
	}
	if !r.Condition.Valid() {
		return errors.New("alert rule: invalid condition")
	}
	return nil
}

// Triggers reports whether value violates the rule. Equality to the threshold
// never triggers: both conditions are strict inequalities.
func (r Rule) Triggers(value float64) bool {
	switch r.Condition {
	case ConditionAbove:
		return value > r.Threshold
	case ConditionBelow:
		return value < r.Threshold
	default:
		return false
	}
}
