package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ConditionOp string

const CONDITION_RANGE ConditionOp = "range"
const CONDITION_EQUALS ConditionOp = "equals"
const CONDITION_CONTAINS ConditionOp = "contains"
const CONDITION_DAYS_SINCE ConditionOp = "days_since"

// Condition is one predicate of a personalization rule. The Op tag selects
// the variant; conditions are validated once when the rule is stored and
// evaluated by exhaustive switch afterwards.
type Condition struct {
	Op     ConditionOp `json:"op"`
	Field  string      `json:"field"`
	Min    *float64    `json:"min,omitempty"`
	Max    *float64    `json:"max,omitempty"`
	Value  string      `json:"value,omitempty"`
	Days   int         `json:"days,omitempty"`
	Weight float64     `json:"weight"`
}

func (c Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("condition %s requires a field", c.Op)
	}
	if c.Weight <= 0 {
		return fmt.Errorf("condition on %s requires a positive weight", c.Field)
	}
	switch c.Op {
	case CONDITION_RANGE:
		if c.Min == nil && c.Max == nil {
			return fmt.Errorf("range condition on %s requires min or max", c.Field)
		}
	case CONDITION_EQUALS, CONDITION_CONTAINS:
		if c.Value == "" {
			return fmt.Errorf("%s condition on %s requires a value", c.Op, c.Field)
		}
	case CONDITION_DAYS_SINCE:
		if c.Days <= 0 {
			return fmt.Errorf("days_since condition on %s requires positive days", c.Field)
		}
	default:
		return fmt.Errorf("unknown condition op %q", c.Op)
	}
	return nil
}

// Evaluate reports whether the condition holds against the given field set.
// Missing fields never satisfy a condition.
func (c Condition) Evaluate(fields map[string]any, now time.Time) bool {
	v, ok := fields[c.Field]
	if !ok || v == nil {
		return false
	}
	switch c.Op {
	case CONDITION_RANGE:
		n, ok := toFloat(v)
		if !ok {
			return false
		}
		if c.Min != nil && n < *c.Min {
			return false
		}
		if c.Max != nil && n > *c.Max {
			return false
		}
		return true
	case CONDITION_EQUALS:
		return strings.EqualFold(fmt.Sprintf("%v", v), c.Value)
	case CONDITION_CONTAINS:
		return strings.Contains(strings.ToLower(fmt.Sprintf("%v", v)), strings.ToLower(c.Value))
	case CONDITION_DAYS_SINCE:
		t, ok := toTime(v)
		if !ok {
			return false
		}
		return now.Sub(t) >= time.Duration(c.Days)*24*time.Hour
	}
	return false
}

// ParseConditions decodes and validates a JSON condition list. Used at rule
// creation so evaluation never sees a malformed condition.
func ParseConditions(raw []byte) ([]Condition, error) {
	var conditions []Condition
	if err := json.Unmarshal(raw, &conditions); err != nil {
		return nil, fmt.Errorf("invalid conditions json: %w", err)
	}
	for _, c := range conditions {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return conditions, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}
