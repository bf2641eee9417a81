package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 {
	return &v
}

func TestConditionEvaluate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	fields := map[string]any{
		"score":             85.0,
		"city":              "Austin",
		"source":            "zillow_premium",
		"last_contacted_at": now.Add(-10 * 24 * time.Hour),
	}

	cases := []struct {
		name      string
		condition Condition
		want      bool
	}{
		{"range inside", Condition{Op: CONDITION_RANGE, Field: "score", Min: f64(70), Max: f64(90), Weight: 1}, true},
		{"range min is inclusive", Condition{Op: CONDITION_RANGE, Field: "score", Min: f64(85), Weight: 1}, true},
		{"range below min", Condition{Op: CONDITION_RANGE, Field: "score", Min: f64(90), Weight: 1}, false},
		{"range above max", Condition{Op: CONDITION_RANGE, Field: "score", Max: f64(80), Weight: 1}, false},
		{"equals ignores case", Condition{Op: CONDITION_EQUALS, Field: "city", Value: "austin", Weight: 1}, true},
		{"equals mismatch", Condition{Op: CONDITION_EQUALS, Field: "city", Value: "Denver", Weight: 1}, false},
		{"contains substring", Condition{Op: CONDITION_CONTAINS, Field: "source", Value: "zillow", Weight: 1}, true},
		{"contains mismatch", Condition{Op: CONDITION_CONTAINS, Field: "source", Value: "realtor", Weight: 1}, false},
		{"days since elapsed", Condition{Op: CONDITION_DAYS_SINCE, Field: "last_contacted_at", Days: 7, Weight: 1}, true},
		{"days since not elapsed", Condition{Op: CONDITION_DAYS_SINCE, Field: "last_contacted_at", Days: 30, Weight: 1}, false},
		{"missing field never matches", Condition{Op: CONDITION_EQUALS, Field: "budget", Value: "x", Weight: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.condition.Evaluate(fields, now))
		})
	}
}

func TestConditionValidate(t *testing.T) {
	require.NoError(t, Condition{Op: CONDITION_RANGE, Field: "score", Min: f64(1), Weight: 1}.Validate())

	require.Error(t, Condition{Op: CONDITION_RANGE, Field: "score", Weight: 1}.Validate())
	require.Error(t, Condition{Op: CONDITION_EQUALS, Field: "city", Weight: 1}.Validate())
	require.Error(t, Condition{Op: CONDITION_DAYS_SINCE, Field: "created_at", Days: 0, Weight: 1}.Validate())
	require.Error(t, Condition{Op: "regex", Field: "city", Value: "a", Weight: 1}.Validate())
	require.Error(t, Condition{Op: CONDITION_EQUALS, Field: "", Value: "a", Weight: 1}.Validate())
	require.Error(t, Condition{Op: CONDITION_EQUALS, Field: "city", Value: "a", Weight: 0}.Validate())
}

func TestParseConditions(t *testing.T) {
	conditions, err := ParseConditions([]byte(`[
		{"op": "range", "field": "score", "min": 70, "weight": 2},
		{"op": "days_since", "field": "last_contacted_at", "days": 14, "weight": 1}
	]`))
	require.NoError(t, err)
	require.Len(t, conditions, 2)
	require.Equal(t, CONDITION_RANGE, conditions[0].Op)

	_, err = ParseConditions([]byte(`[{"op": "regex", "field": "city", "value": "a", "weight": 1}]`))
	require.Error(t, err)

	_, err = ParseConditions([]byte(`not json`))
	require.Error(t, err)
}

func TestValidateVariantWeights(t *testing.T) {
	require.NoError(t, ValidateVariantWeights([]TemplateVariant{
		{Name: "a", Weight: 0.5},
		{Name: "b", Weight: 0.5},
	}))
	require.Error(t, ValidateVariantWeights(nil))
	require.Error(t, ValidateVariantWeights([]TemplateVariant{{Name: "a", Weight: 0.5}}))
	require.Error(t, ValidateVariantWeights([]TemplateVariant{{Name: "a", Weight: 1.5}}))
	require.Error(t, ValidateVariantWeights([]TemplateVariant{{Name: "a", Weight: 0.7}, {Name: "b", Weight: 0.7}}))
}
