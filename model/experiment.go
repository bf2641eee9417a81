package model

import (
	"fmt"
	"math"
	"time"
)

type ExperimentStatus string

const EXPERIMENT_DRAFT ExperimentStatus = "draft"
const EXPERIMENT_RUNNING ExperimentStatus = "running"
const EXPERIMENT_COMPLETED ExperimentStatus = "completed"

// Experiment is an A/B test over one template's content.
type Experiment struct {
	Id         string           `json:"id"`
	TemplateId string           `json:"templateId"`
	Name       string           `json:"name"`
	Status     ExperimentStatus `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// TemplateVariant is one arm of an experiment. Weights across the variants
// of one experiment must sum to 1.0.
type TemplateVariant struct {
	Id              string  `json:"id"`
	TemplateId      string  `json:"templateId"`
	Name            string  `json:"name"`
	Weight          float64 `json:"weight"`
	IsControl       bool    `json:"isControl"`
	SubjectTemplate *string `json:"subjectTemplate"`
	ContentTemplate string  `json:"contentTemplate"`
}

// ExperimentAssignment pins a lead to one variant for the life of the
// experiment. Rows are written once and never reassigned; only the
// conversion fields are updated afterwards.
type ExperimentAssignment struct {
	ExperimentId       string   `json:"experimentId"`
	VariantId          string   `json:"variantId"`
	LeadId             string   `json:"leadId"`
	MetricValue        *float64 `json:"metricValue"`
	ConversionOccurred bool     `json:"conversionOccurred"`
}

const weightEpsilon = 1e-6

// ValidateVariantWeights checks that every weight is in (0,1] and that the
// weights sum to 1.0 within epsilon.
func ValidateVariantWeights(variants []TemplateVariant) error {
	if len(variants) == 0 {
		return fmt.Errorf("experiment requires at least one variant")
	}
	sum := 0.0
	for _, v := range variants {
		if v.Weight <= 0 || v.Weight > 1 {
			return fmt.Errorf("variant %s weight %f out of range (0,1]", v.Name, v.Weight)
		}
		sum += v.Weight
	}
	if math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("variant weights sum to %f, expected 1.0", sum)
	}
	return nil
}
