package engine

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/leadflowhq/leadflow/logger"
	"github.com/leadflowhq/leadflow/model"
	"github.com/leadflowhq/leadflow/persistence"
	"go.uber.org/zap"
)

// VariantSelector assigns leads to experiment variants by weighted draw and
// keeps the assignment sticky for the life of the experiment.
type VariantSelector struct {
	storage persistence.Storage
}

func NewVariantSelector(storage persistence.Storage) *VariantSelector {
	return &VariantSelector{storage: storage}
}

// SelectVariant returns the lead's variant for a running experiment. The
// first call draws uniformly against the cumulative variant weights and
// persists the assignment; every later call returns the same variant.
func (v *VariantSelector) SelectVariant(ctx context.Context, experimentId string, leadId string) (*model.TemplateVariant, error) {
	experiment, err := v.storage.GetExperiment(ctx, experimentId)
	if err != nil {
		return nil, err
	}
	if experiment == nil {
		return nil, fmt.Errorf("experiment %s not found", experimentId)
	}
	if experiment.Status != model.EXPERIMENT_RUNNING {
		return nil, fmt.Errorf("experiment %s is not running", experimentId)
	}
	variants, err := v.storage.ListVariants(ctx, experimentId)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("experiment %s has no variants", experimentId)
	}

	existing, err := v.storage.GetAssignment(ctx, experimentId, leadId)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return findVariant(variants, existing.VariantId)
	}

	selected := drawVariant(variants)
	assignment := &model.ExperimentAssignment{
		ExperimentId: experimentId,
		VariantId:    selected.Id,
		LeadId:       leadId,
	}
	created, err := v.storage.SaveAssignmentIfAbsent(ctx, assignment)
	if err != nil {
		return nil, err
	}
	if !created {
		// A concurrent call assigned first; its draw wins.
		existing, err := v.storage.GetAssignment(ctx, experimentId, leadId)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("assignment for experiment %s lead %s disappeared", experimentId, leadId)
		}
		return findVariant(variants, existing.VariantId)
	}
	logger.Debug("variant assigned",
		zap.String("experiment", experimentId), zap.String("lead", leadId), zap.String("variant", selected.Id))
	return selected, nil
}

// drawVariant walks the variants in their fixed order accumulating weight
// and picks the first whose cumulative weight covers the draw. Rounding on
// the last boundary falls back to the first variant.
func drawVariant(variants []model.TemplateVariant) *model.TemplateVariant {
	r := rand.Float64()
	cumulative := 0.0
	for i := range variants {
		cumulative += variants[i].Weight
		if cumulative >= r {
			return &variants[i]
		}
	}
	return &variants[0]
}

func findVariant(variants []model.TemplateVariant, variantId string) (*model.TemplateVariant, error) {
	for i := range variants {
		if variants[i].Id == variantId {
			return &variants[i], nil
		}
	}
	return nil, fmt.Errorf("assigned variant %s no longer exists", variantId)
}
