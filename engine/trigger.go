package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/leadflowhq/leadflow/logger"
	"github.com/leadflowhq/leadflow/model"
	"github.com/leadflowhq/leadflow/persistence"
	"go.uber.org/zap"
)

// TriggerResult reports which workflows a score change started for a lead.
type TriggerResult struct {
	Triggered bool     `json:"triggered"`
	Workflows []string `json:"workflows"`
}

// TriggerEvaluator starts execution chains when a lead's score lands inside
// the trigger range of an active workflow. A (workflow, lead) pair is
// triggered at most once for its lifetime.
type TriggerEvaluator struct {
	storage persistence.Storage
}

func NewTriggerEvaluator(storage persistence.Storage) *TriggerEvaluator {
	return &TriggerEvaluator{storage: storage}
}

// CheckTriggers evaluates the owner's active workflows against the lead's
// new score and inserts a pending step-1 execution for each match not
// already triggered. A storage error aborts the whole evaluation; the
// caller retries on the next score change, so a transient failure only
// delays triggering.
func (t *TriggerEvaluator) CheckTriggers(ctx context.Context, leadId string, score float64, ownerId string) (TriggerResult, error) {
	workflows, err := t.storage.GetMatchingWorkflows(ctx, ownerId, score)
	if err != nil {
		logger.Error("error loading matching workflows", zap.String("lead", leadId), zap.Error(err))
		return TriggerResult{Workflows: []string{}}, err
	}

	triggered := []string{}
	for _, wf := range workflows {
		exists, err := t.storage.HasExecution(ctx, wf.Id, leadId)
		if err != nil {
			return TriggerResult{Workflows: []string{}}, err
		}
		if exists {
			// Lifetime dedup, not per score event.
			continue
		}
		step, err := t.storage.GetStepByNumber(ctx, wf.Id, 1)
		if err != nil {
			return TriggerResult{Workflows: []string{}}, err
		}
		if step == nil {
			logger.Warn("workflow has no first step, skipping trigger",
				zap.String("workflow", wf.Id), zap.String("lead", leadId))
			continue
		}
		execution := &model.Execution{
			Id:          uuid.New().String(),
			WorkflowId:  wf.Id,
			LeadId:      leadId,
			SequenceId:  step.Id,
			Status:      model.EXECUTION_PENDING,
			ScheduledAt: time.Now().Add(time.Duration(step.DelayHours) * time.Hour),
		}
		created, err := t.storage.CreateExecutionIfAbsent(ctx, execution)
		if err != nil {
			return TriggerResult{Workflows: []string{}}, err
		}
		if !created {
			// A concurrent evaluation won the insert.
			continue
		}
		logger.Info("workflow triggered",
			zap.String("workflow", wf.Id), zap.String("lead", leadId), zap.Float64("score", score))
		triggered = append(triggered, wf.Id)
	}
	return TriggerResult{Triggered: len(triggered) > 0, Workflows: triggered}, nil
}
