package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/leadflowhq/leadflow/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type WorkflowStorage interface {
	SaveWorkflowConfiguration(ctx context.Context, wf *model.WorkflowConfiguration) error
	GetWorkflowConfiguration(ctx context.Context, id string) (*model.WorkflowConfiguration, error)
	// GetMatchingWorkflows returns the owner's active configurations whose
	// inclusive score range contains score, a nil bound being unbounded.
	GetMatchingWorkflows(ctx context.Context, ownerId string, score float64) ([]model.WorkflowConfiguration, error)
	SetWorkflowActive(ctx context.Context, id string, active bool) error
	SaveSequenceStep(ctx context.Context, step *model.SequenceStep) error
	GetSequenceStep(ctx context.Context, id string) (*model.SequenceStep, error)
	// GetStepByNumber returns nil without error when the step does not exist.
	GetStepByNumber(ctx context.Context, workflowId string, stepNumber int) (*model.SequenceStep, error)
	ListSequenceSteps(ctx context.Context, workflowId string) ([]model.SequenceStep, error)
}

type ExecutionStorage interface {
	// CreateExecutionIfAbsent inserts the execution unless a row already
	// exists for its (workflow, lead, sequence) triple. Returns false when
	// the row was already present. Backed by a unique index so concurrent
	// callers cannot double-insert.
	CreateExecutionIfAbsent(ctx context.Context, ex *model.Execution) (bool, error)
	HasExecution(ctx context.Context, workflowId string, leadId string) (bool, error)
	// ClaimDueExecutions atomically moves up to limit due pending executions
	// to in_progress and returns the claimed rows, oldest first. Two
	// concurrent pollers never receive the same row.
	ClaimDueExecutions(ctx context.Context, limit int, now time.Time) ([]model.Execution, error)
	MarkExecutionCompleted(ctx context.Context, id string, executedAt time.Time) error
	MarkExecutionFailed(ctx context.Context, id string, errorMessage string) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	ListExecutions(ctx context.Context, workflowId string, leadId string) ([]model.Execution, error)
}

type ExperimentStorage interface {
	SaveExperiment(ctx context.Context, exp *model.Experiment) error
	GetExperiment(ctx context.Context, id string) (*model.Experiment, error)
	// GetRunningExperimentForTemplate returns nil without error when the
	// template has no running experiment.
	GetRunningExperimentForTemplate(ctx context.Context, templateId string) (*model.Experiment, error)
	SetExperimentStatus(ctx context.Context, id string, status model.ExperimentStatus) error
	SaveVariants(ctx context.Context, experimentId string, variants []model.TemplateVariant) error
	// ListVariants returns the experiment's variants in a fixed order.
	ListVariants(ctx context.Context, experimentId string) ([]model.TemplateVariant, error)
	GetAssignment(ctx context.Context, experimentId string, leadId string) (*model.ExperimentAssignment, error)
	// SaveAssignmentIfAbsent persists the assignment unless the
	// (experiment, lead) pair is already assigned. Returns false when an
	// assignment already existed; assignments are immutable once written.
	SaveAssignmentIfAbsent(ctx context.Context, a *model.ExperimentAssignment) (bool, error)
	RecordConversion(ctx context.Context, experimentId string, leadId string, metricValue float64) error
}

type TemplateStorage interface {
	SaveTemplate(ctx context.Context, t *model.PersonalizedTemplate) error
	GetTemplate(ctx context.Context, id string) (*model.PersonalizedTemplate, error)
	ListTemplatesForChannel(ctx context.Context, ownerId string, channel model.Channel) ([]model.PersonalizedTemplate, error)
	SaveRule(ctx context.Context, r *model.PersonalizationRule) error
	// ListActiveRules returns active rules ordered by score weight, highest
	// first.
	ListActiveRules(ctx context.Context, ownerId string) ([]model.PersonalizationRule, error)
}

// Storage is the engine's view of the relational store. No other subsystem
// writes to these tables.
type Storage interface {
	WorkflowStorage
	ExecutionStorage
	ExperimentStorage
	TemplateStorage
}
