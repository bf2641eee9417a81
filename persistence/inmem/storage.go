// Package inmem is the in-memory persistence implementation used by tests
// and the memory storage-impl. Claim and insert-if-absent semantics mirror
// the postgres implementation so engine behavior is identical.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/leadflowhq/leadflow/model"
	"github.com/leadflowhq/leadflow/persistence"
)

type Storage struct {
	mu          sync.Mutex
	workflows   map[string]model.WorkflowConfiguration
	steps       map[string]model.SequenceStep
	executions  map[string]model.Execution
	experiments map[string]model.Experiment
	variants    map[string][]model.TemplateVariant
	assignments map[string]model.ExperimentAssignment
	templates   map[string]model.PersonalizedTemplate
	rules       map[string]model.PersonalizationRule
}

var _ persistence.Storage = new(Storage)

func NewStorage() *Storage {
	return &Storage{
		workflows:   make(map[string]model.WorkflowConfiguration),
		steps:       make(map[string]model.SequenceStep),
		executions:  make(map[string]model.Execution),
		experiments: make(map[string]model.Experiment),
		variants:    make(map[string][]model.TemplateVariant),
		assignments: make(map[string]model.ExperimentAssignment),
		templates:   make(map[string]model.PersonalizedTemplate),
		rules:       make(map[string]model.PersonalizationRule),
	}
}

func assignmentKey(experimentId string, leadId string) string {
	return experimentId + ":" + leadId
}

func (s *Storage) SaveWorkflowConfiguration(ctx context.Context, wf *model.WorkflowConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.Id] = *wf
	return nil
}

func (s *Storage) GetWorkflowConfiguration(ctx context.Context, id string) (*model.WorkflowConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, nil
	}
	return &wf, nil
}

func (s *Storage) GetMatchingWorkflows(ctx context.Context, ownerId string, score float64) ([]model.WorkflowConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []model.WorkflowConfiguration
	for _, wf := range s.workflows {
		if wf.OwnerId == ownerId && wf.IsActive && wf.MatchesScore(score) {
			matches = append(matches, wf)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	return matches, nil
}

func (s *Storage) SetWorkflowActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return persistence.StorageLayerError{Message: "workflow not found"}
	}
	wf.IsActive = active
	s.workflows[id] = wf
	return nil
}

func (s *Storage) SaveSequenceStep(ctx context.Context, step *model.SequenceStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[step.Id] = *step
	return nil
}

func (s *Storage) GetSequenceStep(ctx context.Context, id string) (*model.SequenceStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[id]
	if !ok {
		return nil, nil
	}
	return &step, nil
}

func (s *Storage) GetStepByNumber(ctx context.Context, workflowId string, stepNumber int) (*model.SequenceStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, step := range s.steps {
		if step.WorkflowId == workflowId && step.StepNumber == stepNumber {
			found := step
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Storage) ListSequenceSteps(ctx context.Context, workflowId string) ([]model.SequenceStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var steps []model.SequenceStep
	for _, step := range s.steps {
		if step.WorkflowId == workflowId {
			steps = append(steps, step)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
	return steps, nil
}

func (s *Storage) CreateExecutionIfAbsent(ctx context.Context, ex *model.Execution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.executions {
		if existing.WorkflowId == ex.WorkflowId && existing.LeadId == ex.LeadId && existing.SequenceId == ex.SequenceId {
			return false, nil
		}
	}
	s.executions[ex.Id] = *ex
	return true, nil
}

func (s *Storage) HasExecution(ctx context.Context, workflowId string, leadId string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.executions {
		if ex.WorkflowId == workflowId && ex.LeadId == leadId {
			return true, nil
		}
	}
	return false, nil
}

func (s *Storage) ClaimDueExecutions(ctx context.Context, limit int, now time.Time) ([]model.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.Execution
	for _, ex := range s.executions {
		if ex.Status == model.EXECUTION_PENDING && !ex.ScheduledAt.After(now) {
			due = append(due, ex)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	// Claimed under the same lock as the select, like the conditional
	// UPDATE in postgres: a second claimer cannot see these rows pending.
	for i := range due {
		due[i].Status = model.EXECUTION_IN_PROGRESS
		s.executions[due[i].Id] = due[i]
	}
	return due, nil
}

func (s *Storage) MarkExecutionCompleted(ctx context.Context, id string, executedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.executions[id]
	if !ok {
		return persistence.StorageLayerError{Message: "execution not found"}
	}
	ex.Status = model.EXECUTION_COMPLETED
	ex.ExecutedAt = &executedAt
	s.executions[id] = ex
	return nil
}

func (s *Storage) MarkExecutionFailed(ctx context.Context, id string, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.executions[id]
	if !ok {
		return persistence.StorageLayerError{Message: "execution not found"}
	}
	now := time.Now()
	ex.Status = model.EXECUTION_FAILED
	ex.ExecutedAt = &now
	ex.ErrorMessage = &errorMessage
	s.executions[id] = ex
	return nil
}

func (s *Storage) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.executions[id]
	if !ok {
		return nil, nil
	}
	return &ex, nil
}

func (s *Storage) ListExecutions(ctx context.Context, workflowId string, leadId string) ([]model.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var executions []model.Execution
	for _, ex := range s.executions {
		if ex.WorkflowId == workflowId && ex.LeadId == leadId {
			executions = append(executions, ex)
		}
	}
	sort.Slice(executions, func(i, j int) bool { return executions[i].ScheduledAt.Before(executions[j].ScheduledAt) })
	return executions, nil
}

func (s *Storage) SaveExperiment(ctx context.Context, exp *model.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments[exp.Id] = *exp
	return nil
}

func (s *Storage) GetExperiment(ctx context.Context, id string) (*model.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.experiments[id]
	if !ok {
		return nil, nil
	}
	return &exp, nil
}

func (s *Storage) GetRunningExperimentForTemplate(ctx context.Context, templateId string) (*model.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []model.Experiment
	for _, exp := range s.experiments {
		if exp.TemplateId == templateId && exp.Status == model.EXPERIMENT_RUNNING {
			candidates = append(candidates, exp)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	return &candidates[0], nil
}

func (s *Storage) SetExperimentStatus(ctx context.Context, id string, status model.ExperimentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.experiments[id]
	if !ok {
		return persistence.StorageLayerError{Message: "experiment not found"}
	}
	exp.Status = status
	s.experiments[id] = exp
	return nil
}

func (s *Storage) SaveVariants(ctx context.Context, experimentId string, variants []model.TemplateVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]model.TemplateVariant, len(variants))
	copy(copied, variants)
	sort.Slice(copied, func(i, j int) bool { return copied[i].Id < copied[j].Id })
	s.variants[experimentId] = copied
	return nil
}

func (s *Storage) ListVariants(ctx context.Context, experimentId string) ([]model.TemplateVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	variants := make([]model.TemplateVariant, len(s.variants[experimentId]))
	copy(variants, s.variants[experimentId])
	return variants, nil
}

func (s *Storage) GetAssignment(ctx context.Context, experimentId string, leadId string) (*model.ExperimentAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentKey(experimentId, leadId)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *Storage) SaveAssignmentIfAbsent(ctx context.Context, a *model.ExperimentAssignment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey(a.ExperimentId, a.LeadId)
	if _, ok := s.assignments[key]; ok {
		return false, nil
	}
	s.assignments[key] = *a
	return true, nil
}

func (s *Storage) RecordConversion(ctx context.Context, experimentId string, leadId string, metricValue float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey(experimentId, leadId)
	a, ok := s.assignments[key]
	if !ok {
		return persistence.StorageLayerError{Message: "assignment not found"}
	}
	a.ConversionOccurred = true
	a.MetricValue = &metricValue
	s.assignments[key] = a
	return nil
}

func (s *Storage) SaveTemplate(ctx context.Context, t *model.PersonalizedTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Id] = *t
	return nil
}

func (s *Storage) GetTemplate(ctx context.Context, id string) (*model.PersonalizedTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Storage) ListTemplatesForChannel(ctx context.Context, ownerId string, channel model.Channel) ([]model.PersonalizedTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var templates []model.PersonalizedTemplate
	for _, t := range s.templates {
		if t.OwnerId == ownerId && t.Channel == channel {
			templates = append(templates, t)
		}
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

func (s *Storage) SaveRule(ctx context.Context, r *model.PersonalizationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.Id] = *r
	return nil
}

func (s *Storage) ListActiveRules(ctx context.Context, ownerId string) ([]model.PersonalizationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rules []model.PersonalizationRule
	for _, r := range s.rules {
		if r.OwnerId == ownerId && r.IsActive {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ScoreWeight > rules[j].ScoreWeight })
	return rules, nil
}
