package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leadflowhq/leadflow/channel"
	"github.com/leadflowhq/leadflow/logger"
	"github.com/leadflowhq/leadflow/model"
	"github.com/leadflowhq/leadflow/persistence"
	"go.uber.org/zap"
)

const DEFAULT_BATCH_SIZE = 10

// ProcessResult reports how many executions completed in one poll cycle.
type ProcessResult struct {
	Processed int `json:"processed"`
}

// StepProcessor polls due pending executions, dispatches the configured
// action through the channel collaborators and advances or halts the chain.
// An execution moves pending -> in_progress -> completed|failed; the chain
// continues only through a freshly inserted pending row for the next step.
type StepProcessor struct {
	storage       persistence.Storage
	leads         channel.LeadStore
	agents        channel.AgentStore
	tasks         channel.TaskStore
	notifications channel.NotificationStore
	channel       channel.Channel
	selector      *TemplateSelector
	variants      *VariantSelector
	renderer      *TemplateRenderer
	batchSize     int
}

func NewStepProcessor(storage persistence.Storage, leads channel.LeadStore, agents channel.AgentStore,
	tasks channel.TaskStore, notifications channel.NotificationStore, ch channel.Channel,
	selector *TemplateSelector, variants *VariantSelector, renderer *TemplateRenderer, batchSize int) *StepProcessor {
	if batchSize <= 0 {
		batchSize = DEFAULT_BATCH_SIZE
	}
	return &StepProcessor{
		storage:       storage,
		leads:         leads,
		agents:        agents,
		tasks:         tasks,
		notifications: notifications,
		channel:       ch,
		selector:      selector,
		variants:      variants,
		renderer:      renderer,
		batchSize:     batchSize,
	}
}

// ProcessPending claims one batch of due executions and processes each.
// Dispatch failures mark that execution failed and halt its chain; they do
// not stop the rest of the batch.
func (p *StepProcessor) ProcessPending(ctx context.Context) (ProcessResult, error) {
	executions, err := p.storage.ClaimDueExecutions(ctx, p.batchSize, time.Now())
	if err != nil {
		logger.Error("error claiming due executions", zap.Error(err))
		return ProcessResult{}, err
	}

	processed := 0
	for i := range executions {
		if p.processOne(ctx, &executions[i]) {
			processed++
		}
	}
	return ProcessResult{Processed: processed}, nil
}

func (p *StepProcessor) processOne(ctx context.Context, ex *model.Execution) bool {
	step, lead, err := p.loadStepAndLead(ctx, ex)
	if err != nil {
		p.fail(ctx, ex, err)
		return false
	}
	if err := p.dispatch(ctx, step, lead); err != nil {
		p.fail(ctx, ex, err)
		return false
	}
	// completed means the dispatch was enqueued; delivery telemetry is
	// recorded later through the channel's own callbacks.
	if err := p.storage.MarkExecutionCompleted(ctx, ex.Id, time.Now()); err != nil {
		logger.Error("error marking execution completed", zap.String("execution", ex.Id), zap.Error(err))
		return false
	}
	if err := p.scheduleNext(ctx, ex, step); err != nil {
		logger.Error("error scheduling next step", zap.String("execution", ex.Id), zap.Error(err))
	}
	return true
}

func (p *StepProcessor) loadStepAndLead(ctx context.Context, ex *model.Execution) (*model.SequenceStep, *model.Lead, error) {
	step, err := p.storage.GetSequenceStep(ctx, ex.SequenceId)
	if err != nil {
		return nil, nil, err
	}
	if step == nil {
		return nil, nil, fmt.Errorf("sequence step %s not found", ex.SequenceId)
	}
	lead, err := p.leads.GetById(ctx, ex.LeadId)
	if err != nil {
		return nil, nil, err
	}
	if lead == nil {
		return nil, nil, fmt.Errorf("lead %s not found", ex.LeadId)
	}
	return step, lead, nil
}

func (p *StepProcessor) dispatch(ctx context.Context, step *model.SequenceStep, lead *model.Lead) error {
	switch step.ActionType {
	case model.ACTION_TYPE_EMAIL:
		return p.dispatchMessage(ctx, step, lead, model.CHANNEL_EMAIL)
	case model.ACTION_TYPE_SMS:
		return p.dispatchMessage(ctx, step, lead, model.CHANNEL_SMS)
	case model.ACTION_TYPE_TASK:
		return p.dispatchTask(ctx, lead)
	case model.ACTION_TYPE_NOTIFICATION:
		return p.dispatchNotification(ctx, lead)
	}
	return fmt.Errorf("unknown action type %q", step.ActionType)
}

func (p *StepProcessor) dispatchMessage(ctx context.Context, step *model.SequenceStep, lead *model.Lead, ch model.Channel) error {
	tmpl, err := p.resolveTemplate(ctx, step, lead, ch)
	if err != nil {
		return err
	}
	if tmpl == nil {
		// A missing template fails the step; a silent skip would leave
		// the chain stalled with no trace.
		return fmt.Errorf("no %s template available for lead %s", ch, lead.Id)
	}

	subject := tmpl.SubjectTemplate
	content := tmpl.ContentTemplate
	if variant := p.pickVariant(ctx, tmpl, lead); variant != nil {
		if variant.SubjectTemplate != nil {
			subject = variant.SubjectTemplate
		}
		content = variant.ContentTemplate
	}

	agent, err := p.agents.GetById(ctx, lead.OwnerId)
	if err != nil {
		return err
	}
	rendered := p.renderer.Render(subject, content, lead, agent)

	switch ch {
	case model.CHANNEL_EMAIL:
		if lead.Email == "" {
			return fmt.Errorf("lead %s has no email address", lead.Id)
		}
		return p.channel.SendEmail(ctx, lead.Email, rendered.Subject, rendered.Content)
	default:
		if lead.Phone == "" {
			return fmt.Errorf("lead %s has no phone number", lead.Id)
		}
		return p.channel.SendSMS(ctx, lead.Phone, rendered.Content)
	}
}

// resolveTemplate honors a template pinned on the step; the selector only
// runs when the step carries no usable hint.
func (p *StepProcessor) resolveTemplate(ctx context.Context, step *model.SequenceStep, lead *model.Lead, ch model.Channel) (*model.PersonalizedTemplate, error) {
	if step.TemplateId != nil {
		tmpl, err := p.storage.GetTemplate(ctx, *step.TemplateId)
		if err != nil {
			return nil, err
		}
		if tmpl != nil && tmpl.Channel == ch {
			return tmpl, nil
		}
		logger.Warn("step template unusable, falling back to selector",
			zap.String("step", step.Id), zap.String("template", *step.TemplateId))
	}
	return p.selector.SelectTemplate(ctx, lead.OwnerId, lead, ch)
}

// pickVariant substitutes a running experiment's variant when one exists.
// Variant selection failures fall back to the base template rather than
// failing the step.
func (p *StepProcessor) pickVariant(ctx context.Context, tmpl *model.PersonalizedTemplate, lead *model.Lead) *model.TemplateVariant {
	experiment, err := p.storage.GetRunningExperimentForTemplate(ctx, tmpl.Id)
	if err != nil || experiment == nil {
		if err != nil {
			logger.Error("error looking up experiment", zap.String("template", tmpl.Id), zap.Error(err))
		}
		return nil
	}
	variant, err := p.variants.SelectVariant(ctx, experiment.Id, lead.Id)
	if err != nil {
		logger.Error("error selecting variant, using base template",
			zap.String("experiment", experiment.Id), zap.String("lead", lead.Id), zap.Error(err))
		return nil
	}
	return variant
}

func (p *StepProcessor) dispatchTask(ctx context.Context, lead *model.Lead) error {
	task := &model.Task{
		Id:          uuid.New().String(),
		OwnerId:     lead.OwnerId,
		LeadId:      lead.Id,
		Title:       fmt.Sprintf("Follow up with %s", lead.FullName()),
		Description: fmt.Sprintf("Automated follow-up task for lead %s", lead.FullName()),
		Priority:    model.TASK_PRIORITY_HIGH,
		DueDate:     time.Now().Add(24 * time.Hour),
	}
	return p.tasks.Create(ctx, task)
}

func (p *StepProcessor) dispatchNotification(ctx context.Context, lead *model.Lead) error {
	notification := &model.Notification{
		Id:        uuid.New().String(),
		UserId:    lead.OwnerId,
		LeadId:    lead.Id,
		Type:      "workflow_followup",
		Title:     "Lead follow-up due",
		Message:   fmt.Sprintf("Automated follow-up reached lead %s", lead.FullName()),
		CreatedAt: time.Now(),
	}
	return p.notifications.Create(ctx, notification)
}

func (p *StepProcessor) scheduleNext(ctx context.Context, ex *model.Execution, step *model.SequenceStep) error {
	next, err := p.storage.GetStepByNumber(ctx, ex.WorkflowId, step.StepNumber+1)
	if err != nil {
		return err
	}
	if next == nil || !next.IsActive {
		logger.Debug("workflow chain complete", zap.String("workflow", ex.WorkflowId), zap.String("lead", ex.LeadId))
		return nil
	}
	execution := &model.Execution{
		Id:          uuid.New().String(),
		WorkflowId:  ex.WorkflowId,
		LeadId:      ex.LeadId,
		SequenceId:  next.Id,
		Status:      model.EXECUTION_PENDING,
		ScheduledAt: time.Now().Add(time.Duration(next.DelayHours) * time.Hour),
	}
	_, err = p.storage.CreateExecutionIfAbsent(ctx, execution)
	return err
}

func (p *StepProcessor) fail(ctx context.Context, ex *model.Execution, cause error) {
	logger.Error("step execution failed",
		zap.String("execution", ex.Id), zap.String("workflow", ex.WorkflowId),
		zap.String("lead", ex.LeadId), zap.Error(cause))
	if err := p.storage.MarkExecutionFailed(ctx, ex.Id, cause.Error()); err != nil {
		logger.Error("error marking execution failed", zap.String("execution", ex.Id), zap.Error(err))
	}
}
