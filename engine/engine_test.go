package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadflowhq/leadflow/model"
	"github.com/leadflowhq/leadflow/persistence/inmem"
)

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type fakeChannel struct {
	mu     sync.Mutex
	Emails []sentMessage
	SMS    []sentMessage
	Err    error
}

func (c *fakeChannel) SendEmail(ctx context.Context, to string, subject string, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Emails = append(c.Emails, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (c *fakeChannel) SendSMS(ctx context.Context, to string, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.SMS = append(c.SMS, sentMessage{To: to, Body: body})
	return nil
}

type fixture struct {
	storage   *inmem.Storage
	crm       *inmem.CRMStore
	channel   *fakeChannel
	trigger   *TriggerEvaluator
	processor *StepProcessor
	selector  *TemplateSelector
	variants  *VariantSelector
}

func newFixture() *fixture {
	storage := inmem.NewStorage()
	crm := inmem.NewCRMStore()
	ch := &fakeChannel{}
	selector := NewTemplateSelector(storage, time.Minute)
	variants := NewVariantSelector(storage)
	processor := NewStepProcessor(storage, crm, crm.Agents(), crm, crm.Notifier(), ch,
		selector, variants, NewTemplateRenderer(), 10)
	return &fixture{
		storage:   storage,
		crm:       crm,
		channel:   ch,
		trigger:   NewTriggerEvaluator(storage),
		processor: processor,
		selector:  selector,
		variants:  variants,
	}
}

func f64(v float64) *float64 {
	return &v
}

func str(v string) *string {
	return &v
}

func (f *fixture) addWorkflow(ownerId string, min *float64, max *float64, active bool) *model.WorkflowConfiguration {
	wf := &model.WorkflowConfiguration{
		Id:              uuid.New().String(),
		OwnerId:         ownerId,
		Name:            "buyer follow-up",
		TriggerScoreMin: min,
		TriggerScoreMax: max,
		IsActive:        active,
		CreatedAt:       time.Now(),
	}
	f.storage.SaveWorkflowConfiguration(context.Background(), wf)
	return wf
}

func (f *fixture) addStep(workflowId string, number int, actionType model.ActionType, delayHours int, active bool) *model.SequenceStep {
	step := &model.SequenceStep{
		Id:         uuid.New().String(),
		WorkflowId: workflowId,
		StepNumber: number,
		ActionType: actionType,
		DelayHours: delayHours,
		IsActive:   active,
	}
	f.storage.SaveSequenceStep(context.Background(), step)
	return step
}

func (f *fixture) addLead(ownerId string) *model.Lead {
	lead := model.Lead{
		Id:           uuid.New().String(),
		OwnerId:      ownerId,
		Email:        "jordan@example.com",
		Phone:        "+15550100",
		FirstName:    "Jordan",
		LastName:     "Rivera",
		Score:        85,
		Source:       "zillow",
		City:         "Austin",
		PropertyType: "condo",
		CreatedAt:    time.Now(),
	}
	f.crm.PutLead(lead)
	f.crm.PutAgent(model.Agent{Id: ownerId, Name: "Sam Okafor", Email: "sam@agency.example.com", Phone: "+15550199"})
	return &lead
}

func (f *fixture) addTemplate(ownerId string, ch model.Channel, name string) *model.PersonalizedTemplate {
	t := &model.PersonalizedTemplate{
		Id:              uuid.New().String(),
		OwnerId:         ownerId,
		Name:            name,
		Category:        "follow_up",
		Channel:         ch,
		SubjectTemplate: str("Hi {{lead.first_name}}, new listings in {{lead.city}}"),
		ContentTemplate: "Hello {{lead.first_name}}, this is {{agent.name}}. Let's talk about {{lead.city}}.",
	}
	f.storage.SaveTemplate(context.Background(), t)
	return t
}

func (f *fixture) addRunningExperiment(templateId string, variants []model.TemplateVariant) *model.Experiment {
	exp := &model.Experiment{
		Id:         uuid.New().String(),
		TemplateId: templateId,
		Name:       "subject line test",
		Status:     model.EXPERIMENT_RUNNING,
		CreatedAt:  time.Now(),
	}
	f.storage.SaveExperiment(context.Background(), exp)
	for i := range variants {
		if variants[i].Id == "" {
			variants[i].Id = uuid.New().String()
		}
		variants[i].TemplateId = templateId
	}
	f.storage.SaveVariants(context.Background(), exp.Id, variants)
	return exp
}
