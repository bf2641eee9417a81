package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leadflowhq/leadflow/model"
	"github.com/stretchr/testify/require"
)

func TestStepProcessor(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, f *fixture){
		"email step completes and schedules next":  testProcessEmailStep,
		"last step completes without scheduling":   testProcessLastStep,
		"failed dispatch halts the chain":          testProcessDispatchFailure,
		"missing template fails the step":          testProcessMissingTemplate,
		"task step creates follow-up task":         testProcessTaskStep,
		"notification step notifies the agent":     testProcessNotificationStep,
		"inactive next step ends the chain":        testProcessInactiveNextStep,
		"not yet due executions are left alone":    testProcessNotDue,
		"three step chain runs in order":           testProcessChainOrder,
		"concurrent pollers never share a claim":   testProcessConcurrentClaim,
		"running experiment substitutes a variant": testProcessVariantSubstitution,
		"step template overrides the selector":     testProcessPinnedTemplate,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, newFixture())
		})
	}
}

func testProcessEmailStep(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	f.addStep(wf.Id, 1, model.ACTION_TYPE_EMAIL, 0, true)
	step2 := f.addStep(wf.Id, 2, model.ACTION_TYPE_SMS, 4, true)
	lead := f.addLead("agent-1")
	f.addTemplate("agent-1", model.CHANNEL_EMAIL, "buyer intro")

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	result, err := f.processor.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)

	require.Len(t, f.channel.Emails, 1)
	require.Equal(t, "jordan@example.com", f.channel.Emails[0].To)
	require.Equal(t, "Hi Jordan, new listings in Austin", f.channel.Emails[0].Subject)
	require.Contains(t, f.channel.Emails[0].Body, "Hello Jordan, this is Sam Okafor")

	executions, err := f.storage.ListExecutions(context.Background(), wf.Id, lead.Id)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	require.Equal(t, model.EXECUTION_COMPLETED, executions[0].Status)
	require.NotNil(t, executions[0].ExecutedAt)
	require.Equal(t, step2.Id, executions[1].SequenceId)
	require.Equal(t, model.EXECUTION_PENDING, executions[1].Status)
	require.WithinDuration(t, time.Now().Add(4*time.Hour), executions[1].ScheduledAt, time.Minute)
}

func testProcessLastStep(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	f.addStep(wf.Id, 1, model.ACTION_TYPE_EMAIL, 0, true)
	lead := f.addLead("agent-1")
	f.addTemplate("agent-1", model.CHANNEL_EMAIL, "buyer intro")

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	result, err := f.processor.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)

	executions, err := f.storage.ListExecutions(context.Background(), wf.Id, lead.Id)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	require.Equal(t, model.EXECUTION_COMPLETED, executions[0].Status)
}

func testProcessDispatchFailure(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	f.addStep(wf.Id, 1, model.ACTION_TYPE_EMAIL, 0, true)
	f.addStep(wf.Id, 2, model.ACTION_TYPE_EMAIL, 2, true)
	lead := f.addLead("agent-1")
	f.addTemplate("agent-1", model.CHANNEL_EMAIL, "buyer intro")
	f.channel.Err = errors.New("smtp relay unavailable")

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	result, err := f.processor.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Processed)

	executions, err := f.storage.ListExecutions(context.Background(), wf.Id, lead.Id)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	require.Equal(t, model.EXECUTION_FAILED, executions[0].Status)
	require.NotNil(t, executions[0].ErrorMessage)
	require.Contains(t, *executions[0].ErrorMessage, "smtp relay unavailable")
}

func testProcessMissingTemplate(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	f.addStep(wf.Id, 1, model.ACTION_TYPE_EMAIL, 0, true)
	lead := f.addLead("agent-1")

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	result, err := f.processor.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Processed)

	executions, err := f.storage.ListExecutions(context.Background(), wf.Id, lead.Id)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	require.Equal(t, model.EXECUTION_FAILED, executions[0].Status)
	require.Contains(t, *executions[0].ErrorMessage, "no email template")
}

func testProcessTaskStep(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	f.addStep(wf.Id, 1, model.ACTION_TYPE_TASK, 0, true)
	lead := f.addLead("agent-1")

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	result, err := f.processor.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)

	require.Len(t, f.crm.Tasks, 1)
	task := f.crm.Tasks[0]
	require.Equal(t, lead.Id, task.LeadId)
	require.Equal(t, "agent-1", task.OwnerId)
	require.Equal(t, model.TASK_PRIORITY_HIGH, task.Priority)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), task.DueDate, time.Minute)
}

func testProcessNotificationStep(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	f.addStep(wf.Id, 1, model.ACTION_TYPE_NOTIFICATION, 0, true)
	lead := f.addLead("agent-1")

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	result, err := f.processor.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)

	require.Len(t, f.crm.Notifications, 1)
	require.Equal(t, "agent-1", f.crm.Notifications[0].UserId)
	require.Equal(t, lead.Id, f.crm.Notifications[0].LeadId)
}

func testProcessInactiveNextStep(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	f.addStep(wf.Id, 1, model.ACTION_TYPE_TASK, 0, true)
	f.addStep(wf.Id, 2, model.ACTION_TYPE_EMAIL, 2, false)
	lead := f.addLead("agent-1")

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	_, err = f.processor.ProcessPending(context.Background())
	require.NoError(t, err)

	executions, err := f.storage.ListExecutions(context.Background(), wf.Id, lead.Id)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	require.Equal(t, model.EXECUTION_COMPLETED, executions[0].Status)
}

func testProcessNotDue(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	f.addStep(wf.Id, 1, model.ACTION_TYPE_TASK, 6, true)
	lead := f.addLead("agent-1")

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	result, err := f.processor.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Processed)

	executions, err := f.storage.ListExecutions(context.Background(), wf.Id, lead.Id)
	require.NoError(t, err)
	require.Equal(t, model.EXECUTION_PENDING, executions[0].Status)
}

func testProcessChainOrder(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	step1 := f.addStep(wf.Id, 1, model.ACTION_TYPE_TASK, 0, true)
	step2 := f.addStep(wf.Id, 2, model.ACTION_TYPE_TASK, 0, true)
	step3 := f.addStep(wf.Id, 3, model.ACTION_TYPE_TASK, 0, true)
	lead := f.addLead("agent-1")

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		result, err := f.processor.ProcessPending(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, result.Processed)
	}

	executions, err := f.storage.ListExecutions(context.Background(), wf.Id, lead.Id)
	require.NoError(t, err)
	require.Len(t, executions, 3)
	require.Equal(t, step1.Id, executions[0].SequenceId)
	require.Equal(t, step2.Id, executions[1].SequenceId)
	require.Equal(t, step3.Id, executions[2].SequenceId)
	for i, ex := range executions {
		require.Equal(t, model.EXECUTION_COMPLETED, ex.Status)
		if i > 0 {
			require.False(t, ex.ScheduledAt.Before(*executions[i-1].ExecutedAt))
		}
	}
	require.Len(t, f.crm.Tasks, 3)
}

func testProcessConcurrentClaim(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", nil, nil, true)
	f.addStep(wf.Id, 1, model.ACTION_TYPE_TASK, 0, true)
	for i := 0; i < 5; i++ {
		lead := f.addLead("agent-1")
		_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	total := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.processor.ProcessPending(context.Background())
			require.NoError(t, err)
			total[i] = result.Processed
		}(i)
	}
	wg.Wait()

	require.Equal(t, 5, total[0]+total[1])
	require.Len(t, f.crm.Tasks, 5)
}

func testProcessVariantSubstitution(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	f.addStep(wf.Id, 1, model.ACTION_TYPE_EMAIL, 0, true)
	lead := f.addLead("agent-1")
	tmpl := f.addTemplate("agent-1", model.CHANNEL_EMAIL, "buyer intro")
	f.addRunningExperiment(tmpl.Id, []model.TemplateVariant{
		{Name: "control", Weight: 0.5, IsControl: true, SubjectTemplate: str("Quick question, {{lead.first_name}}"), ContentTemplate: "Variant body for {{lead.first_name}}"},
		{Name: "challenger", Weight: 0.5, SubjectTemplate: str("Quick question, {{lead.first_name}}"), ContentTemplate: "Variant body for {{lead.first_name}}"},
	})

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	result, err := f.processor.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)

	require.Len(t, f.channel.Emails, 1)
	require.Equal(t, "Quick question, Jordan", f.channel.Emails[0].Subject)
	require.Equal(t, "Variant body for Jordan", f.channel.Emails[0].Body)
}

func testProcessPinnedTemplate(t *testing.T, f *fixture) {
	wf := f.addWorkflow("agent-1", f64(70), nil, true)
	step := f.addStep(wf.Id, 1, model.ACTION_TYPE_EMAIL, 0, true)
	lead := f.addLead("agent-1")
	f.addTemplate("agent-1", model.CHANNEL_EMAIL, "a default intro")

	pinned := &model.PersonalizedTemplate{
		Id:              "tmpl-pinned",
		OwnerId:         "agent-1",
		Name:            "z open house invite",
		Category:        "follow_up",
		Channel:         model.CHANNEL_EMAIL,
		SubjectTemplate: str("Open house this weekend, {{lead.first_name}}"),
		ContentTemplate: "Come see the {{lead.property_type}} in {{lead.city}}.",
	}
	require.NoError(t, f.storage.SaveTemplate(context.Background(), pinned))
	step.TemplateId = &pinned.Id
	require.NoError(t, f.storage.SaveSequenceStep(context.Background(), step))

	_, err := f.trigger.CheckTriggers(context.Background(), lead.Id, 85, "agent-1")
	require.NoError(t, err)

	result, err := f.processor.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)

	require.Len(t, f.channel.Emails, 1)
	require.Equal(t, "Open house this weekend, Jordan", f.channel.Emails[0].Subject)
	require.Equal(t, "Come see the condo in Austin.", f.channel.Emails[0].Body)
}
