package inmem

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leadflowhq/leadflow/model"
	"github.com/stretchr/testify/require"
)

func TestCreateExecutionIfAbsent(t *testing.T) {
	storage := NewStorage()
	ctx := context.Background()

	first := &model.Execution{
		Id: "ex-1", WorkflowId: "wf-1", LeadId: "lead-1", SequenceId: "step-1",
		Status: model.EXECUTION_PENDING, ScheduledAt: time.Now(),
	}
	created, err := storage.CreateExecutionIfAbsent(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	duplicate := &model.Execution{
		Id: "ex-2", WorkflowId: "wf-1", LeadId: "lead-1", SequenceId: "step-1",
		Status: model.EXECUTION_PENDING, ScheduledAt: time.Now(),
	}
	created, err = storage.CreateExecutionIfAbsent(ctx, duplicate)
	require.NoError(t, err)
	require.False(t, created)

	nextStep := &model.Execution{
		Id: "ex-3", WorkflowId: "wf-1", LeadId: "lead-1", SequenceId: "step-2",
		Status: model.EXECUTION_PENDING, ScheduledAt: time.Now(),
	}
	created, err = storage.CreateExecutionIfAbsent(ctx, nextStep)
	require.NoError(t, err)
	require.True(t, created)
}

func TestClaimDueExecutions(t *testing.T) {
	storage := NewStorage()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		_, err := storage.CreateExecutionIfAbsent(ctx, &model.Execution{
			Id: fmt.Sprintf("ex-%d", i), WorkflowId: "wf-1", LeadId: fmt.Sprintf("lead-%d", i),
			SequenceId: "step-1", Status: model.EXECUTION_PENDING,
			ScheduledAt: now.Add(time.Duration(i*2-3) * time.Hour),
		})
		require.NoError(t, err)
	}

	claimed, err := storage.ClaimDueExecutions(ctx, 10, now)
	require.NoError(t, err)
	// ex-2 is scheduled in the future and stays pending.
	require.Len(t, claimed, 2)
	require.Equal(t, "ex-0", claimed[0].Id)
	require.Equal(t, "ex-1", claimed[1].Id)
	for _, ex := range claimed {
		require.Equal(t, model.EXECUTION_IN_PROGRESS, ex.Status)
	}

	again, err := storage.ClaimDueExecutions(ctx, 10, now)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestClaimDueExecutionsConcurrent(t *testing.T) {
	storage := NewStorage()
	ctx := context.Background()
	now := time.Now()

	const total = 50
	for i := 0; i < total; i++ {
		_, err := storage.CreateExecutionIfAbsent(ctx, &model.Execution{
			Id: fmt.Sprintf("ex-%d", i), WorkflowId: "wf-1", LeadId: fmt.Sprintf("lead-%d", i),
			SequenceId: "step-1", Status: model.EXECUTION_PENDING, ScheduledAt: now.Add(-time.Minute),
		})
		require.NoError(t, err)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[string]int)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := storage.ClaimDueExecutions(ctx, 10, now)
				require.NoError(t, err)
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, ex := range claimed {
					seen[ex.Id]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, total)
	for id, count := range seen {
		require.Equalf(t, 1, count, "execution %s claimed %d times", id, count)
	}
}

func TestSaveVariantsReplaces(t *testing.T) {
	storage := NewStorage()
	ctx := context.Background()

	require.NoError(t, storage.SaveVariants(ctx, "exp-1", []model.TemplateVariant{
		{Id: "var-a", TemplateId: "tmpl-1", Name: "a", Weight: 0.5, IsControl: true, ContentTemplate: "x"},
		{Id: "var-b", TemplateId: "tmpl-1", Name: "b", Weight: 0.5, ContentTemplate: "y"},
	}))
	// A second save on the same experiment revises the set in full; stale
	// rows would push the weight sum past 1.0 and skew the draw.
	require.NoError(t, storage.SaveVariants(ctx, "exp-1", []model.TemplateVariant{
		{Id: "var-c", TemplateId: "tmpl-1", Name: "control", Weight: 0.3, IsControl: true, ContentTemplate: "x"},
		{Id: "var-d", TemplateId: "tmpl-1", Name: "challenger", Weight: 0.7, ContentTemplate: "y"},
	}))

	variants, err := storage.ListVariants(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, variants, 2)
	total := 0.0
	for _, v := range variants {
		require.NotContains(t, []string{"var-a", "var-b"}, v.Id)
		total += v.Weight
	}
	require.InDelta(t, 1.0, total, 1e-9)
}

func TestAssignmentStickiness(t *testing.T) {
	storage := NewStorage()
	ctx := context.Background()

	created, err := storage.SaveAssignmentIfAbsent(ctx, &model.ExperimentAssignment{
		ExperimentId: "exp-1", VariantId: "var-a", LeadId: "lead-1",
	})
	require.NoError(t, err)
	require.True(t, created)

	created, err = storage.SaveAssignmentIfAbsent(ctx, &model.ExperimentAssignment{
		ExperimentId: "exp-1", VariantId: "var-b", LeadId: "lead-1",
	})
	require.NoError(t, err)
	require.False(t, created)

	assignment, err := storage.GetAssignment(ctx, "exp-1", "lead-1")
	require.NoError(t, err)
	require.Equal(t, "var-a", assignment.VariantId)

	require.NoError(t, storage.RecordConversion(ctx, "exp-1", "lead-1", 450000))
	assignment, err = storage.GetAssignment(ctx, "exp-1", "lead-1")
	require.NoError(t, err)
	require.True(t, assignment.ConversionOccurred)
	require.Equal(t, 450000.0, *assignment.MetricValue)
}
