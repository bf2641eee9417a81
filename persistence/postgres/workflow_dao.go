package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/leadflowhq/leadflow/model"
)

type workflowDao struct {
	baseDao
}

func (d *workflowDao) SaveWorkflowConfiguration(ctx context.Context, wf *model.WorkflowConfiguration) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO workflow_configurations (id, owner_id, name, trigger_score_min, trigger_score_max, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		wf.Id, wf.OwnerId, wf.Name, wf.TriggerScoreMin, wf.TriggerScoreMax, wf.IsActive, wf.CreatedAt)
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (d *workflowDao) GetWorkflowConfiguration(ctx context.Context, id string) (*model.WorkflowConfiguration, error) {
	var wf model.WorkflowConfiguration
	err := d.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, trigger_score_min, trigger_score_max, is_active, created_at
		 FROM workflow_configurations WHERE id = $1`, id).
		Scan(&wf.Id, &wf.OwnerId, &wf.Name, &wf.TriggerScoreMin, &wf.TriggerScoreMax, &wf.IsActive, &wf.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError(err)
	}
	return &wf, nil
}

func (d *workflowDao) GetMatchingWorkflows(ctx context.Context, ownerId string, score float64) ([]model.WorkflowConfiguration, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, owner_id, name, trigger_score_min, trigger_score_max, is_active, created_at
		 FROM workflow_configurations
		 WHERE owner_id = $1 AND is_active
		   AND (trigger_score_min IS NULL OR $2 >= trigger_score_min)
		   AND (trigger_score_max IS NULL OR $2 <= trigger_score_max)
		 ORDER BY created_at ASC`, ownerId, score)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var workflows []model.WorkflowConfiguration
	for rows.Next() {
		var wf model.WorkflowConfiguration
		if err := rows.Scan(&wf.Id, &wf.OwnerId, &wf.Name, &wf.TriggerScoreMin, &wf.TriggerScoreMax, &wf.IsActive, &wf.CreatedAt); err != nil {
			return nil, storageError(err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return workflows, nil
}

func (d *workflowDao) SetWorkflowActive(ctx context.Context, id string, active bool) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE workflow_configurations SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (d *workflowDao) SaveSequenceStep(ctx context.Context, step *model.SequenceStep) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO workflow_sequences (id, workflow_id, step_number, action_type, template_id, delay_hours, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		step.Id, step.WorkflowId, step.StepNumber, step.ActionType, step.TemplateId, step.DelayHours, step.IsActive)
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (d *workflowDao) GetSequenceStep(ctx context.Context, id string) (*model.SequenceStep, error) {
	return d.scanStep(d.pool.QueryRow(ctx,
		`SELECT id, workflow_id, step_number, action_type, template_id, delay_hours, is_active
		 FROM workflow_sequences WHERE id = $1`, id))
}

func (d *workflowDao) GetStepByNumber(ctx context.Context, workflowId string, stepNumber int) (*model.SequenceStep, error) {
	return d.scanStep(d.pool.QueryRow(ctx,
		`SELECT id, workflow_id, step_number, action_type, template_id, delay_hours, is_active
		 FROM workflow_sequences WHERE workflow_id = $1 AND step_number = $2`, workflowId, stepNumber))
}

func (d *workflowDao) ListSequenceSteps(ctx context.Context, workflowId string) ([]model.SequenceStep, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, workflow_id, step_number, action_type, template_id, delay_hours, is_active
		 FROM workflow_sequences WHERE workflow_id = $1 ORDER BY step_number ASC`, workflowId)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var steps []model.SequenceStep
	for rows.Next() {
		var step model.SequenceStep
		if err := rows.Scan(&step.Id, &step.WorkflowId, &step.StepNumber, &step.ActionType, &step.TemplateId, &step.DelayHours, &step.IsActive); err != nil {
			return nil, storageError(err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return steps, nil
}

func (d *workflowDao) scanStep(row pgx.Row) (*model.SequenceStep, error) {
	var step model.SequenceStep
	err := row.Scan(&step.Id, &step.WorkflowId, &step.StepNumber, &step.ActionType, &step.TemplateId, &step.DelayHours, &step.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError(err)
	}
	return &step, nil
}
