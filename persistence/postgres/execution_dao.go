package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/leadflowhq/leadflow/model"
)

const executionColumns = `id, workflow_id, lead_id, sequence_id, status, scheduled_at, executed_at, error_message,
	conversion_value, conversion_type, delivered_at, opened_at, clicked_at, replied_at, bounced, unsubscribed`

type executionDao struct {
	baseDao
}

func (d *executionDao) CreateExecutionIfAbsent(ctx context.Context, ex *model.Execution) (bool, error) {
	// The unique index on (workflow_id, lead_id, sequence_id) makes this
	// insert at-most-once under concurrent callers.
	ct, err := d.pool.Exec(ctx,
		`INSERT INTO workflow_executions (id, workflow_id, lead_id, sequence_id, status, scheduled_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (workflow_id, lead_id, sequence_id) DO NOTHING`,
		ex.Id, ex.WorkflowId, ex.LeadId, ex.SequenceId, ex.Status, ex.ScheduledAt)
	if err != nil {
		return false, storageError(err)
	}
	return ct.RowsAffected() > 0, nil
}

func (d *executionDao) HasExecution(ctx context.Context, workflowId string, leadId string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM workflow_executions WHERE workflow_id = $1 AND lead_id = $2)`,
		workflowId, leadId).Scan(&exists)
	if err != nil {
		return false, storageError(err)
	}
	return exists, nil
}

func (d *executionDao) ClaimDueExecutions(ctx context.Context, limit int, now time.Time) ([]model.Execution, error) {
	// Single conditional update with SKIP LOCKED so concurrent pollers
	// never claim the same row.
	rows, err := d.pool.Query(ctx,
		`UPDATE workflow_executions SET status = 'in_progress'
		 WHERE id IN (
			SELECT id FROM workflow_executions
			WHERE status = 'pending' AND scheduled_at <= $1
			ORDER BY scheduled_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+executionColumns, now, limit)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var executions []model.Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *ex)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return executions, nil
}

func (d *executionDao) MarkExecutionCompleted(ctx context.Context, id string, executedAt time.Time) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE workflow_executions SET status = 'completed', executed_at = $2 WHERE id = $1`, id, executedAt)
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (d *executionDao) MarkExecutionFailed(ctx context.Context, id string, errorMessage string) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE workflow_executions SET status = 'failed', executed_at = $2, error_message = $3 WHERE id = $1`,
		id, time.Now(), errorMessage)
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (d *executionDao) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	ex, err := scanExecution(d.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ex, nil
}

func (d *executionDao) ListExecutions(ctx context.Context, workflowId string, leadId string) ([]model.Execution, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions
		 WHERE workflow_id = $1 AND lead_id = $2 ORDER BY scheduled_at ASC`, workflowId, leadId)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var executions []model.Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *ex)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return executions, nil
}

func scanExecution(row pgx.Row) (*model.Execution, error) {
	var ex model.Execution
	err := row.Scan(&ex.Id, &ex.WorkflowId, &ex.LeadId, &ex.SequenceId, &ex.Status, &ex.ScheduledAt,
		&ex.ExecutedAt, &ex.ErrorMessage, &ex.ConversionValue, &ex.ConversionType,
		&ex.DeliveredAt, &ex.OpenedAt, &ex.ClickedAt, &ex.RepliedAt, &ex.Bounced, &ex.Unsubscribed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, storageError(err)
	}
	return &ex, nil
}
