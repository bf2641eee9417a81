package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/leadflowhq/leadflow/model"
)

type experimentDao struct {
	baseDao
}

func (d *experimentDao) SaveExperiment(ctx context.Context, exp *model.Experiment) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO template_experiments (id, template_id, name, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		exp.Id, exp.TemplateId, exp.Name, exp.Status, exp.CreatedAt)
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (d *experimentDao) GetExperiment(ctx context.Context, id string) (*model.Experiment, error) {
	return d.scanExperiment(d.pool.QueryRow(ctx,
		`SELECT id, template_id, name, status, created_at FROM template_experiments WHERE id = $1`, id))
}

func (d *experimentDao) GetRunningExperimentForTemplate(ctx context.Context, templateId string) (*model.Experiment, error) {
	return d.scanExperiment(d.pool.QueryRow(ctx,
		`SELECT id, template_id, name, status, created_at
		 FROM template_experiments
		 WHERE template_id = $1 AND status = 'running'
		 ORDER BY created_at ASC LIMIT 1`, templateId))
}

func (d *experimentDao) SetExperimentStatus(ctx context.Context, id string, status model.ExperimentStatus) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE template_experiments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (d *experimentDao) SaveVariants(ctx context.Context, experimentId string, variants []model.TemplateVariant) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return storageError(err)
	}
	defer tx.Rollback(ctx)

	// Replace the whole set: repeated saves on a draft experiment revise the
	// variants, they do not accumulate rows.
	if _, err := tx.Exec(ctx,
		`DELETE FROM template_variants WHERE experiment_id = $1`, experimentId); err != nil {
		return storageError(err)
	}
	for _, v := range variants {
		_, err := tx.Exec(ctx,
			`INSERT INTO template_variants (id, experiment_id, template_id, name, weight, is_control, subject_template, content_template)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			v.Id, experimentId, v.TemplateId, v.Name, v.Weight, v.IsControl, v.SubjectTemplate, v.ContentTemplate)
		if err != nil {
			return storageError(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storageError(err)
	}
	return nil
}

func (d *experimentDao) ListVariants(ctx context.Context, experimentId string) ([]model.TemplateVariant, error) {
	// Fixed order keeps the cumulative-weight walk deterministic.
	rows, err := d.pool.Query(ctx,
		`SELECT id, template_id, name, weight, is_control, subject_template, content_template
		 FROM template_variants WHERE experiment_id = $1 ORDER BY id ASC`, experimentId)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var variants []model.TemplateVariant
	for rows.Next() {
		var v model.TemplateVariant
		if err := rows.Scan(&v.Id, &v.TemplateId, &v.Name, &v.Weight, &v.IsControl, &v.SubjectTemplate, &v.ContentTemplate); err != nil {
			return nil, storageError(err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return variants, nil
}

func (d *experimentDao) GetAssignment(ctx context.Context, experimentId string, leadId string) (*model.ExperimentAssignment, error) {
	var a model.ExperimentAssignment
	err := d.pool.QueryRow(ctx,
		`SELECT experiment_id, variant_id, lead_id, metric_value, conversion_occurred
		 FROM experiment_results WHERE experiment_id = $1 AND lead_id = $2`, experimentId, leadId).
		Scan(&a.ExperimentId, &a.VariantId, &a.LeadId, &a.MetricValue, &a.ConversionOccurred)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError(err)
	}
	return &a, nil
}

func (d *experimentDao) SaveAssignmentIfAbsent(ctx context.Context, a *model.ExperimentAssignment) (bool, error) {
	ct, err := d.pool.Exec(ctx,
		`INSERT INTO experiment_results (experiment_id, variant_id, lead_id, conversion_occurred)
		 VALUES ($1, $2, $3, false)
		 ON CONFLICT (experiment_id, lead_id) DO NOTHING`,
		a.ExperimentId, a.VariantId, a.LeadId)
	if err != nil {
		return false, storageError(err)
	}
	return ct.RowsAffected() > 0, nil
}

func (d *experimentDao) RecordConversion(ctx context.Context, experimentId string, leadId string, metricValue float64) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE experiment_results SET conversion_occurred = true, metric_value = $3
		 WHERE experiment_id = $1 AND lead_id = $2`, experimentId, leadId, metricValue)
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (d *experimentDao) scanExperiment(row pgx.Row) (*model.Experiment, error) {
	var exp model.Experiment
	err := row.Scan(&exp.Id, &exp.TemplateId, &exp.Name, &exp.Status, &exp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError(err)
	}
	return &exp, nil
}
