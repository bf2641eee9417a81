package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/leadflowhq/leadflow/model"
)

type templateDao struct {
	baseDao
}

func (d *templateDao) SaveTemplate(ctx context.Context, t *model.PersonalizedTemplate) error {
	variables, err := json.Marshal(t.Variables)
	if err != nil {
		return storageError(err)
	}
	conditions, err := json.Marshal(t.Conditions)
	if err != nil {
		return storageError(err)
	}
	_, err = d.pool.Exec(ctx,
		`INSERT INTO personalized_templates (id, owner_id, name, category, channel, subject_template, content_template, variables, conditions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.Id, t.OwnerId, t.Name, t.Category, t.Channel, t.SubjectTemplate, t.ContentTemplate, variables, conditions)
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (d *templateDao) GetTemplate(ctx context.Context, id string) (*model.PersonalizedTemplate, error) {
	t, err := scanTemplate(d.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, category, channel, subject_template, content_template, variables, conditions
		 FROM personalized_templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (d *templateDao) ListTemplatesForChannel(ctx context.Context, ownerId string, channel model.Channel) ([]model.PersonalizedTemplate, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, owner_id, name, category, channel, subject_template, content_template, variables, conditions
		 FROM personalized_templates WHERE owner_id = $1 AND channel = $2 ORDER BY name ASC`, ownerId, channel)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var templates []model.PersonalizedTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return templates, nil
}

func (d *templateDao) SaveRule(ctx context.Context, r *model.PersonalizationRule) error {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return storageError(err)
	}
	priority, err := json.Marshal(r.TemplatePriority)
	if err != nil {
		return storageError(err)
	}
	_, err = d.pool.Exec(ctx,
		`INSERT INTO personalization_rules (id, owner_id, conditions, template_priority, score_weight, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.Id, r.OwnerId, conditions, priority, r.ScoreWeight, r.IsActive)
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (d *templateDao) ListActiveRules(ctx context.Context, ownerId string) ([]model.PersonalizationRule, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, owner_id, conditions, template_priority, score_weight, is_active
		 FROM personalization_rules WHERE owner_id = $1 AND is_active
		 ORDER BY score_weight DESC`, ownerId)
	if err != nil {
		return nil, storageError(err)
	}
	defer rows.Close()

	var rules []model.PersonalizationRule
	for rows.Next() {
		var r model.PersonalizationRule
		var conditions, priority []byte
		if err := rows.Scan(&r.Id, &r.OwnerId, &conditions, &priority, &r.ScoreWeight, &r.IsActive); err != nil {
			return nil, storageError(err)
		}
		if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
			return nil, storageError(err)
		}
		if err := json.Unmarshal(priority, &r.TemplatePriority); err != nil {
			return nil, storageError(err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err)
	}
	return rules, nil
}

func scanTemplate(row pgx.Row) (*model.PersonalizedTemplate, error) {
	var t model.PersonalizedTemplate
	var variables, conditions []byte
	err := row.Scan(&t.Id, &t.OwnerId, &t.Name, &t.Category, &t.Channel, &t.SubjectTemplate, &t.ContentTemplate, &variables, &conditions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, storageError(err)
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &t.Variables); err != nil {
			return nil, storageError(err)
		}
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &t.Conditions); err != nil {
			return nil, storageError(err)
		}
	}
	return &t, nil
}
