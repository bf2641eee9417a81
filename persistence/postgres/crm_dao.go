package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leadflowhq/leadflow/channel"
	"github.com/leadflowhq/leadflow/model"
)

// CRMStore gives the engine read access to leads and agents and lets it
// create follow-up tasks and in-app notifications. These tables belong to
// the CRM proper; the engine is only a collaborator here.
type CRMStore struct {
	baseDao
}

var _ channel.LeadStore = new(CRMStore)
var _ channel.TaskStore = new(CRMStore)
var _ channel.AgentStore = agentStore{}
var _ channel.NotificationStore = notificationStore{}

func NewCRMStore(pool *pgxpool.Pool) *CRMStore {
	return &CRMStore{baseDao{pool: pool}}
}

func (s *CRMStore) GetById(ctx context.Context, id string) (*model.Lead, error) {
	var lead model.Lead
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, email, phone, first_name, last_name, score, source, city, property_type,
		        budget, last_contacted_at, created_at
		 FROM leads WHERE id = $1`, id).
		Scan(&lead.Id, &lead.OwnerId, &lead.Email, &lead.Phone, &lead.FirstName, &lead.LastName,
			&lead.Score, &lead.Source, &lead.City, &lead.PropertyType,
			&lead.Budget, &lead.LastContactedAt, &lead.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError(err)
	}
	return &lead, nil
}

// Agents returns an AgentStore view on the same pool; lead and agent lookups
// share a method name so they cannot live on one receiver.
func (s *CRMStore) Agents() channel.AgentStore {
	return agentStore{s.baseDao}
}

type agentStore struct {
	baseDao
}

func (s agentStore) GetById(ctx context.Context, id string) (*model.Agent, error) {
	var agent model.Agent
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, phone FROM users WHERE id = $1`, id).
		Scan(&agent.Id, &agent.Name, &agent.Email, &agent.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError(err)
	}
	return &agent, nil
}

func (s *CRMStore) Create(ctx context.Context, task *model.Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, owner_id, lead_id, title, description, priority, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		task.Id, task.OwnerId, task.LeadId, task.Title, task.Description, task.Priority, task.DueDate)
	if err != nil {
		return storageError(err)
	}
	return nil
}

// Notifications returns a NotificationStore view on the same pool.
func (s *CRMStore) Notifications() channel.NotificationStore {
	return notificationStore{s.baseDao}
}

type notificationStore struct {
	baseDao
}

func (s notificationStore) Create(ctx context.Context, n *model.Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, lead_id, type, title, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.Id, n.UserId, n.LeadId, n.Type, n.Title, n.Message, n.CreatedAt)
	if err != nil {
		return storageError(err)
	}
	return nil
}
