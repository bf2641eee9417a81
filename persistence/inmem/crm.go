package inmem

import (
	"context"
	"sync"

	"github.com/leadflowhq/leadflow/channel"
	"github.com/leadflowhq/leadflow/model"
)

// CRMStore is the in-memory stand-in for the CRM collaborator tables.
type CRMStore struct {
	mu            sync.Mutex
	leads         map[string]model.Lead
	agents        map[string]model.Agent
	Tasks         []model.Task
	Notifications []model.Notification
}

var _ channel.LeadStore = new(CRMStore)
var _ channel.TaskStore = new(CRMStore)

func NewCRMStore() *CRMStore {
	return &CRMStore{
		leads:  make(map[string]model.Lead),
		agents: make(map[string]model.Agent),
	}
}

func (s *CRMStore) PutLead(lead model.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.Id] = lead
}

func (s *CRMStore) PutAgent(agent model.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.Id] = agent
}

func (s *CRMStore) GetById(ctx context.Context, id string) (*model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil, nil
	}
	return &lead, nil
}

func (s *CRMStore) Agents() channel.AgentStore {
	return agentStore{s}
}

type agentStore struct {
	crm *CRMStore
}

func (s agentStore) GetById(ctx context.Context, id string) (*model.Agent, error) {
	s.crm.mu.Lock()
	defer s.crm.mu.Unlock()
	agent, ok := s.crm.agents[id]
	if !ok {
		return nil, nil
	}
	return &agent, nil
}

func (s *CRMStore) Create(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tasks = append(s.Tasks, *task)
	return nil
}

func (s *CRMStore) Notifier() channel.NotificationStore {
	return notificationStore{s}
}

type notificationStore struct {
	crm *CRMStore
}

func (s notificationStore) Create(ctx context.Context, n *model.Notification) error {
	s.crm.mu.Lock()
	defer s.crm.mu.Unlock()
	s.crm.Notifications = append(s.crm.Notifications, *n)
	return nil
}
