package model

import (
	"strings"
	"time"
)

// Lead is the prospect record owned by the CRM proper. The engine only
// reads it, through the LeadStore collaborator.
type Lead struct {
	Id              string     `json:"id"`
	OwnerId         string     `json:"ownerId"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Score           float64    `json:"score"`
	Source          string     `json:"source"`
	City            string     `json:"city"`
	PropertyType    string     `json:"propertyType"`
	Budget          *float64   `json:"budget"`
	LastContactedAt *time.Time `json:"lastContactedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func (l *Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// Fields exposes the lead as a flat field set for condition evaluation and
// template rendering.
func (l *Lead) Fields() map[string]any {
	fields := map[string]any{
		"email":         l.Email,
		"phone":         l.Phone,
		"first_name":    l.FirstName,
		"last_name":     l.LastName,
		"full_name":     l.FullName(),
		"score":         l.Score,
		"source":        l.Source,
		"city":          l.City,
		"property_type": l.PropertyType,
		"created_at":    l.CreatedAt,
	}
	if l.Budget != nil {
		fields["budget"] = *l.Budget
	}
	if l.LastContactedAt != nil {
		fields["last_contacted_at"] = *l.LastContactedAt
	}
	return fields
}

// Agent is the lead's owning user, read-only to the engine.
type Agent struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (a *Agent) Fields() map[string]any {
	return map[string]any{
		"name":  a.Name,
		"email": a.Email,
		"phone": a.Phone,
	}
}

type TaskPriority string

const TASK_PRIORITY_HIGH TaskPriority = "high"

// Task is a follow-up task created by a task step.
type Task struct {
	Id          string       `json:"id"`
	OwnerId     string       `json:"ownerId"`
	LeadId      string       `json:"leadId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`
	DueDate     time.Time    `json:"dueDate"`
}

// Notification is an in-app notification created by a notification step.
type Notification struct {
	Id        string    `json:"id"`
	UserId    string    `json:"userId"`
	LeadId    string    `json:"leadId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
