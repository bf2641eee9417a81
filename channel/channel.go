// Package channel holds the engine's external collaborators: the outbound
// delivery channels and the CRM stores the engine reads from or writes
// follow-up records into. The engine treats all of them as reliable
// enqueue-and-return interfaces; retries and delivery confirmation are the
// collaborator's own contract.
package channel

import (
	"context"

	"github.com/leadflowhq/leadflow/model"
)

// Channel enqueues outbound messages. Send returns once the message is
// accepted for delivery, not once it is delivered.
type Channel interface {
	SendEmail(ctx context.Context, to string, subject string, body string) error
	SendSMS(ctx context.Context, to string, body string) error
}

type LeadStore interface {
	GetById(ctx context.Context, id string) (*model.Lead, error)
}

type AgentStore interface {
	GetById(ctx context.Context, id string) (*model.Agent, error)
}

type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
}

type NotificationStore interface {
	Create(ctx context.Context, notification *model.Notification) error
}
