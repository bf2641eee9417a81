package model

import "time"

type ActionType string

const ACTION_TYPE_EMAIL ActionType = "email"
const ACTION_TYPE_SMS ActionType = "sms"
const ACTION_TYPE_TASK ActionType = "task"
const ACTION_TYPE_NOTIFICATION ActionType = "notification"

func (a ActionType) Valid() bool {
	switch a {
	case ACTION_TYPE_EMAIL, ACTION_TYPE_SMS, ACTION_TYPE_TASK, ACTION_TYPE_NOTIFICATION:
		return true
	}
	return false
}

type ExecutionStatus string

const EXECUTION_PENDING ExecutionStatus = "pending"
const EXECUTION_IN_PROGRESS ExecutionStatus = "in_progress"
const EXECUTION_COMPLETED ExecutionStatus = "completed"
const EXECUTION_FAILED ExecutionStatus = "failed"

// WorkflowConfiguration gates an automated follow-up sequence on a lead
// score range. A nil bound is unbounded on that side. Configurations are
// deactivated rather than deleted.
type WorkflowConfiguration struct {
	Id              string    `json:"id"`
	OwnerId         string    `json:"ownerId"`
	Name            string    `json:"name"`
	TriggerScoreMin *float64  `json:"triggerScoreMin"`
	TriggerScoreMax *float64  `json:"triggerScoreMax"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
}

// MatchesScore reports whether score falls inside the inclusive trigger
// range of the configuration.
func (w *WorkflowConfiguration) MatchesScore(score float64) bool {
	if w.TriggerScoreMin != nil && score < *w.TriggerScoreMin {
		return false
	}
	if w.TriggerScoreMax != nil && score > *w.TriggerScoreMax {
		return false
	}
	return true
}

// SequenceStep is one hop in a workflow chain. Step numbers are contiguous
// starting at 1 and unique per workflow.
type SequenceStep struct {
	Id         string     `json:"id"`
	WorkflowId string     `json:"workflowId"`
	StepNumber int        `json:"stepNumber"`
	ActionType ActionType `json:"actionType"`
	TemplateId *string    `json:"templateId"`
	DelayHours int        `json:"delayHours"`
	IsActive   bool       `json:"isActive"`
}

// Execution is one scheduled/attempted run of a single sequence step for one
// lead. Status moves pending -> in_progress -> completed|failed; completed
// and failed are terminal for the row. completed means the dispatch was
// enqueued, not delivered; delivery telemetry lands in the nullable
// timestamp columns later, outside this engine.
type Execution struct {
	Id              string          `json:"id"`
	WorkflowId      string          `json:"workflowId"`
	LeadId          string          `json:"leadId"`
	SequenceId      string          `json:"sequenceId"`
	Status          ExecutionStatus `json:"status"`
	ScheduledAt     time.Time       `json:"scheduledAt"`
	ExecutedAt      *time.Time      `json:"executedAt"`
	ErrorMessage    *string         `json:"errorMessage"`
	ConversionValue *float64        `json:"conversionValue"`
	ConversionType  *string         `json:"conversionType"`
	DeliveredAt     *time.Time      `json:"deliveredAt"`
	OpenedAt        *time.Time      `json:"openedAt"`
	ClickedAt       *time.Time      `json:"clickedAt"`
	RepliedAt       *time.Time      `json:"repliedAt"`
	Bounced         bool            `json:"bounced"`
	Unsubscribed    bool            `json:"unsubscribed"`
}
