package model

type Channel string

const CHANNEL_EMAIL Channel = "email"
const CHANNEL_SMS Channel = "sms"

// PersonalizedTemplate is an operator-authored message template for one
// outbound channel. Placeholders use the {{path}} form, e.g.
// {{lead.first_name}} or {{agent.name}}.
type PersonalizedTemplate struct {
	Id              string      `json:"id"`
	OwnerId         string      `json:"ownerId"`
	Name            string      `json:"name"`
	Category        string      `json:"category"`
	Channel         Channel     `json:"channel"`
	SubjectTemplate *string     `json:"subjectTemplate"`
	ContentTemplate string      `json:"contentTemplate"`
	Variables       []string    `json:"variables"`
	Conditions      []Condition `json:"conditions"`
}

// PersonalizationRule scores leads against a condition set and, when it is
// the best match, picks the first available template from its ordered
// priority list.
type PersonalizationRule struct {
	Id               string      `json:"id"`
	OwnerId          string      `json:"ownerId"`
	Conditions       []Condition `json:"conditions"`
	TemplatePriority []string    `json:"templatePriority"`
	ScoreWeight      float64     `json:"scoreWeight"`
	IsActive         bool        `json:"isActive"`
}
