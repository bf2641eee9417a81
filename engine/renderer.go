package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/leadflowhq/leadflow/model"
	"github.com/oliveagle/jsonpath"
)

var placeholderRe = regexp.MustCompile(`{{(.*?)}}`)

// RenderedMessage is the outcome of template rendering, ready to hand to a
// channel.
type RenderedMessage struct {
	Subject string
	Content string
}

// TemplateRenderer substitutes {{path}} placeholders against a context of
// lead, agent, current_date and current_time. Placeholders that do not
// resolve are left in the output verbatim so broken templates surface in
// the message instead of silently blanking.
type TemplateRenderer struct{}

func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

func (r *TemplateRenderer) Render(subjectTemplate *string, contentTemplate string, lead *model.Lead, agent *model.Agent) RenderedMessage {
	now := time.Now()
	context := map[string]any{
		"lead":         lead.Fields(),
		"current_date": now.Format("January 2, 2006"),
		"current_time": now.Format("3:04 PM"),
	}
	if agent != nil {
		context["agent"] = agent.Fields()
	}

	msg := RenderedMessage{
		Content: substitute(contentTemplate, context),
	}
	if subjectTemplate != nil {
		msg.Subject = substitute(*subjectTemplate, context)
	}
	return msg
}

func substitute(template string, context map[string]any) string {
	tokens := placeholderRe.FindAllStringSubmatch(template, -1)
	result := template
	for _, token := range tokens {
		path := strings.TrimSpace(token[1])
		value, err := jsonpath.JsonPathLookup(context, "$."+path)
		if err != nil || value == nil {
			continue
		}
		result = strings.ReplaceAll(result, token[0], fmt.Sprintf("%v", value))
	}
	return result
}
