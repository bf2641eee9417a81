package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/leadflowhq/leadflow/model"
	"github.com/leadflowhq/leadflow/persistence"
	c "github.com/patrickmn/go-cache"
)

const DEFAULT_CACHE_TTL = 5 * time.Minute

// TemplateSelector scores personalization rules against a lead and picks
// the best-fit template for a channel. Rules and templates are operator
// data that changes rarely, so both are cached with a short TTL.
type TemplateSelector struct {
	storage persistence.Storage
	cache   *c.Cache
}

func NewTemplateSelector(storage persistence.Storage, ttl time.Duration) *TemplateSelector {
	if ttl <= 0 {
		ttl = DEFAULT_CACHE_TTL
	}
	return &TemplateSelector{
		storage: storage,
		cache:   c.New(ttl, 2*ttl),
	}
}

// SelectTemplate returns the template chosen by the highest-scoring
// matching rule whose priority list contains a template available for the
// channel. With no matching rule it falls back to the first available
// template, and to nil when the owner has none for the channel.
func (s *TemplateSelector) SelectTemplate(ctx context.Context, ownerId string, lead *model.Lead, ch model.Channel) (*model.PersonalizedTemplate, error) {
	templates, err := s.templatesForChannel(ctx, ownerId, ch)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, nil
	}
	available := make(map[string]*model.PersonalizedTemplate, len(templates))
	for i := range templates {
		available[templates[i].Id] = &templates[i]
	}

	rules, err := s.activeRules(ctx, ownerId)
	if err != nil {
		return nil, err
	}

	fields := lead.Fields()
	now := time.Now()
	var best *model.PersonalizedTemplate
	bestScore := 0.0
	for i := range rules {
		score := ruleScore(&rules[i], fields, now)
		if score <= bestScore {
			continue
		}
		if tmpl := firstAvailable(rules[i].TemplatePriority, available); tmpl != nil {
			best = tmpl
			bestScore = score
		}
	}
	if best != nil {
		return best, nil
	}
	return &templates[0], nil
}

// ruleScore sums the weights of satisfied conditions and scales by the
// rule's own weight. A rule with no satisfied condition scores zero and
// never matches.
func ruleScore(rule *model.PersonalizationRule, fields map[string]any, now time.Time) float64 {
	sum := 0.0
	for _, condition := range rule.Conditions {
		if condition.Evaluate(fields, now) {
			sum += condition.Weight
		}
	}
	return sum * rule.ScoreWeight
}

func firstAvailable(priority []string, available map[string]*model.PersonalizedTemplate) *model.PersonalizedTemplate {
	for _, id := range priority {
		if tmpl, ok := available[id]; ok {
			return tmpl
		}
	}
	return nil
}

func (s *TemplateSelector) templatesForChannel(ctx context.Context, ownerId string, ch model.Channel) ([]model.PersonalizedTemplate, error) {
	key := fmt.Sprintf("templates:%s:%s", ownerId, ch)
	if cached, found := s.cache.Get(key); found {
		return cached.([]model.PersonalizedTemplate), nil
	}
	templates, err := s.storage.ListTemplatesForChannel(ctx, ownerId, ch)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, templates)
	return templates, nil
}

func (s *TemplateSelector) activeRules(ctx context.Context, ownerId string) ([]model.PersonalizationRule, error) {
	key := fmt.Sprintf("rules:%s", ownerId)
	if cached, found := s.cache.Get(key); found {
		return cached.([]model.PersonalizationRule), nil
	}
	rules, err := s.storage.ListActiveRules(ctx, ownerId)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, rules)
	return rules, nil
}

// Invalidate drops the cached rules and templates for an owner. Called by
// the admin handlers after a write.
func (s *TemplateSelector) Invalidate(ownerId string) {
	s.cache.Delete(fmt.Sprintf("rules:%s", ownerId))
	s.cache.Delete(fmt.Sprintf("templates:%s:%s", ownerId, model.CHANNEL_EMAIL))
	s.cache.Delete(fmt.Sprintf("templates:%s:%s", ownerId, model.CHANNEL_SMS))
}
