package rest

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/leadflowhq/leadflow/model"
)

type createTemplateRequest struct {
	OwnerId         string            `json:"ownerId"`
	Name            string            `json:"name"`
	Category        string            `json:"category"`
	Channel         model.Channel     `json:"channel"`
	SubjectTemplate *string           `json:"subjectTemplate"`
	ContentTemplate string            `json:"contentTemplate"`
	Variables       []string          `json:"variables"`
	Conditions      []model.Condition `json:"conditions"`
}

func (s *Server) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OwnerId == "" || req.Name == "" || req.ContentTemplate == "" {
		respondWithError(w, http.StatusBadRequest, "ownerId, name and contentTemplate are required")
		return
	}
	if req.Channel != model.CHANNEL_EMAIL && req.Channel != model.CHANNEL_SMS {
		respondWithError(w, http.StatusBadRequest, "channel must be email or sms")
		return
	}
	for _, condition := range req.Conditions {
		if err := condition.Validate(); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	template := &model.PersonalizedTemplate{
		Id:              uuid.New().String(),
		OwnerId:         req.OwnerId,
		Name:            req.Name,
		Category:        req.Category,
		Channel:         req.Channel,
		SubjectTemplate: req.SubjectTemplate,
		ContentTemplate: req.ContentTemplate,
		Variables:       req.Variables,
		Conditions:      req.Conditions,
	}
	if err := s.storage.SaveTemplate(r.Context(), template); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.selector.Invalidate(req.OwnerId)
	respondWithJSON(w, http.StatusCreated, template)
}

type createRuleRequest struct {
	OwnerId          string            `json:"ownerId"`
	Conditions       []model.Condition `json:"conditions"`
	TemplatePriority []string          `json:"templatePriority"`
	ScoreWeight      float64           `json:"scoreWeight"`
}

func (s *Server) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OwnerId == "" {
		respondWithError(w, http.StatusBadRequest, "ownerId is required")
		return
	}
	if len(req.Conditions) == 0 {
		respondWithError(w, http.StatusBadRequest, "at least one condition is required")
		return
	}
	if len(req.TemplatePriority) == 0 {
		respondWithError(w, http.StatusBadRequest, "templatePriority must not be empty")
		return
	}
	if req.ScoreWeight <= 0 {
		respondWithError(w, http.StatusBadRequest, "scoreWeight must be positive")
		return
	}
	// Conditions are validated once here; evaluation never sees a
	// malformed rule.
	for _, condition := range req.Conditions {
		if err := condition.Validate(); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	rule := &model.PersonalizationRule{
		Id:               uuid.New().String(),
		OwnerId:          req.OwnerId,
		Conditions:       req.Conditions,
		TemplatePriority: req.TemplatePriority,
		ScoreWeight:      req.ScoreWeight,
		IsActive:         true,
	}
	if err := s.storage.SaveRule(r.Context(), rule); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.selector.Invalidate(req.OwnerId)
	respondWithJSON(w, http.StatusCreated, rule)
}
