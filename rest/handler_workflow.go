package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/leadflowhq/leadflow/model"
)

type createWorkflowRequest struct {
	OwnerId         string   `json:"ownerId"`
	Name            string   `json:"name"`
	TriggerScoreMin *float64 `json:"triggerScoreMin"`
	TriggerScoreMax *float64 `json:"triggerScoreMax"`
}

func (s *Server) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OwnerId == "" || req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "ownerId and name are required")
		return
	}
	if req.TriggerScoreMin != nil && req.TriggerScoreMax != nil && *req.TriggerScoreMin > *req.TriggerScoreMax {
		respondWithError(w, http.StatusBadRequest, "triggerScoreMin exceeds triggerScoreMax")
		return
	}
	wf := &model.WorkflowConfiguration{
		Id:              uuid.New().String(),
		OwnerId:         req.OwnerId,
		Name:            req.Name,
		TriggerScoreMin: req.TriggerScoreMin,
		TriggerScoreMax: req.TriggerScoreMax,
		IsActive:        true,
		CreatedAt:       time.Now(),
	}
	if err := s.storage.SaveWorkflowConfiguration(r.Context(), wf); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, wf)
}

func (s *Server) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := s.storage.GetWorkflowConfiguration(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if wf == nil {
		respondWithError(w, http.StatusNotFound, "workflow not found")
		return
	}
	steps, err := s.storage.ListSequenceSteps(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"workflow": wf, "steps": steps})
}

type createStepRequest struct {
	StepNumber int              `json:"stepNumber"`
	ActionType model.ActionType `json:"actionType"`
	TemplateId *string          `json:"templateId"`
	DelayHours int              `json:"delayHours"`
}

func (s *Server) HandleCreateStep(w http.ResponseWriter, r *http.Request) {
	workflowId := mux.Vars(r)["id"]
	var req createStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.ActionType.Valid() {
		respondWithError(w, http.StatusBadRequest, "invalid action type")
		return
	}
	if req.StepNumber < 1 {
		respondWithError(w, http.StatusBadRequest, "step number starts at 1")
		return
	}
	if req.DelayHours < 0 {
		respondWithError(w, http.StatusBadRequest, "delay hours must not be negative")
		return
	}
	wf, err := s.storage.GetWorkflowConfiguration(r.Context(), workflowId)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if wf == nil {
		respondWithError(w, http.StatusNotFound, "workflow not found")
		return
	}
	step := &model.SequenceStep{
		Id:         uuid.New().String(),
		WorkflowId: workflowId,
		StepNumber: req.StepNumber,
		ActionType: req.ActionType,
		TemplateId: req.TemplateId,
		DelayHours: req.DelayHours,
		IsActive:   true,
	}
	if err := s.storage.SaveSequenceStep(r.Context(), step); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, step)
}

func (s *Server) HandleDeactivateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.storage.SetWorkflowActive(r.Context(), id, false); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "workflow deactivated"})
}

func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowId := mux.Vars(r)["id"]
	leadId := r.URL.Query().Get("leadId")
	if leadId == "" {
		respondWithError(w, http.StatusBadRequest, "leadId query parameter is required")
		return
	}
	executions, err := s.storage.ListExecutions(r.Context(), workflowId, leadId)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, executions)
}

type scoreChangeRequest struct {
	OwnerId string  `json:"ownerId"`
	Score   float64 `json:"score"`
}

// HandleScoreChange is the driver entry point called by the CRM whenever a
// lead's score changes.
func (s *Server) HandleScoreChange(w http.ResponseWriter, r *http.Request) {
	leadId := mux.Vars(r)["leadId"]
	var req scoreChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OwnerId == "" {
		respondWithError(w, http.StatusBadRequest, "ownerId is required")
		return
	}
	result, err := s.trigger.CheckTriggers(r.Context(), leadId, req.Score, req.OwnerId)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
