package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/leadflowhq/leadflow/model"
)

type createExperimentRequest struct {
	TemplateId string `json:"templateId"`
	Name       string `json:"name"`
}

func (s *Server) HandleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req createExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TemplateId == "" || req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "templateId and name are required")
		return
	}
	template, err := s.storage.GetTemplate(r.Context(), req.TemplateId)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if template == nil {
		respondWithError(w, http.StatusNotFound, "template not found")
		return
	}
	experiment := &model.Experiment{
		Id:         uuid.New().String(),
		TemplateId: req.TemplateId,
		Name:       req.Name,
		Status:     model.EXPERIMENT_DRAFT,
		CreatedAt:  time.Now(),
	}
	if err := s.storage.SaveExperiment(r.Context(), experiment); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, experiment)
}

type variantRequest struct {
	Name            string  `json:"name"`
	Weight          float64 `json:"weight"`
	IsControl       bool    `json:"isControl"`
	SubjectTemplate *string `json:"subjectTemplate"`
	ContentTemplate string  `json:"contentTemplate"`
}

func (s *Server) HandleSetVariants(w http.ResponseWriter, r *http.Request) {
	experimentId := mux.Vars(r)["id"]
	var reqs []variantRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	experiment, err := s.storage.GetExperiment(r.Context(), experimentId)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if experiment == nil {
		respondWithError(w, http.StatusNotFound, "experiment not found")
		return
	}
	if experiment.Status != model.EXPERIMENT_DRAFT {
		respondWithError(w, http.StatusConflict, "variants can only be set on a draft experiment")
		return
	}
	variants := make([]model.TemplateVariant, 0, len(reqs))
	for _, req := range reqs {
		if req.ContentTemplate == "" {
			respondWithError(w, http.StatusBadRequest, "contentTemplate is required for every variant")
			return
		}
		variants = append(variants, model.TemplateVariant{
			Id:              uuid.New().String(),
			TemplateId:      experiment.TemplateId,
			Name:            req.Name,
			Weight:          req.Weight,
			IsControl:       req.IsControl,
			SubjectTemplate: req.SubjectTemplate,
			ContentTemplate: req.ContentTemplate,
		})
	}
	if err := model.ValidateVariantWeights(variants); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.storage.SaveVariants(r.Context(), experimentId, variants); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, variants)
}

func (s *Server) HandleStartExperiment(w http.ResponseWriter, r *http.Request) {
	experimentId := mux.Vars(r)["id"]
	experiment, err := s.storage.GetExperiment(r.Context(), experimentId)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if experiment == nil {
		respondWithError(w, http.StatusNotFound, "experiment not found")
		return
	}
	variants, err := s.storage.ListVariants(r.Context(), experimentId)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(variants) == 0 {
		respondWithError(w, http.StatusConflict, "experiment has no variants")
		return
	}
	if err := s.storage.SetExperimentStatus(r.Context(), experimentId, model.EXPERIMENT_RUNNING); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "experiment started"})
}

type conversionRequest struct {
	LeadId      string  `json:"leadId"`
	MetricValue float64 `json:"metricValue"`
}

func (s *Server) HandleRecordConversion(w http.ResponseWriter, r *http.Request) {
	experimentId := mux.Vars(r)["id"]
	var req conversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LeadId == "" {
		respondWithError(w, http.StatusBadRequest, "leadId is required")
		return
	}
	assignment, err := s.storage.GetAssignment(r.Context(), experimentId, req.LeadId)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if assignment == nil {
		respondWithError(w, http.StatusNotFound, "no assignment for this experiment and lead")
		return
	}
	if err := s.storage.RecordConversion(r.Context(), experimentId, req.LeadId, req.MetricValue); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "conversion recorded"})
}
