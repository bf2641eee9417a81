package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/leadflowhq/leadflow/engine"
	"github.com/leadflowhq/leadflow/logger"
	"github.com/leadflowhq/leadflow/persistence"
	"go.uber.org/zap"
)

// Server exposes the engine's operator surface: workflow, template, rule
// and experiment administration plus the lead-score entry point driven by
// the CRM's scoring pipeline.
type Server struct {
	http.Server
	Port     int
	storage  persistence.Storage
	trigger  *engine.TriggerEvaluator
	selector *engine.TemplateSelector
}

func NewServer(httpPort int, storage persistence.Storage, trigger *engine.TriggerEvaluator, selector *engine.TemplateSelector) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", httpPort),
		},
		Port:     httpPort,
		storage:  storage,
		trigger:  trigger,
		selector: selector,
	}

	router := mux.NewRouter()
	router.HandleFunc("/workflows", s.HandleCreateWorkflow).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{id}", s.HandleGetWorkflow).Methods(http.MethodGet)
	router.HandleFunc("/workflows/{id}/steps", s.HandleCreateStep).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{id}/deactivate", s.HandleDeactivateWorkflow).Methods(http.MethodPost)
	router.HandleFunc("/workflows/{id}/executions", s.HandleListExecutions).Methods(http.MethodGet)
	router.HandleFunc("/templates", s.HandleCreateTemplate).Methods(http.MethodPost)
	router.HandleFunc("/rules", s.HandleCreateRule).Methods(http.MethodPost)
	router.HandleFunc("/experiments", s.HandleCreateExperiment).Methods(http.MethodPost)
	router.HandleFunc("/experiments/{id}/variants", s.HandleSetVariants).Methods(http.MethodPost)
	router.HandleFunc("/experiments/{id}/start", s.HandleStartExperiment).Methods(http.MethodPost)
	router.HandleFunc("/experiments/{id}/conversions", s.HandleRecordConversion).Methods(http.MethodPost)
	router.HandleFunc("/leads/{leadId}/score", s.HandleScoreChange).Methods(http.MethodPost)
	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
