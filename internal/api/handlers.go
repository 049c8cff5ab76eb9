package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dshills/promptwizard/internal/catalog"
	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/engine"
	"github.com/dshills/promptwizard/internal/llm"
	"github.com/dshills/promptwizard/internal/logger"
	"github.com/dshills/promptwizard/internal/playground"
	"github.com/dshills/promptwizard/internal/validator"
	"github.com/dshills/promptwizard/internal/wizard"
	"github.com/google/uuid"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	wizards    *wizard.Registry
	catalog    *catalog.Catalog
	playground *playground.Service
	validator  *validator.Validator
	log        *logger.Logger
	now        func() time.Time
}

// Deps are the services the handlers call.
type Deps struct {
	Wizards    *wizard.Registry
	Catalog    *catalog.Catalog
	Playground *playground.Service
	Validator  *validator.Validator
	Log        *logger.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		wizards:    d.Wizards,
		catalog:    d.Catalog,
		playground: d.Playground,
		validator:  d.Validator,
		log:        log.With("component", "api"),
		now:        time.Now,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	// Models
	mux.HandleFunc("GET /models", h.ListModels)

	// Stateless template operations
	mux.HandleFunc("POST /templates/generate", h.GenerateTemplate)
	mux.HandleFunc("POST /templates/extract", h.ExtractVariables)
	mux.HandleFunc("POST /templates/resolve", h.ResolveTemplate)

	// Wizards
	mux.HandleFunc("POST /wizards", h.CreateWizard)
	mux.HandleFunc("GET /wizards/{wizardId}", h.GetWizard)
	mux.HandleFunc("DELETE /wizards/{wizardId}", h.DeleteWizard)
	mux.HandleFunc("POST /wizards/{wizardId}/start", h.StartWizard)
	mux.HandleFunc("POST /wizards/{wizardId}/goal", h.SubmitGoal)
	mux.HandleFunc("POST /wizards/{wizardId}/answers", h.SubmitAnswer)
	mux.HandleFunc("PUT /wizards/{wizardId}/variables", h.SetVariables)
	mux.HandleFunc("POST /wizards/{wizardId}/advance", h.Advance)

	// Testing
	mux.HandleFunc("POST /wizards/{wizardId}/runs", h.RunPrompt)
	mux.HandleFunc("POST /wizards/{wizardId}/compare", h.ComparePrompt)
	mux.HandleFunc("GET /wizards/{wizardId}/export", h.ExportPack)
	mux.HandleFunc("GET /prompts/{promptId}/results", h.ListResults)

	// Sessions
	mux.HandleFunc("POST /sessions/{sessionId}/resume", h.ResumeSession)
}

// Error response helpers

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err, message string) {
	writeJSON(w, status, errorResponse{Error: err, Message: message})
}

// writeFailure maps service errors to status codes.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var missing *wizard.MissingValuesError
	var unknown *wizard.UnknownVariablesError
	switch {
	case errors.As(err, &missing):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "missing_values",
			Message: err.Error(),
			Details: map[string][]string{"missing": missing.Names},
		})
	case errors.As(err, &unknown):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: err.Error(),
			Details: map[string][]string{"unknown": unknown.Names},
		})
	case errors.Is(err, wizard.ErrMissingValues):
		writeError(w, http.StatusUnprocessableEntity, "missing_values", err.Error())
	case errors.Is(err, wizard.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, wizard.ErrEmptyInput),
		errors.Is(err, wizard.ErrUnknownVariable),
		errors.Is(err, llm.ErrInvalidTemperature),
		errors.Is(err, llm.ErrUnknownModel),
		errors.Is(err, llm.ErrEmptyPrompt),
		errors.Is(err, playground.ErrNoModels),
		errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvocationFailed):
		writeError(w, http.StatusBadGateway, "invocation_failed", err.Error())
	default:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_uuid", "Invalid "+label+" ID format")
		return uuid.Nil, false
	}
	return id, true
}

// Health

type healthResponse struct {
	Status  string `json:"status"`
	Wizards int    `json:"wizards"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Wizards: h.wizards.Len()})
}

// Models

type listModelsResponse struct {
	Models       []*domain.Model `json:"models"`
	DefaultModel string          `json:"default_model"`
}

func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	var models []*domain.Model
	if r.URL.Query().Get("all") == "true" {
		models = h.catalog.AllModels(r.Context())
	} else {
		models = h.catalog.ActiveModels(r.Context())
	}
	if models == nil {
		models = []*domain.Model{}
	}
	writeJSON(w, http.StatusOK, listModelsResponse{Models: models, DefaultModel: h.playground.DefaultModel()})
}

// Templates

type generateRequest struct {
	Goal    string          `json:"goal"`
	Answers *engine.Answers `json:"answers"`
}

type generateResponse struct {
	Template     string   `json:"template"`
	Variables    []string `json:"variables"`
	UsedFallback bool     `json:"used_fallback,omitempty"`
}

func (h *Handler) GenerateTemplate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decode(w, r, &req) {
		return
	}
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "goal: "+wizard.ErrEmptyInput.Error())
		return
	}
	if req.Answers == nil {
		req.Answers = engine.NewAnswers()
	}
	tmpl, fellBack := engine.SafeGenerate(goal, req.Answers)
	writeJSON(w, http.StatusOK, generateResponse{
		Template:     tmpl,
		Variables:    engine.ExtractVariables(tmpl),
		UsedFallback: fellBack,
	})
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	Variables []string `json:"variables"`
}

func (h *Handler) ExtractVariables(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, extractResponse{Variables: engine.ExtractVariables(req.Text)})
}

type resolveRequest struct {
	Template string            `json:"template"`
	Values   map[string]string `json:"values"`
}

type resolveResponse struct {
	Resolved   string   `json:"resolved"`
	Unresolved []string `json:"unresolved"`
}

func (h *Handler) ResolveTemplate(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	vars := engine.ExtractVariables(req.Template)
	unresolved := engine.Unresolved(vars, req.Values)
	if unresolved == nil {
		unresolved = []string{}
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Resolved:   engine.Resolve(req.Template, vars, req.Values),
		Unresolved: unresolved,
	})
}
