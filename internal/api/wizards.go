package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/export"
	"github.com/dshills/promptwizard/internal/playground"
	"github.com/dshills/promptwizard/internal/wizard"
)

func (h *Handler) machine(w http.ResponseWriter, r *http.Request) (*wizard.Machine, bool) {
	id, ok := pathUUID(w, r, "wizardId", "wizard")
	if !ok {
		return nil, false
	}
	m, err := h.wizards.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Wizard not found")
		return nil, false
	}
	return m, true
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, m *wizard.Machine, ev wizard.Event) {
	snap, err := m.Dispatch(r.Context(), ev)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CreateWizard registers a new wizard in the landing step.
func (h *Handler) CreateWizard(w http.ResponseWriter, r *http.Request) {
	m := h.wizards.New()
	writeJSON(w, http.StatusCreated, m.Snapshot())
}

func (h *Handler) GetWizard(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (h *Handler) DeleteWizard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "wizardId", "wizard")
	if !ok {
		return
	}
	if !h.wizards.Remove(id) {
		writeError(w, http.StatusNotFound, "not_found", "Wizard not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StartWizard(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	h.dispatch(w, r, m, wizard.Start{})
}

type submitGoalRequest struct {
	Goal string `json:"goal"`
}

func (h *Handler) SubmitGoal(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	var req submitGoalRequest
	if !decode(w, r, &req) {
		return
	}
	h.dispatch(w, r, m, wizard.SubmitGoal{Goal: req.Goal})
}

type submitAnswerRequest struct {
	Answer string `json:"answer"`
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	var req submitAnswerRequest
	if !decode(w, r, &req) {
		return
	}
	h.dispatch(w, r, m, wizard.SubmitAnswer{Text: req.Answer})
}

type setVariablesRequest struct {
	Values map[string]string `json:"values"`
}

// SetVariables applies every value in one transition. Unknown names reject
// the whole request.
func (h *Handler) SetVariables(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	var req setVariablesRequest
	if !decode(w, r, &req) {
		return
	}
	h.dispatch(w, r, m, wizard.SetVariables{Values: req.Values})
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	h.dispatch(w, r, m, wizard.Advance{})
}

// Testing

type runRequest struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
}

func (h *Handler) RunPrompt(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	var req runRequest
	if !decode(w, r, &req) {
		return
	}

	run, err := h.playground.Run(r.Context(), m, playground.RunRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type compareRequest struct {
	Models      []string `json:"models"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
}

type compareResponse struct {
	Runs []*playground.Run `json:"runs"`
}

func (h *Handler) ComparePrompt(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	var req compareRequest
	if !decode(w, r, &req) {
		return
	}

	runs, err := h.playground.Compare(r.Context(), m, req.Models, req.Temperature, req.MaxTokens)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, compareResponse{Runs: runs})
}

type listResultsResponse struct {
	Results []*domain.Result `json:"results"`
}

func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	promptID, ok := pathUUID(w, r, "promptId", "prompt")
	if !ok {
		return
	}
	results, err := h.playground.Results(r.Context(), promptID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if results == nil {
		results = []*domain.Result{}
	}
	writeJSON(w, http.StatusOK, listResultsResponse{Results: results})
}

// ExportPack streams the prompt pack zip for a wizard that has a template.
func (h *Handler) ExportPack(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	snap := m.Snapshot()
	if snap.Step != domain.StepTemplate && snap.Step != domain.StepTesting {
		writeError(w, http.StatusConflict, "invalid_transition", "Wizard has no template to export")
		return
	}

	contents, err := export.Build(h.validator, export.Input{
		WizardID:  snap.ID,
		SessionID: snap.SessionID,
		Goal:      snap.Goal,
		Answers:   snap.Answers,
		Template:  snap.Template,
		Variables: snap.Variables,
		Values:    snap.Values,
		Resolved:  m.Resolved(),
		Results:   h.playground.Recorded(r.Context(), snap.TestResults),
	}, h.now())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteZip(contents, &buf); err != nil {
		h.log.Error("writing export zip failed", "wizard_id", snap.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "zip_error", "Failed to create zip")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(snap.Goal)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// Sessions

func (h *Handler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "sessionId", "session")
	if !ok {
		return
	}
	m, err := h.wizards.Resume(r.Context(), sessionID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m.Snapshot())
}
