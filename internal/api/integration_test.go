package api

import (
	"archive/zip"
	"bytes"
	"errors"
	"net/http"
	"testing"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/export"
	"github.com/dshills/promptwizard/internal/playground"
	"github.com/dshills/promptwizard/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// walkToTemplate drives a new wizard through the goal and questions steps.
func walkToTemplate(t *testing.T, s *testServer) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/wizards", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	snap := decodeBody[wizard.Snapshot](t, rec)
	assert.Equal(t, domain.StepLanding, snap.Step)
	id := snap.ID.String()

	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StepGoal, decodeBody[wizard.Snapshot](t, rec).Step)

	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/goal", `{"goal": "  Summarize news articles  "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decodeBody[wizard.Snapshot](t, rec)
	assert.Equal(t, domain.StepQuestions, snap.Step)
	assert.Equal(t, "Summarize news articles", snap.Goal)
	require.NotNil(t, snap.Question)
	assert.Equal(t, wizard.Questions[0].Text, snap.Question.Text)

	for i, answer := range []string{"daily digest readers", "under 200 words", "bullet points"} {
		rec = s.do(t, http.MethodPost, "/wizards/"+id+"/answers", `{"answer": "`+answer+`"}`)
		require.Equal(t, http.StatusOK, rec.Code, "answer %d: %s", i, rec.Body.String())
	}
	snap = decodeBody[wizard.Snapshot](t, rec)
	require.Equal(t, domain.StepTemplate, snap.Step)
	assert.Contains(t, snap.Template, "Context: daily digest readers")
	assert.Equal(t, []string{"USER_REQUEST", "ADDITIONAL_NOTES"}, snap.Variables)
	assert.Equal(t, []string{"USER_REQUEST", "ADDITIONAL_NOTES"}, snap.Missing)
	return id
}

func TestIntegration_FullWizardFlow(t *testing.T) {
	s := setupServer(t)
	id := walkToTemplate(t, s)

	rec := s.do(t, http.MethodGet, "/wizards/"+id, "")
	require.NotNil(t, decodeBody[wizard.Snapshot](t, rec).SessionID, "session mirrored on goal submission")

	// Advancing with missing values is rejected with the names.
	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/advance", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errResp := decodeBody[struct {
		Error   string              `json:"error"`
		Details map[string][]string `json:"details"`
	}](t, rec)
	assert.Equal(t, "missing_values", errResp.Error)
	assert.Equal(t, []string{"USER_REQUEST", "ADDITIONAL_NOTES"}, errResp.Details["missing"])

	// Unknown names reject the whole request.
	rec = s.do(t, http.MethodPut, "/wizards/"+id+"/variables", `{"values": {"USER_REQUEST": "x", "NOPE": "y"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp = decodeBody[struct {
		Error   string              `json:"error"`
		Details map[string][]string `json:"details"`
	}](t, rec)
	assert.Equal(t, "validation_error", errResp.Error)
	assert.Equal(t, []string{"NOPE"}, errResp.Details["unknown"])
	rec = s.do(t, http.MethodGet, "/wizards/"+id, "")
	assert.Empty(t, decodeBody[wizard.Snapshot](t, rec).Values)

	rec = s.do(t, http.MethodPut, "/wizards/"+id+"/variables", `{"values": {"USER_REQUEST": "today's top stories", "ADDITIONAL_NOTES": "neutral tone"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[wizard.Snapshot](t, rec).Missing)

	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/advance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[wizard.Snapshot](t, rec)
	assert.Equal(t, domain.StepTesting, snap.Step)
	assert.Contains(t, snap.ResolvedPrompt, "today's top stories")
	assert.NotContains(t, snap.ResolvedPrompt, "[USER_REQUEST]")

	// Single run with defaults.
	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/runs", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decodeBody[playground.Run](t, rec)
	assert.Equal(t, "gpt-4", run.Model)
	assert.Equal(t, 0.7, run.Temperature)
	require.NotNil(t, run.PromptID)

	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/runs", `{"temperature": 2.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/runs", `{"model": "unknown-model"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Comparison across models with one failing.
	s.invoker.Fail["claude-3-sonnet"] = errors.New("overloaded")
	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/compare", `{"models": ["claude-3-opus", "claude-3-sonnet"], "temperature": 0.2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cmp := decodeBody[compareResponse](t, rec)
	require.Len(t, cmp.Runs, 2)
	assert.Empty(t, cmp.Runs[0].Error)
	assert.Contains(t, cmp.Runs[1].Error, "overloaded")

	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/compare", `{"models": ["claude-3-sonnet"]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = s.do(t, http.MethodGet, "/prompts/"+run.PromptID.String()+"/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[listResultsResponse](t, rec).Results, 1)

	rec = s.do(t, http.MethodGet, "/wizards/"+id, "")
	snap = decodeBody[wizard.Snapshot](t, rec)
	assert.Len(t, snap.TestResults, 2)

	// Export.
	rec = s.do(t, http.MethodGet, "/wizards/"+id+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "summarize-news-articles-prompt.zip")

	body := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{export.TemplateFile, export.ResolvedFile, export.PackFile, export.ResultsFile}, names)
}

func TestIntegration_ResumeSession(t *testing.T) {
	s := setupServer(t)
	id := walkToTemplate(t, s)

	rec := s.do(t, http.MethodPut, "/wizards/"+id+"/variables", `{"values": {"USER_REQUEST": "a", "ADDITIONAL_NOTES": "b"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/advance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	original := decodeBody[wizard.Snapshot](t, rec)
	require.NotNil(t, original.SessionID)

	rec = s.do(t, http.MethodPost, "/sessions/"+original.SessionID.String()+"/resume", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resumed := decodeBody[wizard.Snapshot](t, rec)

	assert.NotEqual(t, original.ID, resumed.ID)
	assert.Equal(t, *original.SessionID, *resumed.SessionID)
	assert.Equal(t, domain.StepTesting, resumed.Step)
	assert.Equal(t, original.Template, resumed.Template)
	assert.Equal(t, original.ResolvedPrompt, resumed.ResolvedPrompt)
	assert.Equal(t, 2, s.wizards.Len())
}

func TestIntegration_PersistenceOutage(t *testing.T) {
	s := setupServer(t)
	s.repo.SetFailing(true)

	id := walkToTemplate(t, s)
	rec := s.do(t, http.MethodGet, "/wizards/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[wizard.Snapshot](t, rec)
	assert.Equal(t, domain.StepTemplate, snap.Step)
	assert.Nil(t, snap.SessionID)
}
