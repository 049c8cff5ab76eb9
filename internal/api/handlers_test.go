package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dshills/promptwizard/internal/catalog"
	"github.com/dshills/promptwizard/internal/llm"
	"github.com/dshills/promptwizard/internal/logger"
	"github.com/dshills/promptwizard/internal/playground"
	"github.com/dshills/promptwizard/internal/repository/mock"
	"github.com/dshills/promptwizard/internal/validator"
	"github.com/dshills/promptwizard/internal/wizard"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	repo    *mock.Repository
	invoker *llm.MockInvoker
	wizards *wizard.Registry
	mux     http.Handler
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	repo := mock.New()
	log := logger.Nop()
	invoker := &llm.MockInvoker{Fail: map[string]error{}}
	cat := catalog.New(repo, nil, time.Minute, log)
	mirror := wizard.NewMirror(repo, wizard.MirrorOptions{Attempts: 1}, log)
	val, err := validator.New()
	require.NoError(t, err)

	s := &testServer{
		repo:    repo,
		invoker: invoker,
		wizards: wizard.NewRegistry(mirror, repo, log),
	}
	h := NewHandler(Deps{
		Wizards:    s.wizards,
		Catalog:    cat,
		Playground: playground.New(repo, invoker, cat, playground.Options{MaxParallel: 2}, log),
		Validator:  val,
		Log:        log,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	s.mux = Chain(mux, CORS("*"), AccessLog(log))
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[healthResponse](t, rec).Status)
}

func TestListModels(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[listModelsResponse](t, rec)
	assert.Len(t, resp.Models, 4)
	assert.Equal(t, "gpt-4", resp.DefaultModel)

	s.repo.SetFailing(true)
	rec = s.do(t, http.MethodGet, "/models?all=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[listModelsResponse](t, rec).Models, 4, "fallback list")
}

func TestGenerateTemplate(t *testing.T) {
	s := setupServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		contains   []string
		variables  []string
		wantError  string
	}{
		{
			name:       "all answers",
			body:       `{"goal": "Write a poem", "answers": {"context": "for kids", "requirements": "rhymes", "format": "4 lines"}}`,
			wantStatus: http.StatusOK,
			contains:   []string{"Write a poem", "Context: for kids", "[USER_REQUEST]"},
			variables:  []string{"USER_REQUEST", "ADDITIONAL_NOTES"},
		},
		{
			name:       "no answers",
			body:       `{"goal": "Write a poem"}`,
			wantStatus: http.StatusOK,
			contains:   []string{"[CONTEXT]", "[REQUIREMENTS]", "[FORMAT]"},
			variables:  []string{"CONTEXT", "REQUIREMENTS", "FORMAT", "USER_REQUEST", "ADDITIONAL_NOTES"},
		},
		{
			name:       "invalid json",
			body:       `{invalid}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_json",
		},
		{
			name:       "blank goal",
			body:       `{"goal": "   ", "answers": {"context": "for kids"}}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "validation_error",
		},
		{
			name:       "missing goal",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/templates/generate", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, tt.wantError, decodeBody[errorResponse](t, rec).Error)
				return
			}
			resp := decodeBody[generateResponse](t, rec)
			for _, want := range tt.contains {
				assert.Contains(t, resp.Template, want)
			}
			assert.Equal(t, tt.variables, resp.Variables)
		})
	}
}

func TestExtractVariables(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodPost, "/templates/extract", `{"text": "Hi [NAME], meet [NAME] and [OTHER] [unterminated"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"NAME", "NAME", "OTHER"}, decodeBody[extractResponse](t, rec).Variables)
}

func TestResolveTemplate(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodPost, "/templates/resolve", `{"template": "[A] and [B] and [A]", "values": {"A": "x", "B": "  "}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[resolveResponse](t, rec)
	assert.Equal(t, "x and [B] and x", resp.Resolved)
	assert.Equal(t, []string{"B"}, resp.Unresolved)

	rec = s.do(t, http.MethodPost, "/templates/resolve", `{"template": "no markers"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{}, decodeBody[resolveResponse](t, rec).Unresolved)
}

func TestWizardNotFound(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/wizards/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/wizards/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_uuid", decodeBody[errorResponse](t, rec).Error)

	rec = s.do(t, http.MethodDelete, "/wizards/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWizardErrors(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodPost, "/wizards", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[wizard.Snapshot](t, rec).ID.String()

	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/goal", `{"goal": "too early"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeBody[errorResponse](t, rec).Error)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/wizards/"+id+"/start", "").Code)

	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/goal", `{"goal": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeBody[errorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/goal", `{bad`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeBody[errorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPut, "/wizards/"+id+"/variables", `{"values": {"A": "1"}}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/wizards/"+id+"/runs", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/wizards/"+id+"/export", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteWizard(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodPost, "/wizards", "")
	id := decodeBody[wizard.Snapshot](t, rec).ID.String()

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/wizards/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/wizards/"+id, "").Code)
	assert.Zero(t, s.wizards.Len())
}

func TestListResultsErrors(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/prompts/"+uuid.NewString()+"/results", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/prompts/nope/results", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResumeUnknownSession(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodPost, "/sessions/"+uuid.NewString()+"/resume", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS("https://app.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/wizards", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodGet, "/wizards", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
