package mock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/repository"
	"github.com/google/uuid"
)

// ErrUnavailable is returned by every operation while the repository is failing.
var ErrUnavailable = errors.New("repository unavailable")

// Repository is an in-memory repository. It backs the "memory" storage driver
// and tests.
type Repository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
	prompts  map[uuid.UUID]*domain.Prompt
	results  map[uuid.UUID]*domain.Result
	models   map[string]*domain.Model
	failing  bool
	calls    map[string]int
	closed   bool
}

// New creates a new in-memory repository seeded with the default models.
func New() *Repository {
	r := &Repository{
		sessions: make(map[uuid.UUID]*domain.Session),
		prompts:  make(map[uuid.UUID]*domain.Prompt),
		results:  make(map[uuid.UUID]*domain.Result),
		models:   make(map[string]*domain.Model),
		calls:    make(map[string]int),
	}
	for _, m := range repository.DefaultModels() {
		r.models[m.ID] = m
	}
	return r
}

// SetFailing makes every subsequent call return ErrUnavailable (or not).
func (r *Repository) SetFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = failing
}

// Calls returns how many times the named method was invoked.
func (r *Repository) Calls(method string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls[method]
}

// enter records a call and reports the injected failure, if any.
// Callers must hold r.mu for writing.
func (r *Repository) enter(method string) error {
	r.calls[method]++
	if r.failing {
		return ErrUnavailable
	}
	return nil
}

// Sessions

func (r *Repository) CreateSession(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("CreateSession"); err != nil {
		return err
	}
	if _, ok := r.sessions[session.ID]; ok {
		return domain.ErrConflict
	}
	r.sessions[session.ID] = repository.CloneSession(session)
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("GetSession"); err != nil {
		return nil, err
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return repository.CloneSession(s), nil
}

func (r *Repository) UpdateSession(ctx context.Context, id uuid.UUID, update domain.SessionUpdate) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("UpdateSession"); err != nil {
		return nil, err
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	repository.ApplyUpdate(s, update)
	s.UpdatedAt = time.Now().UTC()
	return repository.CloneSession(s), nil
}

// Prompts

func (r *Repository) CreatePrompt(ctx context.Context, prompt *domain.Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("CreatePrompt"); err != nil {
		return err
	}
	p := *prompt
	r.prompts[prompt.ID] = &p
	return nil
}

func (r *Repository) GetPrompt(ctx context.Context, id uuid.UUID) (*domain.Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("GetPrompt"); err != nil {
		return nil, err
	}
	p, ok := r.prompts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *p
	return &out, nil
}

// Results

func (r *Repository) CreateResult(ctx context.Context, result *domain.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("CreateResult"); err != nil {
		return err
	}
	if _, ok := r.prompts[result.PromptID]; !ok {
		return domain.ErrNotFound
	}
	res := *result
	r.results[result.ID] = &res
	return nil
}

func (r *Repository) ListResultsForPrompt(ctx context.Context, promptID uuid.UUID) ([]*domain.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ListResultsForPrompt"); err != nil {
		return nil, err
	}
	var out []*domain.Result
	for _, res := range r.results {
		if res.PromptID == promptID {
			c := *res
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Models

func (r *Repository) ListActiveModels(ctx context.Context) ([]*domain.Model, error) {
	return r.listModels("ListActiveModels", true)
}

func (r *Repository) ListModels(ctx context.Context) ([]*domain.Model, error) {
	return r.listModels("ListModels", false)
}

func (r *Repository) listModels(method string, activeOnly bool) ([]*domain.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(method); err != nil {
		return nil, err
	}
	var out []*domain.Model
	for _, m := range r.models {
		if activeOnly && !m.IsActive {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Repository) UpsertModel(ctx context.Context, model *domain.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("UpsertModel"); err != nil {
		return err
	}
	m := *model
	r.models[model.ID] = &m
	return nil
}

// Close marks the repository closed.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Ensure Repository implements repository.Repository
var _ repository.Repository = (*Repository)(nil)
