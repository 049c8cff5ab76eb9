package wizard

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/engine"
	"github.com/google/uuid"
)

// Machine owns one wizard run. It serializes events, applies Transition,
// and mirrors accepted transitions to persistence.
//
// mu guards state. persistMu orders mirror writes and is held without mu,
// so readers never wait on persistence.
type Machine struct {
	mu        sync.Mutex
	persistMu sync.Mutex
	id        uuid.UUID
	state     State
	sessionID atomic.Pointer[uuid.UUID]
	mirror    *Mirror
	createdAt time.Time
	updatedAt time.Time
}

// NewMachine returns a machine in the landing step. mirror may be nil.
func NewMachine(id uuid.UUID, mirror *Mirror) *Machine {
	now := time.Now().UTC()
	return &Machine{
		id:        id,
		state:     NewState(),
		mirror:    mirror,
		createdAt: now,
		updatedAt: now,
	}
}

func (m *Machine) ID() uuid.UUID { return m.id }

// Dispatch applies ev. A rejected event leaves the machine unchanged and
// returns the error alongside the current snapshot. Persistence runs after
// the transition is committed and cannot fail the call. Dispatch waits for
// the mirror, including its retries, but Snapshot and other readers do not.
func (m *Machine) Dispatch(ctx context.Context, ev Event) (Snapshot, error) {
	m.mu.Lock()
	next, err := Transition(m.state, ev)
	if err != nil {
		snap := m.snapshot()
		m.mu.Unlock()
		return snap, err
	}
	prev := m.state
	m.state = next
	m.updatedAt = time.Now().UTC()
	snap := m.snapshot()

	// Taken before mu is released so writes reach the mirror in transition order.
	m.persistMu.Lock()
	m.mu.Unlock()
	m.persist(ctx, prev, next.clone(), ev)
	m.persistMu.Unlock()

	snap.SessionID = m.SessionID()
	return snap, nil
}

// persist must be called with persistMu held.
func (m *Machine) persist(ctx context.Context, prev, s State, ev Event) {
	switch ev.(type) {
	case SubmitGoal:
		m.sessionID.Store(m.mirror.Create(ctx, s.Goal))

	case SubmitAnswer:
		if prev.Step == domain.StepQuestions && s.Step == domain.StepTemplate {
			step := s.Step
			tmpl := s.Template
			m.mirror.Update(ctx, m.sessionID.Load(), domain.SessionUpdate{
				CurrentStep: &step,
				Answers:     engine.CloneAnswers(s.Answers),
				Template:    &tmpl,
				Variables:   slices.Clone(s.Variables),
			})
		}

	case Advance:
		step := s.Step
		m.mirror.Update(ctx, m.sessionID.Load(), domain.SessionUpdate{
			CurrentStep:    &step,
			VariableValues: maps.Clone(s.Values),
		})

	case RecordResult:
		m.mirror.Update(ctx, m.sessionID.Load(), domain.SessionUpdate{
			TestResults: slices.Clone(s.TestResults),
		})
	}
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// SessionID returns the persisted session id, or nil when nothing was stored.
func (m *Machine) SessionID() *uuid.UUID {
	p := m.sessionID.Load()
	if p == nil {
		return nil
	}
	id := *p
	return &id
}

// Resolved returns the resolved prompt for the current values.
func (m *Machine) Resolved() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Resolved()
}

// Snapshot returns a serializable view of the machine.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot()
}

func (m *Machine) snapshot() Snapshot {
	s := m.state.clone()
	snap := Snapshot{
		ID:            m.id,
		Step:          s.Step,
		Goal:          s.Goal,
		QuestionCount: len(Questions),
		Answers:       s.Answers,
		Template:      s.Template,
		Variables:     s.Variables,
		Values:        s.Values,
		Missing:       []string{},
		TestResults:   s.TestResults,
		UsedFallback:  s.UsedFallback,
		CreatedAt:     m.createdAt,
		UpdatedAt:     m.updatedAt,
	}
	snap.SessionID = m.SessionID()
	if q, ok := s.CurrentQuestion(); ok {
		snap.Question = &q
		snap.QuestionNumber = s.QuestionIndex + 1
	}
	if s.Step == domain.StepTemplate || s.Step == domain.StepTesting {
		snap.Missing = s.Missing()
	}
	if s.Step == domain.StepTesting {
		snap.ResolvedPrompt = s.Resolved()
	}
	return snap
}

// Snapshot is the externally visible state of a wizard.
type Snapshot struct {
	ID             uuid.UUID              `json:"id"`
	SessionID      *uuid.UUID             `json:"session_id"`
	Step           domain.Step            `json:"step"`
	Goal           string                 `json:"goal,omitempty"`
	Question       *Question              `json:"question,omitempty"`
	QuestionNumber int                    `json:"question_number,omitempty"`
	QuestionCount  int                    `json:"question_count"`
	Answers        *engine.Answers        `json:"answers"`
	Template       string                 `json:"template,omitempty"`
	Variables      []string               `json:"variables"`
	Values         map[string]string      `json:"values"`
	Missing        []string               `json:"missing"`
	ResolvedPrompt string                 `json:"resolved_prompt,omitempty"`
	TestResults    []domain.TestResultRef `json:"test_results"`
	UsedFallback   bool                   `json:"used_fallback,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}
