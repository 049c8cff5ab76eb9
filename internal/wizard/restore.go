package wizard

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/engine"
	"github.com/google/uuid"
)

// Restore rebuilds a machine from a persisted session. Variables are always
// re-derived from the template, and the template is regenerated from goal
// and answers when the stored one is missing.
func Restore(id uuid.UUID, session *domain.Session, mirror *Mirror) (*Machine, error) {
	if !session.CurrentStep.Valid() {
		return nil, fmt.Errorf("%w: session %s has unknown step %q", domain.ErrInvalidInput, session.ID, session.CurrentStep)
	}

	s := NewState()
	s.Step = session.CurrentStep
	s.Goal = session.Goal
	if session.Answers != nil {
		s.Answers = engine.CloneAnswers(session.Answers)
	}
	if session.VariableValues != nil {
		s.Values = maps.Clone(session.VariableValues)
	}
	if session.TestResults != nil {
		s.TestResults = slices.Clone(session.TestResults)
	}

	for _, q := range Questions {
		if _, ok := s.Answers.Get(q.ID); !ok {
			break
		}
		s.QuestionIndex++
	}

	switch {
	case s.Step == domain.StepQuestions && s.QuestionIndex == len(Questions):
		s.generate()
	case s.Step == domain.StepTemplate || s.Step == domain.StepTesting:
		if session.Template != nil && *session.Template != "" {
			s.Template = *session.Template
			s.Variables = engine.ExtractVariables(s.Template)
		} else {
			step := s.Step
			s.generate()
			s.Step = step
		}
	}

	sessionID := session.ID
	m := &Machine{
		id:        id,
		state:     s,
		mirror:    mirror,
		createdAt: session.CreatedAt,
		updatedAt: time.Now().UTC(),
	}
	m.sessionID.Store(&sessionID)
	return m, nil
}
