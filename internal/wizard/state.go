// Package wizard implements the five-stage prompt wizard: a pure transition
// function over State, and a Machine that applies transitions and mirrors
// them to persistence on a best-effort basis.
package wizard

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/engine"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEmptyInput        = errors.New("input is empty")
	ErrMissingValues     = errors.New("variables are missing values")
	ErrUnknownVariable   = errors.New("unknown variable")
)

// MissingValuesError lists the variables that still need a value.
type MissingValuesError struct {
	Names []string
}

func (e *MissingValuesError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingValues, strings.Join(e.Names, ", "))
}

func (e *MissingValuesError) Unwrap() error { return ErrMissingValues }

// UnknownVariablesError lists names that are not variables of the template.
type UnknownVariablesError struct {
	Names []string
}

func (e *UnknownVariablesError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownVariable, strings.Join(e.Names, ", "))
}

func (e *UnknownVariablesError) Unwrap() error { return ErrUnknownVariable }

// Question is one clarifying question asked during the questions step.
type Question struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Placeholder string `json:"placeholder"`
}

// Questions are asked in order; each answer is stored under the question ID.
var Questions = []Question{
	{
		ID:          engine.KeyContext,
		Text:        "What context or background information should the AI consider?",
		Placeholder: "Describe the setting, audience, or relevant background...",
	},
	{
		ID:          engine.KeyRequirements,
		Text:        "What are the specific requirements or constraints for the output?",
		Placeholder: "Length, tone, format, specific elements to include/exclude...",
	},
	{
		ID:          engine.KeyFormat,
		Text:        "What format should the output be in?",
		Placeholder: "Paragraph, bullet points, JSON, table, specific structure...",
	},
}

// State is the complete in-memory state of one wizard run.
// Variables always equals engine.ExtractVariables(Template).
type State struct {
	Step          domain.Step
	Goal          string
	QuestionIndex int
	Answers       *engine.Answers
	Template      string
	Variables     []string
	Values        map[string]string
	TestResults   []domain.TestResultRef
	UsedFallback  bool
}

// NewState returns the landing state.
func NewState() State {
	return State{
		Step:        domain.StepLanding,
		Answers:     engine.NewAnswers(),
		Variables:   []string{},
		Values:      map[string]string{},
		TestResults: []domain.TestResultRef{},
	}
}

// CurrentQuestion returns the question awaiting an answer.
func (s State) CurrentQuestion() (Question, bool) {
	if s.Step != domain.StepQuestions || s.QuestionIndex >= len(Questions) {
		return Question{}, false
	}
	return Questions[s.QuestionIndex], true
}

// Resolved renders the template with the current values.
func (s State) Resolved() string {
	return engine.Resolve(s.Template, s.Variables, s.Values)
}

// Missing lists distinct variables without a non-empty value.
func (s State) Missing() []string {
	return engine.Unresolved(s.Variables, s.Values)
}

func (s State) clone() State {
	c := s
	c.Answers = engine.CloneAnswers(s.Answers)
	c.Variables = slices.Clone(s.Variables)
	c.Values = maps.Clone(s.Values)
	c.TestResults = slices.Clone(s.TestResults)
	if c.Values == nil {
		c.Values = map[string]string{}
	}
	return c
}

// Event is an input to Transition.
type Event interface {
	Kind() string
}

type (
	Start        struct{}
	SubmitGoal   struct{ Goal string }
	SubmitAnswer struct{ Text string }
	SetVariable  struct{ Name, Value string }
	// SetVariables applies several values in one transition. Any unknown
	// name rejects the whole event.
	SetVariables struct{ Values map[string]string }
	Advance      struct{}
	RecordResult struct{ Ref domain.TestResultRef }
)

func (Start) Kind() string        { return "start" }
func (SubmitGoal) Kind() string   { return "submit_goal" }
func (SubmitAnswer) Kind() string { return "submit_answer" }
func (SetVariable) Kind() string  { return "set_variable" }
func (SetVariables) Kind() string { return "set_variables" }
func (Advance) Kind() string      { return "advance" }
func (RecordResult) Kind() string { return "record_result" }

// Transition applies ev to s and returns the next state. s is never
// modified; on error the returned state equals s.
func Transition(s State, ev Event) (State, error) {
	switch e := ev.(type) {
	case Start:
		if s.Step != domain.StepLanding {
			return s, invalid(s, ev)
		}
		next := s.clone()
		next.Step = domain.StepGoal
		return next, nil

	case SubmitGoal:
		if s.Step != domain.StepGoal {
			return s, invalid(s, ev)
		}
		goal := strings.TrimSpace(e.Goal)
		if goal == "" {
			return s, fmt.Errorf("goal: %w", ErrEmptyInput)
		}
		next := s.clone()
		next.Goal = goal
		next.QuestionIndex = 0
		next.Step = domain.StepQuestions
		return next, nil

	case SubmitAnswer:
		q, ok := s.CurrentQuestion()
		if !ok {
			return s, invalid(s, ev)
		}
		if strings.TrimSpace(e.Text) == "" {
			return s, fmt.Errorf("answer to %s: %w", q.ID, ErrEmptyInput)
		}
		next := s.clone()
		next.Answers.Set(q.ID, e.Text)
		next.QuestionIndex++
		if next.QuestionIndex == len(Questions) {
			next.generate()
		}
		return next, nil

	case SetVariable:
		if s.Step != domain.StepTemplate {
			return s, invalid(s, ev)
		}
		if !slices.Contains(s.Variables, e.Name) {
			return s, fmt.Errorf("%w: %q", ErrUnknownVariable, e.Name)
		}
		next := s.clone()
		next.Values[e.Name] = e.Value
		return next, nil

	case SetVariables:
		if s.Step != domain.StepTemplate {
			return s, invalid(s, ev)
		}
		var unknown []string
		for name := range e.Values {
			if !slices.Contains(s.Variables, name) {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			slices.Sort(unknown)
			return s, &UnknownVariablesError{Names: unknown}
		}
		next := s.clone()
		maps.Copy(next.Values, e.Values)
		return next, nil

	case Advance:
		if s.Step != domain.StepTemplate {
			return s, invalid(s, ev)
		}
		if missing := s.Missing(); len(missing) > 0 {
			return s, &MissingValuesError{Names: missing}
		}
		next := s.clone()
		next.Step = domain.StepTesting
		return next, nil

	case RecordResult:
		if s.Step != domain.StepTesting {
			return s, invalid(s, ev)
		}
		next := s.clone()
		next.TestResults = append(next.TestResults, e.Ref)
		return next, nil

	default:
		return s, invalid(s, ev)
	}
}

// generateTemplate is the template generator used on the last answer.
var generateTemplate engine.Generator = engine.Generate

// generate fills Template and Variables from Goal and Answers and moves to
// the template step.
func (s *State) generate() {
	s.Template, s.UsedFallback = engine.SafeGenerateWith(generateTemplate, s.Goal, s.Answers)
	s.Variables = engine.ExtractVariables(s.Template)
	s.Step = domain.StepTemplate
}

func invalid(s State, ev Event) error {
	name := "unknown"
	if ev != nil {
		name = ev.Kind()
	}
	return fmt.Errorf("%w: %s during %s", ErrInvalidTransition, name, s.Step)
}
