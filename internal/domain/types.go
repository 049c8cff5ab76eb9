package domain

import (
	"time"

	"github.com/dshills/promptwizard/internal/engine"
	"github.com/google/uuid"
)

// Step represents a wizard stage.
type Step string

const (
	StepLanding   Step = "landing"
	StepGoal      Step = "goal"
	StepQuestions Step = "questions"
	StepTemplate  Step = "template"
	StepTesting   Step = "testing"
)

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepLanding, StepGoal, StepQuestions, StepTemplate, StepTesting:
		return true
	}
	return false
}

// Session is the durable record of one wizard run.
type Session struct {
	ID             uuid.UUID         `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Goal           string            `json:"goal"`
	CurrentStep    Step              `json:"current_step"`
	Answers        *engine.Answers   `json:"answers"`
	Template       *string           `json:"template"` // nil until generated
	Variables      []string          `json:"variables"`
	VariableValues map[string]string `json:"variable_values"`
	TestResults    []TestResultRef   `json:"test_results"`
}

// SessionUpdate carries the fields to change on a session. Nil fields are left as-is.
type SessionUpdate struct {
	CurrentStep    *Step
	Answers        *engine.Answers
	Template       *string
	Variables      []string
	VariableValues map[string]string
	TestResults    []TestResultRef
}

// Empty reports whether the update changes nothing.
func (u SessionUpdate) Empty() bool {
	return u.CurrentStep == nil && u.Answers == nil && u.Template == nil &&
		u.Variables == nil && u.VariableValues == nil && u.TestResults == nil
}

// TestResultRef links a session to a recorded test run.
type TestResultRef struct {
	PromptID    uuid.UUID `json:"prompt_id"`
	ResultID    uuid.UUID `json:"result_id"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
}

// Prompt is a resolved prompt captured during testing.
type Prompt struct {
	ID             uuid.UUID         `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	SessionID      *uuid.UUID        `json:"session_id"` // nil when the session was never persisted
	Template       string            `json:"template"`
	Variables      map[string]string `json:"variables"`
	ResolvedPrompt string            `json:"resolved_prompt"`
}

// Result is a model response to a prompt.
type Result struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	PromptID     uuid.UUID `json:"prompt_id"`
	Model        string    `json:"model"`
	Temperature  float64   `json:"temperature"`
	Response     string    `json:"response"`
	ResponseTime int64     `json:"response_time"` // milliseconds
}

// Model is an entry of the model catalog.
type Model struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Provider    string    `json:"provider"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
