package repository

import (
	"maps"
	"slices"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/engine"
)

// ApplyUpdate copies the non-nil fields of update onto session.
func ApplyUpdate(session *domain.Session, update domain.SessionUpdate) {
	if update.CurrentStep != nil {
		session.CurrentStep = *update.CurrentStep
	}
	if update.Answers != nil {
		session.Answers = engine.CloneAnswers(update.Answers)
	}
	if update.Template != nil {
		tmpl := *update.Template
		session.Template = &tmpl
	}
	if update.Variables != nil {
		session.Variables = slices.Clone(update.Variables)
	}
	if update.VariableValues != nil {
		session.VariableValues = maps.Clone(update.VariableValues)
	}
	if update.TestResults != nil {
		session.TestResults = slices.Clone(update.TestResults)
	}
}

// CloneSession returns a deep copy of s.
func CloneSession(s *domain.Session) *domain.Session {
	c := *s
	c.Answers = engine.CloneAnswers(s.Answers)
	if s.Template != nil {
		tmpl := *s.Template
		c.Template = &tmpl
	}
	c.Variables = slices.Clone(s.Variables)
	c.VariableValues = maps.Clone(s.VariableValues)
	c.TestResults = slices.Clone(s.TestResults)
	return &c
}

// Normalize replaces nil collections with empty ones so sessions serialize
// as {} and [] rather than null.
func Normalize(s *domain.Session) {
	if s.Answers == nil {
		s.Answers = engine.NewAnswers()
	}
	if s.Variables == nil {
		s.Variables = []string{}
	}
	if s.VariableValues == nil {
		s.VariableValues = map[string]string{}
	}
	if s.TestResults == nil {
		s.TestResults = []domain.TestResultRef{}
	}
}
