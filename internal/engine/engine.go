// Package engine turns a goal and clarifying answers into a prompt template,
// extracts the [NAME] markers it contains, and resolves them against values.
// Every function in this package is pure.
package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// Marker names emitted by the generator.
const (
	MarkerContext         = "CONTEXT"
	MarkerRequirements    = "REQUIREMENTS"
	MarkerFormat          = "FORMAT"
	MarkerUserRequest     = "USER_REQUEST"
	MarkerAdditionalNotes = "ADDITIONAL_NOTES"
)

// AdditionalInfoHeading introduces answers outside the well-known keys.
const AdditionalInfoHeading = "Additional Information:"

var markerPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// Marker returns the bracketed form of name.
func Marker(name string) string {
	return "[" + name + "]"
}

// ExtractVariables returns the names inside every [NAME] marker of text, in
// the order they appear. Repeated markers are repeated in the result.
// Unterminated or empty brackets are ignored.
func ExtractVariables(text string) []string {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	vars := make([]string, 0, len(matches))
	for _, m := range matches {
		vars = append(vars, m[1])
	}
	return vars
}

// slot pairs a well-known answer key with its label and placeholder marker.
type slot struct {
	key    string
	label  string
	marker string
}

var slots = []slot{
	{KeyContext, "Context", MarkerContext},
	{KeyRequirements, "Requirements", MarkerRequirements},
	{KeyFormat, "Output Format", MarkerFormat},
}

// Generate builds a prompt template for goal. Well-known answers fill their
// slot; missing or blank ones leave the slot's marker. Other answers are
// listed under an Additional Information heading in insertion order.
func Generate(goal string, answers *Answers) string {
	lines := make([]string, 0, 8)
	lines = append(lines, fmt.Sprintf("You are an expert assistant helping with %s.", goal))

	for _, s := range slots {
		value := Marker(s.marker)
		if answers != nil {
			if v, ok := answers.Get(s.key); ok && strings.TrimSpace(v) != "" {
				value = v
			}
		}
		lines = append(lines, s.label+": "+value)
	}

	lines = append(lines, "Please provide a comprehensive response that addresses the user's request: "+Marker(MarkerUserRequest))

	if extra := additional(answers); len(extra) > 0 {
		lines = append(lines, AdditionalInfoHeading)
		lines = append(lines, extra...)
	}

	lines = append(lines, "Additional considerations: "+Marker(MarkerAdditionalNotes))
	return strings.Join(lines, "\n")
}

func additional(answers *Answers) []string {
	if answers == nil {
		return nil
	}
	var out []string
	for pair := answers.Oldest(); pair != nil; pair = pair.Next() {
		if isWellKnown(pair.Key) {
			continue
		}
		out = append(out, fmt.Sprintf("- %s: %s", pair.Key, pair.Value))
	}
	return out
}

// FallbackTemplate is the answer-independent template used when generation
// fails. Every slot carries its placeholder marker.
func FallbackTemplate(goal string) string {
	return Generate(goal, nil)
}

// Generator renders a template from a goal and answers.
type Generator func(goal string, answers *Answers) string

// SafeGenerate runs Generate and returns FallbackTemplate if it panics.
// The second return value reports whether the fallback was used.
func SafeGenerate(goal string, answers *Answers) (tmpl string, fellBack bool) {
	return SafeGenerateWith(Generate, goal, answers)
}

// SafeGenerateWith is SafeGenerate for an arbitrary generator.
func SafeGenerateWith(gen Generator, goal string, answers *Answers) (tmpl string, fellBack bool) {
	defer func() {
		if r := recover(); r != nil {
			tmpl, fellBack = FallbackTemplate(goal), true
		}
	}()
	return gen(goal, answers), false
}
