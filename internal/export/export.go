// Package export builds the downloadable prompt pack for a wizard.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/dshills/promptwizard/internal/domain"
	"github.com/dshills/promptwizard/internal/engine"
	"github.com/dshills/promptwizard/internal/validator"
	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Pack file names.
const (
	TemplateFile = "template.txt"
	ResolvedFile = "resolved.txt"
	PackFile     = "prompt.json"
	ResultsFile  = "RESULTS.md"
)

// Input holds everything that goes into a pack.
type Input struct {
	WizardID  uuid.UUID
	SessionID *uuid.UUID
	Goal      string
	Answers   *engine.Answers
	Template  string
	Variables []string
	Values    map[string]string
	Resolved  string
	Results   []*domain.Result
}

// Document is the prompt.json payload.
type Document struct {
	WizardID       uuid.UUID         `json:"wizard_id"`
	SessionID      *uuid.UUID        `json:"session_id"`
	Goal           string            `json:"goal"`
	Answers        []Answer          `json:"answers"`
	Template       string            `json:"template"`
	Variables      []string          `json:"variables"`
	Values         map[string]string `json:"values"`
	ResolvedPrompt string            `json:"resolved_prompt"`
	Results        []ResultEntry     `json:"results"`
	ExportedAt     time.Time         `json:"exported_at"`
}

// Answer is one clarifying answer in question order.
type Answer struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ResultEntry is one recorded model response.
type ResultEntry struct {
	Model        string    `json:"model"`
	Temperature  float64   `json:"temperature"`
	Response     string    `json:"response"`
	ResponseTime int64     `json:"response_time"`
	CreatedAt    time.Time `json:"created_at"`
}

// Contents holds the rendered files.
type Contents struct {
	Template []byte
	Resolved []byte
	PackJSON []byte
	Results  []byte
}

// Build renders the pack and validates prompt.json against the schema.
func Build(v *validator.Validator, input Input, now time.Time) (*Contents, error) {
	if strings.TrimSpace(input.Template) == "" {
		return nil, fmt.Errorf("%w: wizard has no template", domain.ErrInvalidInput)
	}

	doc := Document{
		WizardID:       input.WizardID,
		SessionID:      input.SessionID,
		Goal:           input.Goal,
		Answers:        []Answer{},
		Template:       input.Template,
		Variables:      engine.Distinct(input.Variables),
		Values:         input.Values,
		ResolvedPrompt: input.Resolved,
		Results:        []ResultEntry{},
		ExportedAt:     now.UTC().Truncate(time.Second),
	}
	if doc.Values == nil {
		doc.Values = map[string]string{}
	}
	if input.Answers != nil {
		for pair := input.Answers.Oldest(); pair != nil; pair = pair.Next() {
			doc.Answers = append(doc.Answers, Answer{Key: pair.Key, Value: pair.Value})
		}
	}
	for _, r := range input.Results {
		doc.Results = append(doc.Results, ResultEntry{
			Model:        r.Model,
			Temperature:  r.Temperature,
			Response:     r.Response,
			ResponseTime: r.ResponseTime,
			CreatedAt:    r.CreatedAt.UTC(),
		})
	}

	packJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal pack: %w", err)
	}
	if v != nil {
		if err := v.ValidatePack(packJSON).Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrValidationFailed, err)
		}
	}

	return &Contents{
		Template: []byte(input.Template),
		Resolved: []byte(input.Resolved),
		PackJSON: packJSON,
		Results:  renderResults(doc),
	}, nil
}

// WriteZip writes the pack files to w in a fixed order.
func WriteZip(contents *Contents, w io.Writer) error {
	zw := zip.NewWriter(w)
	files := []struct {
		name string
		data []byte
	}{
		{TemplateFile, contents.Template},
		{ResolvedFile, contents.Resolved},
		{PackFile, contents.PackJSON},
		{ResultsFile, contents.Results},
	}
	for _, f := range files {
		fw, err := zw.Create(f.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.name, err)
		}
		if _, err := fw.Write(f.data); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return zw.Close()
}

func renderResults(doc Document) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Test Results\n\n")
	fmt.Fprintf(&buf, "Goal: %s\n\n", doc.Goal)
	fmt.Fprintf(&buf, "Exported: %s\n\n", doc.ExportedAt.Format(time.RFC3339))
	buf.WriteString("---\n\n")

	if len(doc.Results) == 0 {
		buf.WriteString("No model runs were recorded.\n")
		return buf.Bytes()
	}
	for i, r := range doc.Results {
		fmt.Fprintf(&buf, "## %d. %s (temperature %.1f)\n\n", i+1, r.Model, r.Temperature)
		fmt.Fprintf(&buf, "Response time: %d ms\n\n", r.ResponseTime)
		buf.WriteString("```\n")
		buf.WriteString(r.Response)
		buf.WriteString("\n```\n\n")
	}
	return buf.Bytes()
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Filename derives an ASCII zip name from the goal, for example
// "Résumé review" becomes "resume-review-prompt.zip".
func Filename(goal string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, goal)
	if err != nil {
		ascii = goal
	}
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(ascii), "-"), "-")
	if len(slug) > 48 {
		slug = strings.TrimRight(slug[:48], "-")
	}
	if slug == "" {
		slug = "prompt-wizard"
	}
	return slug + "-prompt.zip"
}
