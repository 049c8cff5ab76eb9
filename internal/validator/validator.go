// Package validator checks exported prompt packs against the embedded
// JSON schema.
package validator

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemasFS embed.FS

const packSchema = "schemas/PromptPack.schema.json"

// ValidationError is a single schema violation.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the outcome of a validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Err returns nil for a valid result, otherwise an error listing every
// violation.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Path + ": " + e.Message
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Validator validates prompt pack documents.
type Validator struct {
	packSchema *jsonschema.Schema
}

// New compiles the embedded schema.
func New() (*Validator, error) {
	data, err := schemasFS.ReadFile(packSchema)
	if err != nil {
		return nil, fmt.Errorf("read pack schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal pack schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource("pack.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("pack.json")
	if err != nil {
		return nil, fmt.Errorf("compile pack schema: %w", err)
	}
	return &Validator{packSchema: schema}, nil
}

// ValidatePack validates a prompt.json document.
func (v *Validator) ValidatePack(packJSON []byte) ValidationResult {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(packJSON))
	if err != nil {
		return ValidationResult{Errors: []ValidationError{{
			Path:    "/",
			Message: fmt.Sprintf("invalid JSON: %v", err),
		}}}
	}

	err = v.packSchema.Validate(doc)
	if err == nil {
		return ValidationResult{Valid: true}
	}

	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		return ValidationResult{Errors: leafErrors(ve)}
	}
	return ValidationResult{Errors: []ValidationError{{Path: "/", Message: err.Error()}}}
}

func leafErrors(ve *jsonschema.ValidationError) []ValidationError {
	if len(ve.Causes) == 0 {
		return []ValidationError{{
			Path:    "/" + strings.Join(ve.InstanceLocation, "/"),
			Message: ve.Error(),
		}}
	}
	var out []ValidationError
	for _, cause := range ve.Causes {
		out = append(out, leafErrors(cause)...)
	}
	return out
}
