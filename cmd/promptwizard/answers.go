package main

import (
	"fmt"

	"github.com/dshills/promptwizard/internal/engine"
	"gopkg.in/yaml.v3"
)

// parseAnswers reads a flat YAML or JSON mapping of answers, keeping the
// key order of the document.
func parseAnswers(data []byte) (*engine.Answers, error) {
	answers := engine.NewAnswers()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse answers: %w", err)
	}
	if len(doc.Content) == 0 {
		return answers, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse answers: line %d: expected a mapping of question id to answer", root.Line)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("parse answers: line %d: answer for %q must be a string", value.Line, key.Value)
		}
		answers.Set(key.Value, value.Value)
	}
	return answers, nil
}
