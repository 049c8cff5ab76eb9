package engine

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Well-known answer keys. Any other key is rendered as additional information.
const (
	KeyContext      = "context"
	KeyRequirements = "requirements"
	KeyFormat       = "format"
)

// Answers maps question keys to answer text, preserving insertion order.
// JSON and YAML decoding keep the order keys appear in the document.
type Answers = orderedmap.OrderedMap[string, string]

// NewAnswers creates an empty Answers mapping.
func NewAnswers() *Answers {
	return orderedmap.New[string, string]()
}

// AnswersFrom builds Answers from alternating key/value pairs.
// A trailing key without a value is ignored.
func AnswersFrom(kv ...string) *Answers {
	a := NewAnswers()
	for i := 0; i+1 < len(kv); i += 2 {
		a.Set(kv[i], kv[i+1])
	}
	return a
}

// CloneAnswers returns an independent copy of a, preserving order.
// A nil input yields an empty mapping.
func CloneAnswers(a *Answers) *Answers {
	out := NewAnswers()
	if a == nil {
		return out
	}
	for pair := a.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return out
}

func isWellKnown(key string) bool {
	switch key {
	case KeyContext, KeyRequirements, KeyFormat:
		return true
	}
	return false
}
