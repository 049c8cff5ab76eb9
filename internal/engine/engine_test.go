package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"no brackets", "no brackets", []string{}},
		{"single", "Hello [NAME]!", []string{"NAME"}},
		{"order", "[B] then [A] then [C]", []string{"B", "A", "C"}},
		{"duplicates kept", "[X] [Y] [X] [X]", []string{"X", "Y", "X", "X"}},
		{"empty brackets ignored", "[] [A]", []string{"A"}},
		{"unterminated ignored", "[A] [open", []string{"A"}},
		{"spaces in name", "[first name]", []string{"first name"}},
		{"nested opening bracket", "[[A]", []string{"[A"}},
		{"multiline name", "[a\nb]", []string{"a\nb"}},
		{"metacharacters", "[a.b*]", []string{"a.b*"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractVariables(tt.text))
		})
	}
}

func TestGenerateEmptyAnswers(t *testing.T) {
	for _, answers := range []*Answers{nil, NewAnswers()} {
		tmpl := Generate("X", answers)

		for _, m := range []string{"[CONTEXT]", "[REQUIREMENTS]", "[FORMAT]", "[USER_REQUEST]", "[ADDITIONAL_NOTES]"} {
			assert.Contains(t, tmpl, m)
		}
		assert.NotContains(t, tmpl, "Additional Information")
	}
}

func TestGenerateFilledSlots(t *testing.T) {
	tmpl := Generate("X", AnswersFrom(KeyContext, "C", KeyRequirements, "R", KeyFormat, "F"))

	assert.Contains(t, tmpl, "Context: C\n")
	assert.Contains(t, tmpl, "Requirements: R\n")
	assert.Contains(t, tmpl, "Output Format: F\n")
	assert.NotContains(t, tmpl, "[CONTEXT]")
	assert.NotContains(t, tmpl, "[REQUIREMENTS]")
	assert.NotContains(t, tmpl, "[FORMAT]")
}

func TestGenerateBlankAnswerKeepsMarker(t *testing.T) {
	tmpl := Generate("X", AnswersFrom(KeyContext, "   "))
	assert.Contains(t, tmpl, "Context: [CONTEXT]")
}

func TestGenerateAdditionalInformation(t *testing.T) {
	tmpl := Generate("X", AnswersFrom(KeyContext, "C", "extra", "E"))

	info := strings.Index(tmpl, AdditionalInfoHeading)
	require.NotEqual(t, -1, info)

	assert.Contains(t, tmpl, "- extra: E")
	assert.Greater(t, info, strings.Index(tmpl, "Output Format:"))
	assert.Less(t, strings.Index(tmpl, "extra: E"), strings.Index(tmpl, "[ADDITIONAL_NOTES]"))
}

func TestGenerateAdditionalKeysInInsertionOrder(t *testing.T) {
	tmpl := Generate("X", AnswersFrom("zeta", "1", KeyFormat, "F", "alpha", "2", "mid", "3"))

	z := strings.Index(tmpl, "- zeta: 1")
	a := strings.Index(tmpl, "- alpha: 2")
	m := strings.Index(tmpl, "- mid: 3")
	require.True(t, z >= 0 && a >= 0 && m >= 0)
	assert.True(t, z < a && a < m, "additional keys must follow insertion order")
}

func TestGenerateDeterministic(t *testing.T) {
	answers := AnswersFrom(KeyContext, "news", "tone", "dry", "audience", "kids")
	assert.Equal(t, Generate("goal", answers), Generate("goal", CloneAnswers(answers)))
}

func TestGenerateExactLayout(t *testing.T) {
	want := "You are an expert assistant helping with summarize articles.\n" +
		"Context: news site\n" +
		"Requirements: [REQUIREMENTS]\n" +
		"Output Format: bullet points\n" +
		"Please provide a comprehensive response that addresses the user's request: [USER_REQUEST]\n" +
		"Additional considerations: [ADDITIONAL_NOTES]"

	got := Generate("summarize articles", AnswersFrom(KeyContext, "news site", KeyFormat, "bullet points"))
	assert.Equal(t, want, got)
}

func TestEndToEndScenario(t *testing.T) {
	answers := AnswersFrom(KeyContext, "news site", KeyFormat, "bullet points")
	tmpl := Generate("summarize articles", answers)

	assert.Contains(t, tmpl, "helping with summarize articles")
	assert.Contains(t, tmpl, "Context: news site")
	assert.Contains(t, tmpl, "Output Format: bullet points")
	assert.Contains(t, tmpl, "Requirements: [REQUIREMENTS]")
	assert.True(t, strings.HasSuffix(tmpl, "[ADDITIONAL_NOTES]"))
	assert.Less(t, strings.Index(tmpl, "[USER_REQUEST]"), strings.Index(tmpl, "[ADDITIONAL_NOTES]"))

	vars := ExtractVariables(tmpl)
	require.Equal(t, []string{"REQUIREMENTS", "USER_REQUEST", "ADDITIONAL_NOTES"}, vars)

	resolved := Resolve(tmpl, vars, map[string]string{"REQUIREMENTS": "under 100 words"})
	assert.Contains(t, resolved, "Requirements: under 100 words")
	assert.NotContains(t, resolved, "[REQUIREMENTS]")
	assert.Contains(t, resolved, "[USER_REQUEST]")
	assert.Contains(t, resolved, "[ADDITIONAL_NOTES]")
}

func TestSafeGenerate(t *testing.T) {
	answers := AnswersFrom(KeyContext, "C")
	tmpl, fellBack := SafeGenerate("goal", answers)
	assert.False(t, fellBack)
	assert.Equal(t, Generate("goal", answers), tmpl)

	fb := FallbackTemplate("goal")
	assert.Equal(t, []string{"CONTEXT", "REQUIREMENTS", "FORMAT", "USER_REQUEST", "ADDITIONAL_NOTES"}, ExtractVariables(fb))
}

func TestSafeGenerateRecoversFromPanic(t *testing.T) {
	panicking := func(string, *Answers) string { panic("template exploded") }

	tmpl, fellBack := SafeGenerateWith(panicking, "summarize articles", AnswersFrom(KeyContext, "C"))
	assert.True(t, fellBack)
	assert.Equal(t, FallbackTemplate("summarize articles"), tmpl)
	assert.Contains(t, tmpl, "helping with summarize articles")
	assert.NotContains(t, tmpl, "Additional Information")
}

func TestAnswersDecodePreservesOrder(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		a := NewAnswers()
		require.NoError(t, json.Unmarshal([]byte(`{"zeta":"1","context":"C","alpha":"2"}`), a))
		tmpl := Generate("g", a)
		assert.Less(t, strings.Index(tmpl, "zeta"), strings.Index(tmpl, "alpha"))
	})

	t.Run("yaml", func(t *testing.T) {
		a := NewAnswers()
		require.NoError(t, yaml.Unmarshal([]byte("zeta: \"1\"\ncontext: C\nalpha: \"2\"\n"), a))
		tmpl := Generate("g", a)
		assert.Contains(t, tmpl, "Context: C")
		assert.Less(t, strings.Index(tmpl, "zeta"), strings.Index(tmpl, "alpha"))
	})
}
