package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(t *testing.T, data string) []string {
	t.Helper()
	answers, err := parseAnswers([]byte(data))
	require.NoError(t, err)
	var out []string
	for pair := answers.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

func TestParseAnswers(t *testing.T) {
	assert.Equal(t, []string{"format", "context", "tone"}, keys(t, "format: table\ncontext: quarterly report\ntone: formal\n"))
	assert.Equal(t, []string{"requirements", "context"}, keys(t, `{"requirements": "short", "context": "blog"}`))
	assert.Empty(t, keys(t, ""))

	answers, err := parseAnswers([]byte("context: |\n  line one\n  line two\n"))
	require.NoError(t, err)
	v, ok := answers.Get("context")
	require.True(t, ok)
	assert.Equal(t, "line one\nline two\n", v)

	_, err = parseAnswers([]byte("- a\n- b\n"))
	assert.Error(t, err)
	_, err = parseAnswers([]byte("context:\n  nested: value\n"))
	assert.Error(t, err)
}

func TestParseSet(t *testing.T) {
	values, err := parseSet([]string{"NAME=Ada", "EXPR=a=b", "EMPTY="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"NAME": "Ada", "EXPR": "a=b", "EMPTY": ""}, values)

	_, err = parseSet([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseSet([]string{"=x"})
	assert.Error(t, err)
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		goal, answersFile, templateArg, setValues = "", "", "", nil
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestGenerateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("context: release notes\naudience: operators\n"), 0o600))

	out, _, err := execute(t, "generate", "--goal", "summarize changes", "--answers", path)
	require.NoError(t, err)
	assert.Contains(t, out, "summarize changes")
	assert.Contains(t, out, "Context: release notes")
	assert.Contains(t, out, "- audience: operators")
	assert.Contains(t, out, "Variables: REQUIREMENTS, FORMAT, USER_REQUEST, ADDITIONAL_NOTES")
}

func TestResolveCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Hello [NAME], see [TOPIC]"), 0o600))

	out, errOut, err := execute(t, "resolve", "--template", path, "--set", "NAME=Ada")
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, see [TOPIC]", out)
	assert.Contains(t, errOut, "unresolved: TOPIC")
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "promptwizard dev\n", out)
}
