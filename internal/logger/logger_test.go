package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVs(t *testing.T) {
	got := sanitizeKVs([]interface{}{"model", "gpt-4", "OPENAI_API_KEY", "sk-123", "storage_dsn", "postgres://u:p@h/db", "dangling"})
	assert.Equal(t, []interface{}{
		"model", "gpt-4",
		"OPENAI_API_KEY", "[REDACTED]",
		"storage_dsn", "[REDACTED]",
		"dangling",
	}, got)
}

func TestLoggerRedactsFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.With("component", "test").Info("configured", "api_key", "secret-value", "port", 8080)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "[REDACTED]", fields["api_key"])
		assert.Equal(t, "test", fields["component"])
		assert.EqualValues(t, 8080, fields["port"])
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("ignored", "k", "v")
	l.Sync()
}
