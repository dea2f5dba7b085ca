package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	orig := DefaultLogger
	t.Cleanup(func() {
		DefaultLogger = orig
		slog.SetDefault(orig)
	})
	var buf bytes.Buffer
	SetupWithWriter(&buf, "test-worker", "DEBUG", true)
	return &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestSetupAttachesServiceName(t *testing.T) {
	buf := resetLogger(t)
	Info("worker_starting", "version", "dev")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "test-worker", record["service"])
	assert.Equal(t, "worker_starting", record["msg"])
	assert.Equal(t, "dev", record["version"])
}

func TestSetupTextFormat(t *testing.T) {
	orig := DefaultLogger
	defer func() {
		DefaultLogger = orig
		slog.SetDefault(orig)
	}()
	var buf bytes.Buffer
	SetupWithWriter(&buf, "test-worker", "INFO", false)

	Debug("hidden")
	Info("visible")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestLLMErrorRedactsKeys(t *testing.T) {
	buf := resetLogger(t)
	LLMError("azure", errors.New("401 from https://example/v1 key sk-abcdefghijklmnopqrstuvwxyz0123456789"))

	out := buf.String()
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstuvwxyz0123456789")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "llm_call_failed")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "auth Bearer [REDACTED] done", Redact("auth Bearer abc_123 done"))
	assert.Equal(t, "plain text", Redact("plain text"))

	redacted := Redact("sk-abcdefghijklmnopqrstuvwxyz0123456789")
	assert.Equal(t, "sk-a...[REDACTED]", redacted)
}
