// Package logger is the structured logging surface for hearth workers.
// It wraps log/slog with a process-wide logger carrying the service
// name, plus helpers for the LLM call lifecycle. Backend errors are
// redacted before logging since provider errors can echo API keys.
package logger

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// DefaultLogger is the process-wide logger. Safe for concurrent use.
var DefaultLogger *slog.Logger

func init() {
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(os.Getenv("LOG_LEVEL")),
	}))
}

// ParseLevel maps a LOG_LEVEL string to a slog.Level. Unknown or empty
// values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup configures the global logger for a worker. Production workers
// log JSON to stderr; development keeps the readable text handler.
// Every record carries the service name so aggregated logs stay
// attributable.
func Setup(service, level string, jsonFormat bool) {
	SetupWithWriter(os.Stderr, service, level, jsonFormat)
}

// SetupWithWriter is Setup with an explicit writer, used by tests.
func SetupWithWriter(w io.Writer, service, level string, jsonFormat bool) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	DefaultLogger = slog.New(handler).With("service", service)
	slog.SetDefault(DefaultLogger)
}

// Info logs at info level with key-value attributes.
func Info(msg string, args ...any) { DefaultLogger.Info(msg, args...) }

// Debug logs at debug level with key-value attributes.
func Debug(msg string, args ...any) { DefaultLogger.Debug(msg, args...) }

// Warn logs at warn level with key-value attributes.
func Warn(msg string, args ...any) { DefaultLogger.Warn(msg, args...) }

// Error logs at error level with key-value attributes.
func Error(msg string, args ...any) { DefaultLogger.Error(msg, args...) }

// LLMCall logs an outbound generation request.
func LLMCall(backend string, messages int, temperature float64, attrs ...any) {
	all := append([]any{
		"backend", backend,
		"messages", messages,
		"temperature", temperature,
	}, attrs...)
	Info("llm_call", all...)
}

// LLMResult logs the outcome of a generation, including fallbacks.
func LLMResult(backend string, tokensUsed int, latencyMs int64, fallback bool, attrs ...any) {
	all := append([]any{
		"backend", backend,
		"tokens_used", tokensUsed,
		"latency_ms", latencyMs,
		"is_fallback", fallback,
	}, attrs...)
	Info("llm_result", all...)
}

// LLMError logs a failed generation. The error text is redacted.
func LLMError(backend string, err error, attrs ...any) {
	all := append([]any{
		"backend", backend,
		"error", Redact(err.Error()),
	}, attrs...)
	Error("llm_call_failed", all...)
}

// FirstToken logs time-to-first-token for a streaming generation.
func FirstToken(backend, requestID string, latencyMs int64) {
	Info("first_token",
		"backend", backend,
		"request_id", requestID,
		"latency_ms", latencyMs,
	)
}

// Key shapes that show up in provider error bodies and echoed URLs.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`),
}

// Redact replaces API keys and bearer tokens in s, keeping a short
// prefix for correlation.
func Redact(s string) string {
	for _, pattern := range secretPatterns {
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return s
}
