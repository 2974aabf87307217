// Package logger provides structured logging with automatic secret redaction.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - language model calls (requests, responses, errors)
//   - MCP tool calls and routing decisions
//   - API key and signature redaction
//   - contextual fields (session, request, tool) carried through context.Context
//
// Output always goes to stderr unless SetOutput is called: the MCP server speaks
// JSON-RPC on stdout and a stray log line there would corrupt the stream.
package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

// Output formats accepted by Configure.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	// DefaultLogger is the global structured logger instance.
	DefaultLogger *slog.Logger

	mu        sync.Mutex
	logOutput io.Writer = os.Stderr
	current             = Options{Level: slog.LevelInfo, Format: FormatText}
)

// Options controls the global logger.
type Options struct {
	Level  slog.Level
	Format string
	// CommonFields are attached to every record (e.g. service, version).
	CommonFields map[string]string
}

func init() {
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		current.Level = ParseLevel(envLevel)
	}
	rebuild()
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure replaces the global logger with one built from opts.
func Configure(opts Options) {
	mu.Lock()
	defer mu.Unlock()
	if opts.Format == "" {
		opts.Format = FormatText
	}
	current = opts
	rebuildLocked()
}

// SetOutput redirects log output. Tests use it to capture records.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	logOutput = w
	rebuildLocked()
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	current.Level = level
	rebuildLocked()
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

func rebuild() {
	mu.Lock()
	defer mu.Unlock()
	rebuildLocked()
}

func rebuildLocked() {
	handlerOpts := &slog.HandlerOptions{Level: current.Level}
	var inner slog.Handler
	if current.Format == FormatJSON {
		inner = slog.NewJSONHandler(logOutput, handlerOpts)
	} else {
		inner = slog.NewTextHandler(logOutput, handlerOpts)
	}
	DefaultLogger = slog.New(NewContextHandler(inner, current.CommonFields))
}

// Info logs an informational message with structured key-value attributes.
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context fields attached.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context fields attached.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context fields attached.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context fields attached.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// LLMCall logs a language model call.
func LLMCall(ctx context.Context, provider, model string, messages, tools int, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"model", model,
		"messages", messages,
		"tools", tools,
	)
	allAttrs = append(allAttrs, attrs...)
	DebugContext(ctx, "🤖 LLM API Call", allAttrs...)
}

// LLMResponse logs a language model response with token usage.
func LLMResponse(ctx context.Context, provider string, tokensIn, tokensOut, toolCalls int, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"tokens_in", tokensIn,
		"tokens_out", tokensOut,
		"tool_calls", toolCalls,
	)
	allAttrs = append(allAttrs, attrs...)
	DebugContext(ctx, "✅ LLM API Response", allAttrs...)
}

// LLMError logs a failed language model call.
func LLMError(ctx context.Context, provider string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"error", RedactSensitiveData(err.Error()),
	)
	allAttrs = append(allAttrs, attrs...)
	WarnContext(ctx, "❌ LLM API Call Failed", allAttrs...)
}

// ToolCall logs a tool invocation crossing the MCP boundary.
func ToolCall(ctx context.Context, tool string, args json.RawMessage, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"tool", tool,
		"args", RedactSensitiveData(string(args)),
	)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "🔧 MCP Tool Call", allAttrs...)
}

// ToolResult logs the outcome of a tool invocation.
func ToolResult(ctx context.Context, tool, status string, latencyMs int64, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"tool", tool,
		"status", status,
		"latency_ms", latencyMs,
	)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "📦 MCP Tool Result", allAttrs...)
}

// Decision logs a routing decision.
func Decision(ctx context.Context, tool, source, reason string) {
	attrs := []any{"tool", tool, "source", source}
	if reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	InfoContext(ctx, "🧭 Route Decision", attrs...)
}

var (
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),             // Anthropic keys
		regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),                   // OpenAI keys
		regexp.MustCompile(`(?:AKIA|ASIA)[A-Z0-9]{16}`),             // AWS access key ids
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_.-]+`),              // Bearer tokens
		regexp.MustCompile(`Signature=[a-f0-9]{64}`),                // SigV4 signatures
		regexp.MustCompile(`X-Amz-Security-Token=[A-Za-z0-9%/+=]+`), // presigned session tokens
	}
)

// RedactSensitiveData removes API keys and other secrets from strings, keeping the
// first four characters of long matches for debugging.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			switch {
			case strings.HasPrefix(match, "Bearer"):
				return "Bearer [REDACTED]"
			case strings.HasPrefix(match, "Signature="):
				return "Signature=[REDACTED]"
			case strings.HasPrefix(match, "X-Amz-Security-Token="):
				return "X-Amz-Security-Token=[REDACTED]"
			case len(match) > 8:
				return match[:4] + "...[REDACTED]"
			default:
				return "[REDACTED]"
			}
		})
	}

	return result
}

// APIRequest logs HTTP API request details at debug level with redaction.
// It is a no-op when debug logging is disabled.
func APIRequest(provider, method, url string, headers map[string]string, body interface{}) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 8)
	attrs = append(attrs,
		"provider", provider,
		"method", method,
		"url", RedactSensitiveData(url),
	)

	if len(headers) > 0 {
		redactedHeaders := make(map[string]string, len(headers))
		for key, value := range headers {
			redactedHeaders[key] = RedactSensitiveData(value)
		}
		attrs = append(attrs, "headers", redactedHeaders)
	}

	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			attrs = append(attrs, "body_error", err.Error())
		} else {
			attrs = append(attrs, "body", RedactSensitiveData(string(bodyJSON)))
		}
	}

	Debug("🔵 API Request", attrs...)
}

// APIResponse logs HTTP API response details at debug level with redaction.
func APIResponse(provider string, statusCode int, body string, err error) {
	if !DefaultLogger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := make([]any, 0, 6)
	attrs = append(attrs,
		"provider", provider,
		"status_code", statusCode,
	)

	if err != nil {
		attrs = append(attrs, "error", RedactSensitiveData(err.Error()))
		Debug("🔴 API Response Error", attrs...)
		return
	}

	var emoji string
	switch {
	case statusCode >= 200 && statusCode < 300:
		emoji = "🟢"
	case statusCode >= 400:
		emoji = "🔴"
	default:
		emoji = "🟡"
	}

	if body != "" {
		attrs = append(attrs, "body", RedactSensitiveData(body))
	}

	Debug(emoji+" API Response", attrs...)
}
