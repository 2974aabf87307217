package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for fields that the ContextHandler copies onto every record.
const (
	// ContextKeySessionID identifies the interactive session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyRequestID identifies one query within a session.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyTool names the tool being routed or invoked.
	ContextKeyTool contextKey = "tool"

	// ContextKeyDecisionSource records whether the model or the keyword fallback chose the tool.
	ContextKeyDecisionSource contextKey = "decision_source"

	// ContextKeyProvider identifies the language model provider.
	ContextKeyProvider contextKey = "provider"

	// ContextKeyModel identifies the specific model being used.
	ContextKeyModel contextKey = "model"

	// ContextKeyStage identifies the pipeline stage (route, invoke, synthesize).
	ContextKeyStage contextKey = "stage"
)

var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyRequestID,
	ContextKeyStage,
	ContextKeyTool,
	ContextKeyDecisionSource,
	ContextKeyProvider,
	ContextKeyModel,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithTool returns a new context with the tool name set.
func WithTool(ctx context.Context, tool string) context.Context {
	return context.WithValue(ctx, ContextKeyTool, tool)
}

// WithDecisionSource returns a new context with the decision source set.
func WithDecisionSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ContextKeyDecisionSource, source)
}

// WithProvider returns a new context with the provider name set.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ContextKeyProvider, provider)
}

// WithModel returns a new context with the model name set.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}

// WithStage returns a new context with the pipeline stage set.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ContextKeyStage, stage)
}

// LoggingFields holds all standard logging context fields.
type LoggingFields struct {
	SessionID      string
	RequestID      string
	Stage          string
	Tool           string
	DecisionSource string
	Provider       string
	Model          string
}

// WithLoggingContext sets every non-empty field of fields on ctx.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	set := func(key contextKey, v string) {
		if v != "" {
			ctx = context.WithValue(ctx, key, v)
		}
	}
	set(ContextKeySessionID, fields.SessionID)
	set(ContextKeyRequestID, fields.RequestID)
	set(ContextKeyStage, fields.Stage)
	set(ContextKeyTool, fields.Tool)
	set(ContextKeyDecisionSource, fields.DecisionSource)
	set(ContextKeyProvider, fields.Provider)
	set(ContextKeyModel, fields.Model)
	return ctx
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	get := func(key contextKey) string {
		s, _ := ctx.Value(key).(string)
		return s
	}
	return LoggingFields{
		SessionID:      get(ContextKeySessionID),
		RequestID:      get(ContextKeyRequestID),
		Stage:          get(ContextKeyStage),
		Tool:           get(ContextKeyTool),
		DecisionSource: get(ContextKeyDecisionSource),
		Provider:       get(ContextKeyProvider),
		Model:          get(ContextKeyModel),
	}
}
