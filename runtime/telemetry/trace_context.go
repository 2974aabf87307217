package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Environment variables that carry a trace into a child process. The names
// follow the lowercase header names upper-cased.
var envKeys = map[string]string{
	"traceparent":     "TRACEPARENT",
	"tracestate":      "TRACESTATE",
	"baggage":         "BAGGAGE",
	"x-amzn-trace-id": "X_AMZN_TRACE_ID",
}

// InjectEnv returns environment variables carrying the span context in ctx, for
// a spawned MCP server process. It is empty when ctx has no span.
func InjectEnv(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	env := make(map[string]string, len(carrier))
	for k, v := range carrier {
		if name, ok := envKeys[strings.ToLower(k)]; ok && v != "" {
			env[name] = v
		}
	}
	return env
}

// ExtractEnv returns ctx parented on the trace carried by environ (as from
// os.Environ), so a server process joins its caller's trace.
func ExtractEnv(ctx context.Context, environ []string) context.Context {
	byName := make(map[string]string, len(envKeys))
	for header, name := range envKeys {
		byName[name] = header
	}

	carrier := propagation.MapCarrier{}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		if header, known := byName[name]; known {
			carrier[header] = value
		}
	}
	if len(carrier) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
