package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/hanyun2019/mcp-on-aws-demo/pkg/errors"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/mcp"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/metrics/prometheus"
)

const (
	mcpToolReturnedErr    = "MCP tool returned error"
	mcpContentTypeText    = "text"
	defaultBridgeTimeout  = 90 * time.Second
	statusTransportFailed = "transport_error"
)

// Invoker runs a tool call and returns its result. Only transport problems and
// argument validation are returned as errors; tool failures are Failure results.
type Invoker interface {
	Invoke(ctx context.Context, call ToolCall) (ToolResult, error)
}

// MCPBridge is the protocol boundary: it discovers the catalog from an MCP server
// once and invokes tools on it. It never retries.
type MCPBridge struct {
	client  mcp.Client
	timeout time.Duration

	mu       sync.Mutex
	registry *Registry
}

// BridgeOption configures an MCPBridge.
type BridgeOption func(*MCPBridge)

// WithCallTimeout bounds each tools/call round trip. Expiry is a transport error.
func WithCallTimeout(d time.Duration) BridgeOption {
	return func(b *MCPBridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewMCPBridge creates a bridge over an initialized client.
func NewMCPBridge(client mcp.Client, opts ...BridgeOption) *MCPBridge {
	b := &MCPBridge{client: client, timeout: defaultBridgeTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Discover lists the server's tools. The result is cached for the bridge's
// lifetime; later calls return it without a round trip. Tools outside the
// supported set are ignored.
func (b *MCPBridge) Discover(ctx context.Context) ([]ToolSpec, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.registry != nil {
		return b.registry.List(), nil
	}

	listed, err := b.client.ListTools(ctx)
	if err != nil {
		return nil, pkgerrors.Transport("bridge", "Discover", err)
	}

	specs := make([]ToolSpec, 0, len(listed))
	for _, tool := range listed {
		if _, ok := ParseKind(tool.Name); !ok {
			logger.WarnContext(ctx, "Ignoring unsupported MCP tool", "tool", tool.Name)
			continue
		}
		spec, err := SpecFromSchema(tool.Name, tool.Description, tool.InputSchema)
		if err != nil {
			return nil, pkgerrors.Transport("bridge", "Discover", err)
		}
		specs = append(specs, spec)
	}

	registry, err := NewRegistry(specs...)
	if err != nil {
		return nil, pkgerrors.Transport("bridge", "Discover", err)
	}
	b.registry = registry

	logger.InfoContext(ctx, "Discovered MCP tools", "count", registry.Len())
	return registry.List(), nil
}

// Registry returns the discovered catalog.
func (b *MCPBridge) Registry() (*Registry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.registry == nil {
		return nil, ErrNotDiscovered
	}
	return b.registry, nil
}

// Invoke validates call against the discovered schema and runs it on the server.
func (b *MCPBridge) Invoke(ctx context.Context, call ToolCall) (ToolResult, error) {
	registry, err := b.Registry()
	if err != nil {
		return nil, pkgerrors.New("bridge", "Invoke", err)
	}

	normalized, coercions, err := registry.Normalize(call)
	if err != nil {
		return nil, err
	}
	if len(coercions) > 0 {
		logger.DebugContext(ctx, "Coerced tool arguments", "tool", call.Name, "coercions", coercions)
	}

	args, err := normalized.CanonicalArgs()
	if err != nil {
		return nil, pkgerrors.Validation("bridge", "Invoke", err)
	}

	logger.ToolCall(ctx, call.Name, args)
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.client.CallTool(callCtx, call.Name, args)
	if err != nil {
		prometheus.RecordToolCall(call.Name, statusTransportFailed, time.Since(start))
		logger.ErrorContext(ctx, "❌ MCP Tool Failed", "tool", call.Name, "error", err)
		return nil, pkgerrors.Transport("bridge", "Invoke", err).
			WithDetails(map[string]any{"tool": call.Name})
	}

	result, err := decodeToolResponse(resp)
	if err != nil {
		prometheus.RecordToolCall(call.Name, statusTransportFailed, time.Since(start))
		return nil, pkgerrors.Transport("bridge", "Invoke", err).
			WithDetails(map[string]any{"tool": call.Name})
	}

	elapsed := time.Since(start)
	status := StatusOf(result)
	prometheus.RecordToolCall(call.Name, status, elapsed)
	if f, ok := result.(Failure); ok {
		logger.ToolResult(ctx, call.Name, status, elapsed.Milliseconds(), "reason", f.Reason, "detail", f.Detail)
	} else {
		logger.ToolResult(ctx, call.Name, status, elapsed.Milliseconds())
	}
	return result, nil
}

// decodeToolResponse turns an MCP tool response into a ToolResult. An isError
// response without an envelope still becomes a Failure; a success response
// without a readable envelope is a protocol violation.
func decodeToolResponse(resp *mcp.ToolCallResponse) (ToolResult, error) {
	text := joinText(resp.Content)

	if resp.IsError {
		if result, err := DecodeResult([]byte(text)); err == nil {
			if f, ok := result.(Failure); ok {
				return f, nil
			}
		}
		if text == "" {
			text = mcpToolReturnedErr
		}
		return Failure{Reason: ReasonBackendError, Detail: text}, nil
	}

	if text == "" {
		return nil, fmt.Errorf("%w: empty tool response", ErrMalformedEnvelope)
	}
	return DecodeResult([]byte(text))
}

func joinText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		if item.Type == mcpContentTypeText && item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "; ")
}

// ToolsForMCP renders specs as MCP tool definitions.
func ToolsForMCP(specs []ToolSpec) []mcp.Tool {
	out := make([]mcp.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, mcp.Tool{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: json.RawMessage(s.InputSchema()),
		})
	}
	return out
}
