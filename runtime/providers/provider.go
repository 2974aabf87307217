// Package providers defines the language model capability the assistant uses to
// pick a tool and to phrase answers, plus a factory registry so concrete providers
// (claude, openai, ollama, mock) register themselves by type.
//
// All providers implement Provider for plain chat. Providers that accept native
// tool definitions also implement ToolSupport; callers type-assert for it and fall
// back to prompting for JSON when it is absent.
package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool choice modes for ChatWithTools.
const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto = "auto"
	// ToolChoiceAny forces the model to call one of the offered tools.
	ToolChoiceAny = "any"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a request to a chat provider
type ChatRequest struct {
	System      string    `json:"system"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	TopP        float32   `json:"top_p"`
	MaxTokens   int       `json:"max_tokens"`
	// JSONMode asks the provider to constrain output to a JSON object where the
	// API supports it.
	JSONMode bool `json:"json_mode,omitempty"`
}

// Usage reports token counts for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ChatResponse represents a response from a chat provider
type ChatResponse struct {
	Content   string        `json:"content"`
	ToolCalls []ToolCall    `json:"tool_calls,omitempty"`
	Usage     Usage         `json:"usage"`
	Latency   time.Duration `json:"latency"`
}

// ProviderDefaults holds default parameters for providers
type ProviderDefaults struct {
	Temperature float32 `json:"temperature" yaml:"temperature"`
	TopP        float32 `json:"top_p" yaml:"top_p"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// Provider interface defines the contract for chat providers
type Provider interface {
	ID() string
	Model() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Close() error // Close cleans up provider resources (e.g., HTTP connections)
}

// ToolDescriptor represents a tool that can be used by providers
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolSupport is implemented by providers that accept native tool definitions.
type ToolSupport interface {
	Provider

	// ChatWithTools sends req with tools offered to the model. Requested calls are
	// returned in ChatResponse.ToolCalls.
	ChatWithTools(ctx context.Context, req ChatRequest, tools []ToolDescriptor, toolChoice string) (ChatResponse, error)
}

// DescriptorsFromSpecs converts catalog entries to tool descriptors.
func DescriptorsFromSpecs(specs []tools.ToolSpec) []ToolDescriptor {
	out := make([]ToolDescriptor, len(specs))
	for i, s := range specs {
		out[i] = ToolDescriptor{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema(),
		}
	}
	return out
}

// ApplyDefaults fills zero-valued sampling parameters from d.
func (r ChatRequest) ApplyDefaults(d ProviderDefaults) ChatRequest {
	if r.Temperature == 0 {
		r.Temperature = d.Temperature
	}
	if r.TopP == 0 {
		r.TopP = d.TopP
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = d.MaxTokens
	}
	return r
}
