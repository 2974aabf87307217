// Package mock provides scripted providers for tests and offline runs. Replies
// are served in order; once the script runs out the last reply repeats.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
)

func init() {
	providers.RegisterProviderFactory("mock", func(spec providers.ProviderSpec) (providers.Provider, error) {
		var replies []Reply
		if raw, ok := spec.AdditionalConfig["responses"].([]any); ok {
			for _, r := range raw {
				s, ok := r.(string)
				if !ok {
					return nil, fmt.Errorf("mock responses must be strings, got %T", r)
				}
				replies = append(replies, Reply{Content: s})
			}
		}
		return NewProvider(spec.ID, spec.Model, replies...), nil
	})
}

// Reply is one scripted model turn.
type Reply struct {
	Content   string
	ToolCalls []providers.ToolCall
	Err       error
	// Delay holds the reply back; a context ending first wins.
	Delay time.Duration
}

// Provider answers Chat from a script. It does not implement ToolSupport; use
// ToolProvider for that.
type Provider struct {
	id    string
	model string

	mu       sync.Mutex
	replies  []Reply
	next     int
	requests []providers.ChatRequest
}

// NewProvider creates a scripted provider. With no replies it answers with a
// fixed "Mock response" text.
func NewProvider(id, model string, replies ...Reply) *Provider {
	if len(replies) == 0 {
		replies = []Reply{{Content: fmt.Sprintf("Mock response from %s model %s", id, model)}}
	}
	return &Provider{id: id, model: model, replies: replies}
}

// ID returns the provider ID.
func (m *Provider) ID() string { return m.id }

// Model returns the model name.
func (m *Provider) Model() string { return m.model }

// Close does nothing.
func (m *Provider) Close() error { return nil }

// Chat returns the next scripted reply.
func (m *Provider) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	return m.reply(ctx, req)
}

// Requests returns the requests received so far.
func (m *Provider) Requests() []providers.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]providers.ChatRequest(nil), m.requests...)
}

func (m *Provider) reply(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	m.mu.Lock()
	r := m.replies[min(m.next, len(m.replies)-1)]
	m.next++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	logger.Debug("mock provider reply", "provider_id", m.id, "turn", m.next, "tool_calls", len(r.ToolCalls))

	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return providers.ChatResponse{}, ctx.Err()
		case <-timer.C:
		}
	}
	if r.Err != nil {
		return providers.ChatResponse{}, r.Err
	}

	inputTokens := len(req.System) / 4
	for _, msg := range req.Messages {
		inputTokens += len(msg.Content) / 4
	}
	return providers.ChatResponse{
		Content:   r.Content,
		ToolCalls: r.ToolCalls,
		Usage:     providers.Usage{InputTokens: inputTokens, OutputTokens: len(r.Content) / 4},
	}, nil
}

// ToolProvider is a scripted provider with native tool support.
type ToolProvider struct {
	*Provider

	mu    sync.Mutex
	tools [][]providers.ToolDescriptor
}

// NewToolProvider creates a scripted provider that implements ToolSupport.
func NewToolProvider(id, model string, replies ...Reply) *ToolProvider {
	return &ToolProvider{Provider: NewProvider(id, model, replies...)}
}

// ChatWithTools returns the next scripted reply and records the offered tools.
func (m *ToolProvider) ChatWithTools(
	ctx context.Context,
	req providers.ChatRequest,
	tools []providers.ToolDescriptor,
	toolChoice string,
) (providers.ChatResponse, error) {
	logger.Debug("mock provider tool call", "provider_id", m.id, "tool_choice", toolChoice, "tool_count", len(tools))
	m.mu.Lock()
	m.tools = append(m.tools, tools)
	m.mu.Unlock()
	return m.reply(ctx, req)
}

// OfferedTools returns the tool lists passed to each ChatWithTools call.
func (m *ToolProvider) OfferedTools() [][]providers.ToolDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]providers.ToolDescriptor(nil), m.tools...)
}
