// Package openai provides the OpenAI chat completions provider, also usable with
// any OpenAI-compatible endpoint via BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hanyun2019/mcp-on-aws-demo/pkg/httputil"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/credentials"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
)

// toolChoiceRequired is OpenAI's spelling of "must call a tool".
const toolChoiceRequired = "required"

func init() {
	providers.RegisterProviderFactory("openai", func(spec providers.ProviderSpec) (providers.Provider, error) {
		var apiKey string
		if c, ok := spec.Credential.(*credentials.APIKeyCredential); ok {
			apiKey = c.APIKey()
		}
		return NewProvider(spec.ID, spec.Model, spec.BaseURL, apiKey, spec.Defaults, spec.HTTPClient), nil
	})
}

// Provider calls the chat completions API through go-openai. It implements
// providers.ToolSupport.
type Provider struct {
	id         string
	model      string
	defaults   providers.ProviderDefaults
	client     *openai.Client
	httpClient *http.Client
}

// NewProvider creates an OpenAI provider. An empty baseURL uses the public API.
func NewProvider(id, model, baseURL, apiKey string, defaults providers.ProviderDefaults, httpClient *http.Client) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient == nil {
		httpClient = httputil.NewHTTPClient(providers.DefaultRequestTimeout)
	}
	cfg.HTTPClient = httpClient
	return &Provider{
		id:         id,
		model:      model,
		defaults:   defaults,
		client:     openai.NewClientWithConfig(cfg),
		httpClient: httpClient,
	}
}

// ID returns the provider ID.
func (p *Provider) ID() string { return p.id }

// Model returns the model name.
func (p *Provider) Model() string { return p.model }

// Close releases idle connections.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// Chat sends a chat completion request.
func (p *Provider) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	return p.send(ctx, req, nil, "")
}

// ChatWithTools sends a chat completion request with function tools.
func (p *Provider) ChatWithTools(
	ctx context.Context,
	req providers.ChatRequest,
	tools []providers.ToolDescriptor,
	toolChoice string,
) (providers.ChatResponse, error) {
	return p.send(ctx, req, tools, toolChoice)
}

func (p *Provider) send(
	ctx context.Context,
	req providers.ChatRequest,
	tools []providers.ToolDescriptor,
	toolChoice string,
) (providers.ChatResponse, error) {
	start := time.Now()
	providers.LogCall(ctx, p, req, len(tools))

	oaiReq := p.buildRequest(req.ApplyDefaults(p.defaults), tools, toolChoice)
	resp, err := p.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return providers.RecordCall(ctx, p, start, providers.ChatResponse{}, wrapAPIError(err))
	}
	if len(resp.Choices) == 0 {
		return providers.RecordCall(ctx, p, start, providers.ChatResponse{}, errors.New("no choices in response"))
	}

	choice := resp.Choices[0]
	out := providers.ChatResponse{
		Content: choice.Message.Content,
		Usage: providers.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, providers.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}
	return providers.RecordCall(ctx, p, start, out, nil)
}

func (p *Provider) buildRequest(req providers.ChatRequest, tools []providers.ToolDescriptor, toolChoice string) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	out := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.JSONMode {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	for _, t := range tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	if len(tools) > 0 {
		switch toolChoice {
		case providers.ToolChoiceAny:
			out.ToolChoice = toolChoiceRequired
		case providers.ToolChoiceAuto:
			out.ToolChoice = providers.ToolChoiceAuto
		}
	}
	return out
}

func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &providers.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &providers.HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return fmt.Errorf("chat completion failed: %w", err)
}
