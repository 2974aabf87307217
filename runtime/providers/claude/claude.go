// Package claude provides the Anthropic Claude provider, over the Anthropic
// Messages API or AWS Bedrock's invoke endpoint.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/credentials"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
)

const (
	anthropicVersion   = "2023-06-01"
	bedrockVersion     = "bedrock-2023-05-31"
	defaultMaxTokens   = 1024
	contentTypeText    = "text"
	contentTypeToolUse = "tool_use"
)

func init() {
	providers.RegisterProviderFactory("claude", func(spec providers.ProviderSpec) (providers.Provider, error) {
		baseURL := spec.BaseURL
		if spec.Platform == credentials.PlatformBedrock {
			if spec.Credential == nil || spec.Credential.Type() != credentials.TypeAWS {
				return nil, fmt.Errorf("bedrock platform requires AWS credentials")
			}
			if spec.BaseURL == "" || strings.Contains(spec.BaseURL, "api.anthropic.com") {
				region := spec.Region
				if region == "" {
					region = credentials.DefaultAWSRegion
				}
				baseURL = credentials.BedrockEndpoint(region)
			}
		}
		p := NewProvider(spec.ID, spec.Model, baseURL, spec.Defaults, spec.Credential, spec.Platform)
		p.BaseProvider = providers.NewBaseProvider(spec.ID, spec.Model, spec.HTTPClient)
		return p, nil
	})
}

// Provider talks to Claude. It implements providers.ToolSupport.
type Provider struct {
	providers.BaseProvider
	baseURL  string
	defaults providers.ProviderDefaults
	cred     credentials.Credential
	platform string
}

// NewProvider creates a Claude provider. With platform "bedrock", cred must be an
// AWS credential and baseURL a Bedrock runtime endpoint.
func NewProvider(
	id, model, baseURL string,
	defaults providers.ProviderDefaults,
	cred credentials.Credential,
	platform string,
) *Provider {
	if cred == nil {
		cred = &credentials.NoOpCredential{}
	}
	return &Provider{
		BaseProvider: providers.NewBaseProvider(id, model, nil),
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaults:     defaults,
		cred:         cred,
		platform:     platform,
	}
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type claudeToolChoice struct {
	Type string `json:"type"`
}

type claudeRequest struct {
	AnthropicVersion string            `json:"anthropic_version,omitempty"`
	Model            string            `json:"model,omitempty"`
	MaxTokens        int               `json:"max_tokens"`
	Messages         []claudeMessage   `json:"messages"`
	System           string            `json:"system,omitempty"`
	Temperature      float32           `json:"temperature,omitempty"`
	TopP             float32           `json:"top_p,omitempty"`
	Tools            []claudeTool      `json:"tools,omitempty"`
	ToolChoice       *claudeToolChoice `json:"tool_choice,omitempty"`
}

type claudeContent struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type claudeResponse struct {
	Content    []claudeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Chat sends a plain chat request.
func (p *Provider) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	return p.send(ctx, req, nil, "")
}

// ChatWithTools sends a request with tools; "any" forces a tool call.
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

	body := p.buildRequest(req.ApplyDefaults(p.defaults), tools, toolChoice)
	respBytes, err := p.MakeJSONRequest(ctx, p.endpoint(), body, p.headers(), p.cred, p.platform)
	if err != nil {
		return providers.RecordCall(ctx, p, start, providers.ChatResponse{}, err)
	}

	resp, err := parseResponse(respBytes)
	return providers.RecordCall(ctx, p, start, resp, err)
}

func (p *Provider) isBedrock() bool {
	return p.platform == credentials.PlatformBedrock
}

func (p *Provider) endpoint() string {
	if p.isBedrock() {
		return p.baseURL + "/model/" + credentials.BedrockModelID(p.Model()) + "/invoke"
	}
	return p.baseURL + "/messages"
}

func (p *Provider) headers() providers.RequestHeaders {
	if p.isBedrock() {
		return nil
	}
	return providers.RequestHeaders{"anthropic-version": anthropicVersion}
}

func (p *Provider) buildRequest(req providers.ChatRequest, tools []providers.ToolDescriptor, toolChoice string) claudeRequest {
	out := claudeRequest{
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Messages:    make([]claudeMessage, 0, len(req.Messages)),
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultMaxTokens
	}
	if p.isBedrock() {
		out.AnthropicVersion = bedrockVersion
	} else {
		out.Model = p.Model()
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, claudeMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range tools {
		out.Tools = append(out.Tools, claudeTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	if len(tools) > 0 && toolChoice != "" {
		out.ToolChoice = &claudeToolChoice{Type: toolChoice}
	}
	return out
}

func parseResponse(data []byte) (providers.ChatResponse, error) {
	var cr claudeResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return providers.ChatResponse{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if cr.Error != nil {
		return providers.ChatResponse{}, fmt.Errorf("claude API error (%s): %s", cr.Error.Type, cr.Error.Message)
	}

	resp := providers.ChatResponse{
		Usage: providers.Usage{InputTokens: cr.Usage.InputTokens, OutputTokens: cr.Usage.OutputTokens},
	}
	var text strings.Builder
	for _, c := range cr.Content {
		switch c.Type {
		case contentTypeText:
			text.WriteString(c.Text)
		case contentTypeToolUse:
			resp.ToolCalls = append(resp.ToolCalls, providers.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Input})
		}
	}
	resp.Content = text.String()
	if resp.Content == "" && len(resp.ToolCalls) == 0 {
		return resp, fmt.Errorf("no content in claude response (stop reason %q)", cr.StopReason)
	}
	return resp, nil
}
