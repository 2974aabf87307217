// Package ollama provides a provider for models served by a local Ollama daemon.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/hanyun2019/mcp-on-aws-demo/pkg/httputil"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
)

func init() {
	providers.RegisterProviderFactory("ollama", func(spec providers.ProviderSpec) (providers.Provider, error) {
		return NewProvider(spec.ID, spec.Model, spec.BaseURL, spec.Defaults, spec.HTTPClient)
	})
}

// Provider calls Ollama's chat endpoint. It does not implement ToolSupport;
// tool selection goes through JSON-format output instead.
type Provider struct {
	id         string
	model      string
	defaults   providers.ProviderDefaults
	client     *api.Client
	httpClient *http.Client
}

// NewProvider creates an Ollama provider for the daemon at baseURL.
func NewProvider(id, model, baseURL string, defaults providers.ProviderDefaults, httpClient *http.Client) (*Provider, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama base URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = httputil.NewHTTPClient(providers.DefaultRequestTimeout)
	}
	return &Provider{
		id:         id,
		model:      model,
		defaults:   defaults,
		client:     api.NewClient(base, httpClient),
		httpClient: httpClient,
	}, nil
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

// Chat sends a non-streaming chat request.
func (p *Provider) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	start := time.Now()
	providers.LogCall(ctx, p, req, 0)
	req = req.ApplyDefaults(p.defaults)

	msgs := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    p.model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{},
	}
	if req.Temperature != 0 {
		chatReq.Options["temperature"] = req.Temperature
	}
	if req.TopP != 0 {
		chatReq.Options["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}
	if req.JSONMode {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	var (
		text strings.Builder
		out  providers.ChatResponse
	)
	err := p.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		text.WriteString(r.Message.Content)
		if r.Done {
			out.Usage = providers.Usage{InputTokens: r.PromptEvalCount, OutputTokens: r.EvalCount}
		}
		return nil
	})
	if err != nil {
		return providers.RecordCall(ctx, p, start, providers.ChatResponse{}, fmt.Errorf("ollama chat failed: %w", err))
	}
	out.Content = text.String()
	return providers.RecordCall(ctx, p, start, out, nil)
}
