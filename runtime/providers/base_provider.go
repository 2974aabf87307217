package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hanyun2019/mcp-on-aws-demo/pkg/httputil"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/credentials"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/metrics/prometheus"
)

// BaseProvider provides common functionality shared across all provider implementations.
// It should be embedded in concrete provider structs to avoid code duplication.
type BaseProvider struct {
	id     string
	model  string
	client *http.Client
}

// NewBaseProvider creates a new BaseProvider with common fields
func NewBaseProvider(id, model string, client *http.Client) BaseProvider {
	if client == nil {
		client = httputil.NewHTTPClient(DefaultRequestTimeout)
	}
	return BaseProvider{id: id, model: model, client: client}
}

// ID returns the provider ID
func (b *BaseProvider) ID() string {
	return b.id
}

// Model returns the model name
func (b *BaseProvider) Model() string {
	return b.model
}

// Close closes the HTTP client's idle connections
func (b *BaseProvider) Close() error {
	if b.client != nil {
		b.client.CloseIdleConnections()
	}
	return nil
}

// GetHTTPClient returns the underlying HTTP client for provider-specific use
func (b *BaseProvider) GetHTTPClient() *http.Client {
	return b.client
}

// RequestHeaders is a map of HTTP header key-value pairs
type RequestHeaders map[string]string

// MakeJSONRequest POSTs request as JSON, applies cred, and returns the response
// body. Non-2xx responses are returned as *HTTPError.
func (b *BaseProvider) MakeJSONRequest(
	ctx context.Context,
	url string,
	request any,
	headers RequestHeaders,
	cred credentials.Credential,
	platform string,
) ([]byte, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if cred != nil {
		if err := cred.Apply(ctx, req); err != nil {
			return nil, fmt.Errorf("failed to apply credentials: %w", err)
		}
	}

	logger.APIRequest(b.id, http.MethodPost, url, maskHeaders(req.Header), json.RawMessage(body))

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	logger.APIResponse(b.id, resp.StatusCode, string(respBytes), nil)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ParsePlatformHTTPError(platform, resp.StatusCode, respBytes)
	}
	return respBytes, nil
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		switch strings.ToLower(k) {
		case "authorization", "x-api-key", "x-amz-security-token":
			out[k] = "***"
		default:
			out[k] = h.Get(k)
		}
	}
	return out
}

// LogCall logs the start of a model call.
func LogCall(ctx context.Context, p Provider, req ChatRequest, toolCount int) {
	logger.LLMCall(ctx, p.ID(), p.Model(), len(req.Messages), toolCount)
}

// RecordCall logs and counts the outcome of a model call started at start. It
// returns resp with Latency set so providers can end with
// "return RecordCall(...)".
func RecordCall(ctx context.Context, p Provider, start time.Time, resp ChatResponse, err error) (ChatResponse, error) {
	resp.Latency = time.Since(start)
	if err != nil {
		logger.LLMError(ctx, p.ID(), err)
		prometheus.RecordProviderRequest(p.ID(), p.Model(), "error", resp.Latency)
		return resp, err
	}
	logger.LLMResponse(ctx, p.ID(), resp.Usage.InputTokens, resp.Usage.OutputTokens, len(resp.ToolCalls))
	prometheus.RecordProviderRequest(p.ID(), p.Model(), "success", resp.Latency)
	prometheus.RecordProviderTokens(p.ID(), p.Model(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp, nil
}
