package claude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/credentials"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
)

type captured struct {
	path    string
	headers http.Header
	body    map[string]any
}

func fakeAPI(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.headers = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func create(t *testing.T, spec providers.ProviderSpec) *Provider {
	t.Helper()
	spec.Type = "claude"
	p, err := providers.CreateProviderFromSpec(spec)
	require.NoError(t, err)
	require.IsType(t, &Provider{}, p)
	return p.(*Provider)
}

func TestChat_DirectAPI(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{
		"content":[{"type":"text","text":"It is 28 degrees."}],
		"stop_reason":"end_turn",
		"usage":{"input_tokens":40,"output_tokens":6}}`)

	p := create(t, providers.ProviderSpec{
		Model:      "claude-3-5-sonnet-20241022",
		BaseURL:    srv.URL + "/v1",
		Credential: credentials.NewHeaderCredential("sk-ant", credentials.AnthropicScheme),
		Defaults:   providers.ProviderDefaults{MaxTokens: 300},
	})

	resp, err := p.Chat(context.Background(), providers.ChatRequest{
		System:   "You are a weather assistant.",
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "How warm is it?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "It is 28 degrees.", resp.Content)
	assert.Equal(t, providers.Usage{InputTokens: 40, OutputTokens: 6}, resp.Usage)
	assert.Equal(t, "claude", p.ID())

	assert.Equal(t, "/v1/messages", got.path)
	assert.Equal(t, "sk-ant", got.headers.Get("X-API-Key"))
	assert.Equal(t, anthropicVersion, got.headers.Get("Anthropic-Version"))
	assert.Equal(t, "claude-3-5-sonnet-20241022", got.body["model"])
	assert.Equal(t, float64(300), got.body["max_tokens"])
	assert.Equal(t, "You are a weather assistant.", got.body["system"])
	assert.NotContains(t, got.body, "anthropic_version")
}

func TestChatWithTools_ForcedToolUse(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{
		"content":[{"type":"tool_use","id":"tu_1","name":"get_hk_forecast","input":{"days":3}}],
		"stop_reason":"tool_use",
		"usage":{"input_tokens":120,"output_tokens":20}}`)
	p := create(t, providers.ProviderSpec{Model: "claude-3-5-haiku-20241022", BaseURL: srv.URL})

	resp, err := p.ChatWithTools(context.Background(),
		providers.ChatRequest{Messages: []providers.Message{{Role: providers.RoleUser, Content: "next 3 days?"}}},
		[]providers.ToolDescriptor{{Name: "get_hk_forecast", Description: "forecast", InputSchema: json.RawMessage(`{"type":"object"}`)}},
		providers.ToolChoiceAny)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "get_hk_forecast", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"days":3}`, string(resp.ToolCalls[0].Arguments))

	assert.Equal(t, map[string]any{"type": "any"}, got.body["tool_choice"])
	tools := got.body["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_hk_forecast", tools[0].(map[string]any)["name"])
	assert.Equal(t, float64(defaultMaxTokens), got.body["max_tokens"])
}

func TestChat_Bedrock(t *testing.T) {
	srv, got := fakeAPI(t, http.StatusOK, `{"content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
	cred := credentials.NewAWSCredentialFromProvider(
		awscreds.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""), "ap-east-1")

	p := create(t, providers.ProviderSpec{
		Model:      "claude-3-5-sonnet-20241022",
		BaseURL:    srv.URL,
		Platform:   credentials.PlatformBedrock,
		Credential: cred,
	})

	resp, err := p.Chat(context.Background(), providers.ChatRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	assert.Equal(t, "/model/anthropic.claude-3-5-sonnet-20241022-v2:0/invoke", got.path)
	assert.True(t, strings.HasPrefix(got.headers.Get("Authorization"), "AWS4-HMAC-SHA256"))
	assert.Empty(t, got.headers.Get("Anthropic-Version"))
	assert.Equal(t, bedrockVersion, got.body["anthropic_version"])
	assert.NotContains(t, got.body, "model")
}

func TestBedrockRequiresAWSCredential(t *testing.T) {
	_, err := providers.CreateProviderFromSpec(providers.ProviderSpec{
		Type:     "claude",
		Model:    "claude-3-5-sonnet-20241022",
		Platform: credentials.PlatformBedrock,
	})
	assert.ErrorContains(t, err, "AWS credentials")
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		platform string
		want     string
	}{
		{"http error body", http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, "", "invalid x-api-key"},
		{"bedrock message", http.StatusForbidden, `{"message":"no access to model"}`, "bedrock", "bedrock error (HTTP 403): no access to model"},
		{"error in 200 body", http.StatusOK, `{"error":{"type":"overloaded_error","message":"busy"}}`, "", "busy"},
		{"empty content", http.StatusOK, `{"content":[],"stop_reason":"max_tokens"}`, "", "no content"},
		{"not json", http.StatusOK, `<html>`, "", "unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fakeAPI(t, tt.status, tt.body)
			p := NewProvider("claude", "claude-3-haiku-20240307", srv.URL, providers.ProviderDefaults{}, nil, tt.platform)
			_, err := p.Chat(context.Background(), providers.ChatRequest{
				Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
