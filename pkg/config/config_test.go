package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

const fullManifest = `
apiVersion: hkweather.io/v1alpha1
kind: AssistantConfig
metadata:
  name: hk-weather-bedrock
  labels:
    env: demo
spec:
  server:
    command: /usr/local/bin/hkweather
    args: ["serve"]
    env:
      HKWEATHER_BACKEND_SOURCE: api
  model:
    provider: claude
    model: claude-3-5-haiku-20241022
    platform: bedrock
    region: us-west-2
    temperature: 0.2
    maxTokens: 512
    timeout: 20s
  cache:
    type: redis
    redisAddr: localhost:6379
    ttls:
      get_hk_forecast: 1h
  backend:
    source: api
    runTimeout: 45s
  timeouts:
    query: 3m
    toolCall: 1m
  logging:
    level: debug
    format: json
  telemetry:
    metricsAddr: ":9090"
`

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, APIVersion, cfg.APIVersion)
	assert.Equal(t, KindAssistantConfig, cfg.Kind)
	assert.False(t, cfg.Spec.Model.Enabled())
	assert.Equal(t, CacheMemory, cfg.Spec.Cache.Type)
	assert.Equal(t, SourcePage, cfg.Spec.Backend.Source)
	assert.Equal(t, 2*time.Minute, cfg.Spec.Timeouts.Query.Std())
	assert.Equal(t, tools.DefaultTTLs(), cfg.Spec.Cache.TTLMap())
}

func TestParse_FullManifest(t *testing.T) {
	cfg, err := Parse([]byte(fullManifest))
	require.NoError(t, err)

	assert.Equal(t, "hk-weather-bedrock", cfg.Metadata.Name)
	assert.Equal(t, "demo", cfg.Metadata.Labels["env"])
	assert.Equal(t, []string{"serve"}, cfg.Spec.Server.Args)
	assert.Equal(t, "api", cfg.Spec.Server.Env["HKWEATHER_BACKEND_SOURCE"])

	m := cfg.Spec.Model
	assert.True(t, m.Enabled())
	assert.Equal(t, "claude", m.Provider)
	assert.Equal(t, "bedrock", m.Platform)
	assert.InDelta(t, 0.2, m.Temperature, 1e-6)
	assert.Equal(t, 512, m.MaxTokens)
	assert.Equal(t, 20*time.Second, m.Timeout.Std())

	ttls := cfg.Spec.Cache.TTLMap()
	assert.Equal(t, time.Hour, ttls[string(tools.KindForecast)])
	assert.Equal(t, 5*time.Minute, ttls[string(tools.KindCurrentWeather)])

	assert.Equal(t, SourceAPI, cfg.Spec.Backend.Source)
	assert.Equal(t, 45*time.Second, cfg.Spec.Backend.RunTimeout.Std())
	// Unset fields keep their defaults.
	assert.Equal(t, 2, cfg.Spec.Backend.Burst)
	assert.Equal(t, time.Minute, cfg.Spec.Timeouts.ToolCall.Std())
	assert.Equal(t, LogFormatJSON, cfg.Spec.Logging.Format)
	assert.Equal(t, ":9090", cfg.Spec.Telemetry.MetricsAddr)
}

func TestParse_MinimalManifestKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("apiVersion: hkweather.io/v1alpha1\nkind: AssistantConfig\nspec: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, Default().Spec, cfg.Spec)
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		contains string
	}{
		{"wrong kind", "apiVersion: hkweather.io/v1alpha1\nkind: Deployment\nspec: {}\n", "kind"},
		{"missing spec", "apiVersion: hkweather.io/v1alpha1\nkind: AssistantConfig\n", "spec"},
		{"unknown provider", "apiVersion: hkweather.io/v1alpha1\nkind: AssistantConfig\nspec:\n  model:\n    provider: gemini\n", "provider"},
		{"bad duration", "apiVersion: hkweather.io/v1alpha1\nkind: AssistantConfig\nspec:\n  timeouts:\n    query: soon\n", "query"},
		{"unknown field", "apiVersion: hkweather.io/v1alpha1\nkind: AssistantConfig\nspec:\n  cache:\n    size: 10\n", "size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.manifest))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "schema validation failed")
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("spec: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate_CrossFieldRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*AssistantConfig)
		contains string
	}{
		{"redis without addr", func(c *AssistantConfig) { c.Spec.Cache.Type = CacheRedis }, "redisAddr"},
		{"unknown ttl tool", func(c *AssistantConfig) {
			c.Spec.Cache.TTLs = map[string]Duration{"get_tides": Duration(time.Minute)}
		}, `unknown tool "get_tides"`},
		{"model name required", func(c *AssistantConfig) { c.Spec.Model.Provider = "openai" }, "model.model"},
		{"bedrock only for claude", func(c *AssistantConfig) {
			c.Spec.Model.Provider = "openai"
			c.Spec.Model.Model = "gpt-4o-mini"
			c.Spec.Model.Platform = "bedrock"
		}, "bedrock"},
		{"api version", func(c *AssistantConfig) { c.APIVersion = "v1" }, "apiVersion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestValidate_MockNeedsNoModelName(t *testing.T) {
	cfg := Default()
	cfg.Spec.Model.Provider = "mock"
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullManifest), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude", cfg.Spec.Model.Provider)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestGenerateSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, KindAssistantConfig, doc["title"])
	assert.ElementsMatch(t, []any{"apiVersion", "kind", "spec"}, doc["required"])

	props := doc["properties"].(map[string]any)
	assert.Equal(t, []any{APIVersion}, props["apiVersion"].(map[string]any)["enum"])
	spec := props["spec"].(map[string]any)
	assert.Equal(t, false, spec["additionalProperties"])
	timeouts := spec["properties"].(map[string]any)["timeouts"].(map[string]any)
	query := timeouts["properties"].(map[string]any)["query"].(map[string]any)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, durationPattern, query["pattern"])

	s, err := compiledSchema()
	require.NoError(t, err)
	assert.NotNil(t, s)
}
