// Package config loads the assistant manifest: a Kubernetes-style YAML document
// (apiVersion, kind, metadata, spec) describing the MCP server to launch, the
// language model, caching, the automation backend, timeouts, logging and
// telemetry.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

// Cache store types.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Backend sources.
const (
	SourcePage = "page"
	SourceAPI  = "api"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// ProviderNone disables the language model; routing and answers use fallbacks only.
const ProviderNone = "none"

// AssistantConfig is the top-level manifest.
type AssistantConfig struct {
	APIVersion string            `yaml:"apiVersion" jsonschema:"required,enum=hkweather.io/v1alpha1"`
	Kind       string            `yaml:"kind" jsonschema:"required,enum=AssistantConfig"`
	Metadata   metav1.ObjectMeta `yaml:"metadata,omitempty"`
	Spec       AssistantSpec     `yaml:"spec" jsonschema:"required"`
}

// AssistantSpec holds every configurable section.
type AssistantSpec struct {
	Server    ServerSpec    `yaml:"server"`
	Model     ModelSpec     `yaml:"model"`
	Cache     CacheSpec     `yaml:"cache"`
	Backend   BackendSpec   `yaml:"backend"`
	Timeouts  TimeoutSpec   `yaml:"timeouts"`
	Logging   LoggingSpec   `yaml:"logging"`
	Telemetry TelemetrySpec `yaml:"telemetry"`
}

// ServerSpec describes how to launch the weather MCP server. An empty command
// means the assistant re-executes its own binary with "serve".
type ServerSpec struct {
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Workers int               `yaml:"workers,omitempty" jsonschema:"minimum=1"`
}

// ModelSpec selects the language model.
type ModelSpec struct {
	Provider    string   `yaml:"provider" jsonschema:"enum=none,enum=mock,enum=claude,enum=openai,enum=ollama"`
	Model       string   `yaml:"model,omitempty"`
	BaseURL     string   `yaml:"baseURL,omitempty"`
	Platform    string   `yaml:"platform,omitempty" jsonschema:"enum=bedrock"`
	Region      string   `yaml:"region,omitempty"`
	RoleARN     string   `yaml:"roleARN,omitempty"`
	APIKeyEnv   string   `yaml:"apiKeyEnv,omitempty"`
	Temperature float32  `yaml:"temperature,omitempty" jsonschema:"minimum=0,maximum=2"`
	TopP        float32  `yaml:"topP,omitempty" jsonschema:"minimum=0,maximum=1"`
	MaxTokens   int      `yaml:"maxTokens,omitempty" jsonschema:"minimum=1"`
	Timeout     Duration `yaml:"timeout,omitempty"`
}

// Enabled reports whether a model is configured.
func (m ModelSpec) Enabled() bool {
	return m.Provider != "" && m.Provider != ProviderNone
}

// CacheSpec configures the tool result cache.
type CacheSpec struct {
	Type      string              `yaml:"type" jsonschema:"enum=memory,enum=redis,enum=none"`
	RedisAddr string              `yaml:"redisAddr,omitempty"`
	KeyPrefix string              `yaml:"keyPrefix,omitempty"`
	TTLs      map[string]Duration `yaml:"ttls,omitempty"`
}

// TTLMap returns per-tool TTLs, starting from the executor defaults.
func (c CacheSpec) TTLMap() map[string]time.Duration {
	ttls := tools.DefaultTTLs()
	for name, d := range c.TTLs {
		ttls[name] = d.Std()
	}
	return ttls
}

// BackendSpec configures the automation backend.
type BackendSpec struct {
	Source       string   `yaml:"source" jsonschema:"enum=page,enum=api"`
	RateLimit    float64  `yaml:"rateLimit,omitempty" jsonschema:"exclusiveMinimum=0"`
	Burst        int      `yaml:"burst,omitempty" jsonschema:"minimum=1"`
	RunTimeout   Duration `yaml:"runTimeout,omitempty"`
	SnapshotDir  string   `yaml:"snapshotDir,omitempty"`
	MaxBodyBytes int64    `yaml:"maxBodyBytes,omitempty" jsonschema:"minimum=1024"`
}

// TimeoutSpec bounds a whole query and a single protocol round trip.
type TimeoutSpec struct {
	Query    Duration `yaml:"query,omitempty"`
	ToolCall Duration `yaml:"toolCall,omitempty"`
}

// LoggingSpec configures runtime/logger.
type LoggingSpec struct {
	Level        string            `yaml:"level,omitempty" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=error"`
	Format       string            `yaml:"format,omitempty" jsonschema:"enum=json,enum=text"`
	CommonFields map[string]string `yaml:"commonFields,omitempty"`
}

// TelemetrySpec configures tracing and the metrics endpoint. Both are off when empty.
type TelemetrySpec struct {
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	MetricsAddr  string `yaml:"metricsAddr,omitempty"`
}

// Default returns the configuration used when no manifest is given.
func Default() *AssistantConfig {
	return &AssistantConfig{
		APIVersion: APIVersion,
		Kind:       KindAssistantConfig,
		Metadata:   metav1.ObjectMeta{Name: "hk-weather"},
		Spec: AssistantSpec{
			Model: ModelSpec{
				Provider:    ProviderNone,
				Temperature: 0.7,
				MaxTokens:   1024,
				Timeout:     Duration(30 * time.Second),
			},
			Cache:   CacheSpec{Type: CacheMemory, KeyPrefix: "hkweather:"},
			Backend: BackendSpec{Source: SourcePage, RateLimit: 2, Burst: 2, RunTimeout: Duration(30 * time.Second)},
			Timeouts: TimeoutSpec{
				Query:    Duration(2 * time.Minute),
				ToolCall: Duration(90 * time.Second),
			},
			Logging: LoggingSpec{Level: "info", Format: LogFormatText},
		},
	}
}

// Load reads, schema-validates and parses a manifest file.
func Load(path string) (*AssistantConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the manifest schema and decodes it over Default.
func Parse(data []byte) (*AssistantConfig, error) {
	if err := ValidateAssistantConfig(data); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks what the schema cannot: cross-field rules and tool names.
func (c *AssistantConfig) Validate() error {
	var errs []string
	if c.APIVersion != APIVersion {
		errs = append(errs, fmt.Sprintf("apiVersion must be %s, got %q", APIVersion, c.APIVersion))
	}
	if c.Kind != KindAssistantConfig {
		errs = append(errs, fmt.Sprintf("kind must be %s, got %q", KindAssistantConfig, c.Kind))
	}
	if c.Spec.Cache.Type == CacheRedis && c.Spec.Cache.RedisAddr == "" {
		errs = append(errs, "cache.redisAddr is required when cache.type is redis")
	}
	for name := range c.Spec.Cache.TTLs {
		if _, ok := tools.ParseKind(name); !ok {
			errs = append(errs, fmt.Sprintf("cache.ttls: unknown tool %q", name))
		}
	}
	if c.Spec.Model.Enabled() && c.Spec.Model.Provider != "mock" && c.Spec.Model.Model == "" {
		errs = append(errs, "model.model is required for provider "+c.Spec.Model.Provider)
	}
	if c.Spec.Model.Platform == "bedrock" && c.Spec.Model.Provider != "claude" {
		errs = append(errs, "model.platform bedrock is only supported for provider claude")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n%s", formatErrors(errs))
	}
	return nil
}

func formatErrors(msgs []string) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = fmt.Sprintf(errorFormat, m)
	}
	return strings.Join(lines, "\n")
}
