package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/hanyun2019/mcp-on-aws-demo/pkg/config"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/automation"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/cache"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/credentials"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/mcp"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/metrics/prometheus"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
	_ "github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/all" // register provider factories
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/telemetry"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/version"
)

// serverName identifies the weather tool server in the handshake and in logs.
const serverName = "hk-weather"

// overrideFlags maps viper keys to the root flags that set them. The same keys
// are read from HKWEATHER_* environment variables.
var overrideFlags = map[string]string{
	"model.provider":          "provider",
	"model.model":             "model",
	"model.platform":          "platform",
	"model.region":            "region",
	"model.base-url":          "base-url",
	"cache.type":              "cache",
	"cache.redis-addr":        "redis-addr",
	"backend.source":          "source",
	"timeouts.query":          "query-timeout",
	"telemetry.otlp-endpoint": "otlp-endpoint",
	"telemetry.metrics-addr":  "metrics-addr",
	"logging.format":          "log-format",
}

// loadConfig reads the manifest named by --config (or the defaults) and applies
// flag and environment overrides.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.AssistantConfig, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	loaded := config.Default()
	if path != "" {
		if loaded, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	applyOverrides(loaded, v)
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return loaded, nil
}

// applyOverrides copies every override key that is set onto cfg.
func applyOverrides(c *config.AssistantConfig, v *viper.Viper) {
	s := &c.Spec
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			if val := v.GetString(key); val != "" {
				*dst = val
			}
		}
	}
	setString("model.provider", &s.Model.Provider)
	setString("model.model", &s.Model.Model)
	setString("model.platform", &s.Model.Platform)
	setString("model.region", &s.Model.Region)
	setString("model.base-url", &s.Model.BaseURL)
	setString("cache.type", &s.Cache.Type)
	setString("cache.redis-addr", &s.Cache.RedisAddr)
	setString("backend.source", &s.Backend.Source)
	setString("telemetry.otlp-endpoint", &s.Telemetry.OTLPEndpoint)
	setString("telemetry.metrics-addr", &s.Telemetry.MetricsAddr)
	setString("logging.format", &s.Logging.Format)
	if v.IsSet("timeouts.query") {
		if d := v.GetDuration("timeouts.query"); d > 0 {
			s.Timeouts.Query = config.Duration(d)
		}
	}
}

// buildProvider resolves credentials and creates the configured model. It
// returns nil when no model is configured.
func buildProvider(ctx context.Context, spec config.ModelSpec) (providers.Provider, error) {
	if !spec.Enabled() {
		return nil, nil
	}

	cred, err := credentials.Resolve(ctx, credentials.ResolverConfig{
		ProviderType: spec.Provider,
		APIKeyEnv:    spec.APIKeyEnv,
		Platform:     spec.Platform,
		Region:       spec.Region,
		RoleARN:      spec.RoleARN,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s credentials: %w", spec.Provider, err)
	}

	return providers.CreateProviderFromSpec(providers.ProviderSpec{
		Type:    spec.Provider,
		Model:   spec.Model,
		BaseURL: spec.BaseURL,
		Defaults: providers.ProviderDefaults{
			Temperature: spec.Temperature,
			TopP:        spec.TopP,
			MaxTokens:   spec.MaxTokens,
		},
		Credential: cred,
		Platform:   spec.Platform,
		Region:     spec.Region,
	})
}

// buildStore returns the result cache for spec, or nil when caching is off.
func buildStore(ctx context.Context, spec config.CacheSpec) (cache.Store, error) {
	switch spec.Type {
	case config.CacheNone:
		return nil, nil
	case config.CacheRedis:
		store := cache.NewRedisStore(redis.NewClient(&redis.Options{Addr: spec.RedisAddr}), cache.WithPrefix(spec.KeyPrefix))
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("redis cache at %s: %w", spec.RedisAddr, err)
		}
		return store, nil
	default:
		return cache.NewMemoryStore(), nil
	}
}

// serverConfig describes the weather tool server child process. Without a
// configured command the assistant runs its own binary with "serve", passing
// the config file, the backend source and the trace context along.
func serverConfig(ctx context.Context, c *config.AssistantConfig, configPath string) (mcp.ServerConfig, error) {
	sc := mcp.ServerConfig{
		Name:    serverName,
		Command: c.Spec.Server.Command,
		Args:    c.Spec.Server.Args,
		Env:     map[string]string{},
	}
	if sc.Command == "" {
		self, err := os.Executable()
		if err != nil {
			return sc, fmt.Errorf("locate hkweather binary: %w", err)
		}
		sc.Command = self
		sc.Args = []string{"serve"}
		if configPath != "" {
			sc.Args = append(sc.Args, "--config", configPath)
		}
	}

	sc.Env[envPrefix+"_BACKEND_SOURCE"] = c.Spec.Backend.Source
	// The child must not bind the parent's metrics port.
	sc.Env[envPrefix+"_TELEMETRY_METRICS_ADDR"] = ""
	if c.Spec.Telemetry.OTLPEndpoint != "" {
		sc.Env[envPrefix+"_TELEMETRY_OTLP_ENDPOINT"] = c.Spec.Telemetry.OTLPEndpoint
	}
	for k, v := range telemetry.InjectEnv(ctx) {
		sc.Env[k] = v
	}
	for k, v := range c.Spec.Server.Env {
		sc.Env[k] = v
	}
	return sc, nil
}

// clientOptions derives MCP client options from the configured timeouts.
func clientOptions(c *config.AssistantConfig) mcp.ClientOptions {
	opts := mcp.DefaultClientOptions()
	opts.ClientInfo.Version = version.GetVersion()
	if d := c.Spec.Timeouts.ToolCall.Std(); d > 0 {
		opts.RequestTimeout = d
	}
	return opts
}

// newBrowser builds the automation backend for the serve command.
func newBrowser(spec config.BackendSpec) *automation.HTTPBrowser {
	opts := []automation.BrowserOption{automation.WithRunTimeout(spec.RunTimeout.Std())}
	if spec.RateLimit > 0 {
		burst := spec.Burst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, automation.WithRateLimit(rate.Limit(spec.RateLimit), burst))
	}
	if spec.SnapshotDir != "" {
		opts = append(opts, automation.WithSnapshotDir(spec.SnapshotDir))
	}
	if spec.MaxBodyBytes > 0 {
		opts = append(opts, automation.WithMaxBodyBytes(spec.MaxBodyBytes))
	}
	return automation.NewHTTPBrowser(opts...)
}

// startObservability sets up tracing and, when configured, the metrics endpoint.
// The returned function flushes and stops both.
func startObservability(ctx context.Context, spec config.TelemetrySpec, service string) (func(), error) {
	shutdownTracing, err := telemetry.Setup(ctx, spec.OTLPEndpoint, service)
	if err != nil {
		return nil, err
	}

	var exporter *prometheus.Exporter
	if spec.MetricsAddr != "" {
		exporter = prometheus.NewExporter(spec.MetricsAddr)
		go func() {
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics exporter stopped", "addr", spec.MetricsAddr, "error", err)
			}
		}()
		logger.Info("Serving metrics", "addr", spec.MetricsAddr)
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if exporter != nil {
			if err := exporter.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Metrics exporter shutdown failed", "error", err)
			}
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err)
		}
	}, nil
}
