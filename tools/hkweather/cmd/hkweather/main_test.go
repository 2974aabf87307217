package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyun2019/mcp-on-aws-demo/pkg/config"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/cache"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/mcp"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/version"
)

func commandWithConfig(path string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", path, "")
	return cmd
}

func TestLoadConfig_DefaultsAndFile(t *testing.T) {
	cfg, err := loadConfig(commandWithConfig(""), viper.New())
	require.NoError(t, err)
	assert.Equal(t, config.Default().Spec, cfg.Spec)

	path := filepath.Join(t.TempDir(), "assistant.yaml")
	manifest := "apiVersion: hkweather.io/v1alpha1\nkind: AssistantConfig\nspec:\n  backend:\n    source: api\n"
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))

	cfg, err = loadConfig(commandWithConfig(path), viper.New())
	require.NoError(t, err)
	assert.Equal(t, config.SourceAPI, cfg.Spec.Backend.Source)

	_, err = loadConfig(commandWithConfig(filepath.Join(t.TempDir(), "missing.yaml")), viper.New())
	assert.Error(t, err)
}

func TestLoadConfig_OverridesAreValidated(t *testing.T) {
	v := viper.New()
	v.Set("cache.type", "redis")

	_, err := loadConfig(commandWithConfig(""), v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redisAddr")
}

func TestApplyOverrides(t *testing.T) {
	v := viper.New()
	v.Set("model.provider", "openai")
	v.Set("model.model", "gpt-4o-mini")
	v.Set("backend.source", "api")
	v.Set("timeouts.query", "45s")
	v.Set("telemetry.metrics-addr", "")

	cfg := config.Default()
	applyOverrides(cfg, v)

	assert.Equal(t, "openai", cfg.Spec.Model.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Spec.Model.Model)
	assert.Equal(t, config.SourceAPI, cfg.Spec.Backend.Source)
	assert.Equal(t, 45*time.Second, cfg.Spec.Timeouts.Query.Std())
	assert.Empty(t, cfg.Spec.Telemetry.MetricsAddr)
	assert.Equal(t, config.CacheMemory, cfg.Spec.Cache.Type)
}

func TestApplyOverrides_FromEnvironment(t *testing.T) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	t.Setenv("HKWEATHER_CACHE_REDIS_ADDR", "localhost:6380")
	t.Setenv("HKWEATHER_MODEL_PROVIDER", "mock")

	cfg := config.Default()
	applyOverrides(cfg, v)

	assert.Equal(t, "localhost:6380", cfg.Spec.Cache.RedisAddr)
	assert.Equal(t, "mock", cfg.Spec.Model.Provider)
}

func TestBuildProvider(t *testing.T) {
	ctx := context.Background()

	model, err := buildProvider(ctx, config.ModelSpec{Provider: config.ProviderNone})
	require.NoError(t, err)
	assert.Nil(t, model)

	model, err = buildProvider(ctx, config.ModelSpec{Provider: "mock", Model: "scripted"})
	require.NoError(t, err)
	require.NotNil(t, model)
	assert.Equal(t, "mock", model.ID())
	assert.Equal(t, "scripted", model.Model())

	model, err = buildProvider(ctx, config.ModelSpec{Provider: "ollama", Model: "llama3.2"})
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", model.Model())

	_, err = buildProvider(ctx, config.ModelSpec{Provider: "mock", APIKeyEnv: "HKWEATHER_TEST_UNSET_KEY"})
	assert.Error(t, err)
}

func TestBuildStore(t *testing.T) {
	ctx := context.Background()

	store, err := buildStore(ctx, config.CacheSpec{Type: config.CacheNone})
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = buildStore(ctx, config.CacheSpec{Type: config.CacheMemory})
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryStore{}, store)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	store, err = buildStore(ctx, config.CacheSpec{Type: config.CacheRedis, RedisAddr: mr.Addr(), KeyPrefix: "hkw:"})
	require.NoError(t, err)
	require.IsType(t, &cache.RedisStore{}, store)
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("hkw:k"))
	require.NoError(t, store.Close())

	addr := mr.Addr()
	mr.Close()
	_, err = buildStore(ctx, config.CacheSpec{Type: config.CacheRedis, RedisAddr: addr})
	assert.Error(t, err)
}

func TestServerConfig_SelfExec(t *testing.T) {
	c := config.Default()
	c.Spec.Server.Env = map[string]string{"HTTPS_PROXY": "http://proxy:3128"}

	sc, err := serverConfig(context.Background(), c, "assistant.yaml")
	require.NoError(t, err)

	self, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, serverName, sc.Name)
	assert.Equal(t, self, sc.Command)
	assert.Equal(t, []string{"serve", "--config", "assistant.yaml"}, sc.Args)
	assert.Equal(t, config.SourcePage, sc.Env["HKWEATHER_BACKEND_SOURCE"])
	assert.Equal(t, "", sc.Env["HKWEATHER_TELEMETRY_METRICS_ADDR"])
	assert.Equal(t, "http://proxy:3128", sc.Env["HTTPS_PROXY"])
}

func TestServerConfig_ConfiguredCommand(t *testing.T) {
	c := config.Default()
	c.Spec.Server.Command = "/opt/hkweather/bin/server"
	c.Spec.Server.Args = []string{"--stdio"}

	sc, err := serverConfig(context.Background(), c, "ignored.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/opt/hkweather/bin/server", sc.Command)
	assert.Equal(t, []string{"--stdio"}, sc.Args)
}

func TestClientOptions(t *testing.T) {
	c := config.Default()
	c.Spec.Timeouts.ToolCall = config.Duration(time.Minute)

	opts := clientOptions(c)
	assert.Equal(t, time.Minute, opts.RequestTimeout)
	assert.Equal(t, 0, opts.MaxRetries)
	assert.Equal(t, version.GetVersion(), opts.ClientInfo.Version)
}

func TestNewBrowser(t *testing.T) {
	spec := config.Default().Spec.Backend
	spec.SnapshotDir = t.TempDir()
	spec.MaxBodyBytes = 1 << 20
	assert.NotNil(t, newBrowser(spec))
}

func TestPrintTools(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printTools(&out, tools.Catalog(), false))
	text := out.String()
	for _, kind := range tools.Kinds() {
		assert.Contains(t, text, string(kind))
	}
	assert.Contains(t, text, "days (integer) default=9")

	out.Reset()
	require.NoError(t, printTools(&out, tools.Catalog(), true))
	var listed []mcp.Tool
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	assert.Len(t, listed, len(tools.Kinds()))
}

func TestRootCommand_VersionSchemaAndLocalTools(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "hkweather version")

	out.Reset()
	rootCmd.SetArgs([]string{"schema"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `"title": "AssistantConfig"`)

	out.Reset()
	rootCmd.SetArgs([]string{"tools", "--local"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), string(tools.KindForecast))
	assert.NotNil(t, cfg)
}

func TestServeCommand_AnswersOverStdio(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	}, "\n") + "\n")
	var out bytes.Buffer
	rootCmd.SetIn(in)
	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
	})

	rootCmd.SetArgs([]string{"serve"})
	require.NoError(t, rootCmd.Execute())

	var responses []mcp.JSONRPCMessage
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var msg mcp.JSONRPCMessage
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg))
		responses = append(responses, msg)
	}
	require.Len(t, responses, 2)

	var initResp mcp.InitializeResponse
	require.NoError(t, json.Unmarshal(responses[0].Result, &initResp))
	assert.Equal(t, serverName, initResp.ServerInfo.Name)
	assert.Equal(t, serverInstructions, initResp.Instructions)

	var list mcp.ToolsListResponse
	require.NoError(t, json.Unmarshal(responses[1].Result, &list))
	assert.Len(t, list.Tools, len(tools.Kinds()))
}

func TestRunChat_ClosesStoreWhenServerFails(t *testing.T) {
	mr := miniredis.RunT(t)
	c := config.Default()
	c.Spec.Server.Command = filepath.Join(t.TempDir(), "missing-server")
	c.Spec.Cache = config.CacheSpec{Type: config.CacheRedis, RedisAddr: mr.Addr()}
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })

	cmd := &cobra.Command{Use: "chat"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().StringP("query", "q", "what's the weather now", "")
	cmd.SetContext(context.Background())

	err := runChat(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start the weather tools")
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestNewAnswerRenderer(t *testing.T) {
	render := newAnswerRenderer(glamour.WithStandardStyle("notty"))
	require.NotNil(t, render)
	out := render("**Sunny** with a high of 28 degrees")
	assert.Contains(t, out, "Sunny")
	assert.Contains(t, out, "28 degrees")
	assert.False(t, strings.HasPrefix(out, "\n"))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, isTerminal(f))
}
