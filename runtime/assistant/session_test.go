package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/hanyun2019/mcp-on-aws-demo/pkg/errors"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/automation"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/cache"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/mcp"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/mock"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/router"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/weather"
)

func fixedClock() time.Time {
	return time.Date(2025, 4, 30, 18, 0, 0, 0, tools.HongKong)
}

// pageBackend serves canned extractions per recipe and counts runs.
type pageBackend struct {
	mu     sync.Mutex
	fields map[string]map[string]any
	err    error
	runs   map[string]int
}

func newPageBackend() *pageBackend {
	days := []any{}
	for i := 1; i <= 9; i++ {
		days = append(days, map[string]any{"date": fmt.Sprintf("%d May", i), "weather": fmt.Sprintf("Day %d", i)})
	}
	return &pageBackend{
		runs: map[string]int{},
		fields: map[string]map[string]any{
			"hk_current_weather": {"temperature": "28 degrees Celsius", "humidity": "80 per cent", "conditions": "Sunny periods"},
			"hk_forecast":        {"general_situation": "A ridge of high pressure", "days": days},
			"hk_warnings":        {"warnings": []any{"Strong Monsoon Signal"}},
		},
	}
}

func (b *pageBackend) Run(_ context.Context, recipe automation.Recipe, targetURL string, _ automation.RunOptions) (*automation.Extraction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runs[recipe.Name]++
	if b.err != nil {
		return nil, b.err
	}
	return &automation.Extraction{Fields: b.fields[recipe.Name], URL: targetURL}, nil
}

func (b *pageBackend) Runs(recipe string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs[recipe]
}

// openPiped serves the weather tools in-process and opens a session on them.
func openPiped(t *testing.T, backend automation.Backend, model providers.Provider, opts ...Option) *Session {
	t.Helper()
	srv := mcp.NewServer("hk-weather", "test")
	weather.NewService(backend, weather.WithClock(fixedClock)).Register(srv)

	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, serverReader, serverWriter)
		_ = serverWriter.Close()
		close(done)
	}()

	client := mcp.NewStreamClient("hk-weather", clientReader, clientWriter, mcp.DefaultClientOptions())
	all := append([]Option{WithCache(cache.NewMemoryStore(), nil), WithClock(fixedClock)}, opts...)
	s, err := Open(context.Background(), client, model, all...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
		cancel()
		<-done
	})
	return s
}

func TestAsk_CurrentWeatherWithoutModel(t *testing.T) {
	backend := newPageBackend()
	s := openPiped(t, backend, nil)

	answer, err := s.Ask(context.Background(), "What's the weather in Hong Kong right now?")
	require.NoError(t, err)

	assert.Equal(t, string(tools.KindCurrentWeather), answer.Decision.Tool)
	assert.Equal(t, router.SourceKeyword, answer.Decision.Source)
	assert.Contains(t, answer.Text, "Temperature: 28 degrees Celsius")
	assert.Contains(t, answer.Text, "Conditions: Sunny periods")
	assert.NotEmpty(t, answer.RequestID)
	assert.Equal(t, 1, backend.Runs("hk_current_weather"))
}

func TestAsk_ForecastForDate(t *testing.T) {
	s := openPiped(t, newPageBackend(), nil)

	answer, err := s.Ask(context.Background(), "Forecast for 2025-05-01")
	require.NoError(t, err)

	assert.Equal(t, string(tools.KindForecast), answer.Decision.Tool)
	assert.Equal(t, map[string]any{tools.ArgDate: "2025-05-01"}, answer.Decision.Arguments)

	ok, isSuccess := answer.Result.(tools.Success)
	require.True(t, isSuccess, "%#v", answer.Result)
	assert.Equal(t, "2025-05-01", ok.Payload["date"])
	assert.Contains(t, answer.Text, "Day 1")
}

func TestAsk_IdenticalQueriesCrossBoundaryOnce(t *testing.T) {
	backend := newPageBackend()
	s := openPiped(t, backend, nil)

	first, err := s.Ask(context.Background(), "current weather")
	require.NoError(t, err)
	second, err := s.Ask(context.Background(), "current weather")
	require.NoError(t, err)

	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, 1, backend.Runs("hk_current_weather"))
}

func TestAsk_BackendTimeoutIsApology(t *testing.T) {
	backend := newPageBackend()
	backend.err = fmt.Errorf("%w after 30s", automation.ErrTimeout)
	s := openPiped(t, backend, nil)

	answer, err := s.Ask(context.Background(), "weather now")
	require.NoError(t, err)

	failure, isFailure := answer.Result.(tools.Failure)
	require.True(t, isFailure)
	assert.Equal(t, tools.ReasonBackendTimeout, failure.Reason)
	assert.Contains(t, answer.Text, "timeout")
	assert.NotContains(t, answer.Text, "30s")
}

func TestAsk_ModelDriven(t *testing.T) {
	model := mock.NewToolProvider("mock", "test",
		mock.Reply{ToolCalls: []providers.ToolCall{{
			ID: "call_1", Name: string(tools.KindForecast), Arguments: json.RawMessage(`{"days":3}`),
		}}},
		mock.Reply{Content: "Sunny for the next three days."},
	)
	s := openPiped(t, newPageBackend(), model)

	answer, err := s.Ask(context.Background(), "Will I need an umbrella this week?")
	require.NoError(t, err)

	assert.Equal(t, router.SourceModel, answer.Decision.Source)
	assert.Equal(t, string(tools.KindForecast), answer.Decision.Tool)
	assert.Equal(t, "Sunny for the next three days.", answer.Text)

	ok, isSuccess := answer.Result.(tools.Success)
	require.True(t, isSuccess)
	assert.Len(t, ok.Payload["days"], 3)
}

func TestAsk_ModelNamesUnknownToolFallsBack(t *testing.T) {
	model := mock.NewToolProvider("mock", "test",
		mock.Reply{ToolCalls: []providers.ToolCall{{ID: "call_1", Name: "get_tides", Arguments: json.RawMessage(`{}`)}}},
		mock.Reply{Content: "One signal is in force."},
	)
	s := openPiped(t, newPageBackend(), model)

	answer, err := s.Ask(context.Background(), "are there any warnings in force")
	require.NoError(t, err)

	assert.Equal(t, router.SourceKeyword, answer.Decision.Source)
	assert.Equal(t, string(tools.KindWarnings), answer.Decision.Tool)
	assert.Contains(t, answer.Decision.Reason, "model unusable")
}

func TestSession_EveryToolInvokesWithMinimalArgs(t *testing.T) {
	s := openPiped(t, newPageBackend(), nil)

	specs := s.Tools()
	require.Len(t, specs, len(tools.Kinds()))
	for _, spec := range specs {
		result, err := s.invoker.Invoke(context.Background(), tools.ToolCall{Name: spec.Name})
		require.NoError(t, err, spec.Name)
		assert.IsType(t, tools.Success{}, result, spec.Name)
	}
}

func TestLoop(t *testing.T) {
	backend := newPageBackend()
	s := openPiped(t, backend, nil)

	in := strings.NewReader("\n   \nwhat's the weather now\nQUIT\nforecast\n")
	out := &bytes.Buffer{}
	require.NoError(t, s.Loop(context.Background(), in, out))

	assert.Contains(t, out.String(), "Temperature: 28 degrees Celsius")
	assert.Contains(t, out.String(), "Goodbye!")
	assert.Equal(t, 1, backend.Runs("hk_current_weather"))
	assert.Equal(t, 0, backend.Runs("hk_forecast"))
}

func TestLoop_EOF(t *testing.T) {
	s := openPiped(t, newPageBackend(), nil)
	out := &bytes.Buffer{}
	require.NoError(t, s.Loop(context.Background(), strings.NewReader(""), out))
	assert.Equal(t, Prompt+"\n", out.String())
}

func TestLoop_ReturnsWhenCancelledWhileWaiting(t *testing.T) {
	s, _ := openFake(t, nil, &stubInvoker{})
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	out := &bytes.Buffer{}
	done := make(chan error, 1)
	go func() { done <- s.Loop(ctx, pr, out) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not return after cancel")
	}
}

func TestLoop_WithoutPromptAndRenderer(t *testing.T) {
	s := openPiped(t, newPageBackend(), nil)
	out := &bytes.Buffer{}
	err := s.Loop(context.Background(), strings.NewReader("weather now\n"), out,
		WithoutPrompt(),
		WithRenderer(strings.ToUpper))
	require.NoError(t, err)

	assert.NotContains(t, out.String(), Prompt)
	assert.Contains(t, out.String(), "TEMPERATURE: 28 DEGREES CELSIUS")
}

// fakeClient is an MCP client offering the catalog without a server behind it.
type fakeClient struct {
	initErr error
	listErr error
	listed  []mcp.Tool
	closes  atomic.Int32
}

func (c *fakeClient) Initialize(context.Context) (*mcp.InitializeResponse, error) {
	if c.initErr != nil {
		return nil, c.initErr
	}
	return &mcp.InitializeResponse{ServerInfo: mcp.Implementation{Name: "fake", Version: "1"}}, nil
}

func (c *fakeClient) ListTools(context.Context) ([]mcp.Tool, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	if c.listed != nil {
		return c.listed, nil
	}
	return tools.ToolsForMCP(tools.Catalog()), nil
}

func (c *fakeClient) CallTool(context.Context, string, json.RawMessage) (*mcp.ToolCallResponse, error) {
	return nil, mcp.ErrProcessDied
}

func (c *fakeClient) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *fakeClient) IsAlive() bool { return true }

// stubInvoker returns scripted results in order and records the calls.
type stubInvoker struct {
	mu      sync.Mutex
	calls   []tools.ToolCall
	results []func(ctx context.Context) (tools.ToolResult, error)
}

func (s *stubInvoker) Invoke(ctx context.Context, call tools.ToolCall) (tools.ToolResult, error) {
	s.mu.Lock()
	i := len(s.calls)
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	return s.results[min(i, len(s.results)-1)](ctx)
}

func success(context.Context) (tools.ToolResult, error) {
	return tools.Success{Payload: map[string]any{"temperature": "28 degrees Celsius"}}, nil
}

func openFake(t *testing.T, model providers.Provider, invoker tools.Invoker, opts ...Option) (*Session, *fakeClient) {
	t.Helper()
	client := &fakeClient{}
	s, err := Open(context.Background(), client, model, append(opts, WithClock(fixedClock))...)
	require.NoError(t, err)
	s.invoker = invoker
	t.Cleanup(func() { _ = s.Close() })
	return s, client
}

func TestAsk_ReroutesOnceWhenModelArgumentsRejected(t *testing.T) {
	model := mock.NewToolProvider("mock", "test", mock.Reply{ToolCalls: []providers.ToolCall{{
		ID: "call_1", Name: string(tools.KindForecast), Arguments: json.RawMessage(`{"days":2}`),
	}}})
	invoker := &stubInvoker{results: []func(context.Context) (tools.ToolResult, error){
		func(context.Context) (tools.ToolResult, error) {
			return nil, pkgerrors.Validation("bridge", "Invoke", errors.New("days out of range"))
		},
		success,
	}}
	s, _ := openFake(t, model, invoker)

	answer, err := s.Ask(context.Background(), "is it hot right now")
	require.NoError(t, err)

	require.Len(t, invoker.calls, 2)
	assert.Equal(t, string(tools.KindForecast), invoker.calls[0].Name)
	assert.Equal(t, string(tools.KindCurrentWeather), invoker.calls[1].Name)
	assert.Equal(t, router.SourceKeyword, answer.Decision.Source)
	assert.Contains(t, answer.Decision.Reason, "model arguments rejected")
	assert.IsType(t, tools.Success{}, answer.Result)
}

func TestAsk_KeywordValidationErrorIsApology(t *testing.T) {
	invoker := &stubInvoker{results: []func(context.Context) (tools.ToolResult, error){
		func(context.Context) (tools.ToolResult, error) {
			return nil, pkgerrors.Validation("bridge", "Invoke", errors.New("bad date"))
		},
	}}
	s, _ := openFake(t, nil, invoker)

	answer, err := s.Ask(context.Background(), "forecast for 2025-13-45")
	require.NoError(t, err)
	require.Len(t, invoker.calls, 1)

	failure, isFailure := answer.Result.(tools.Failure)
	require.True(t, isFailure)
	assert.Equal(t, tools.ReasonInvalidArguments, failure.Reason)
	assert.NotContains(t, answer.Text, "bad date")
}

func TestAsk_UnclassifiedErrorIsApology(t *testing.T) {
	invoker := &stubInvoker{results: []func(context.Context) (tools.ToolResult, error){
		func(context.Context) (tools.ToolResult, error) { return nil, errors.New("cache exploded") },
	}}
	s, _ := openFake(t, nil, invoker)

	answer, err := s.Ask(context.Background(), "weather now")
	require.NoError(t, err)
	assert.Equal(t, tools.ReasonBackendError, answer.Result.(tools.Failure).Reason)
}

func TestAsk_TransportErrorIsReturned(t *testing.T) {
	invoker := &stubInvoker{results: []func(context.Context) (tools.ToolResult, error){
		func(context.Context) (tools.ToolResult, error) {
			return nil, pkgerrors.Transport("bridge", "Invoke", mcp.ErrProcessDied)
		},
	}}
	s, _ := openFake(t, nil, invoker)

	answer, err := s.Ask(context.Background(), "weather now")
	assert.Nil(t, answer)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindTransport))
	assert.ErrorIs(t, err, mcp.ErrProcessDied)
}

func TestAsk_QueryDeadlineIsTransportError(t *testing.T) {
	invoker := &stubInvoker{results: []func(context.Context) (tools.ToolResult, error){
		func(ctx context.Context) (tools.ToolResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}
	s, _ := openFake(t, nil, invoker, WithQueryTimeout(20*time.Millisecond))

	_, err := s.Ask(context.Background(), "weather now")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindTransport))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoop_TransportErrorEndsLoop(t *testing.T) {
	invoker := &stubInvoker{results: []func(context.Context) (tools.ToolResult, error){
		func(context.Context) (tools.ToolResult, error) {
			return nil, pkgerrors.Transport("bridge", "Invoke", mcp.ErrProcessDied)
		},
	}}
	s, _ := openFake(t, nil, invoker)

	out := &bytes.Buffer{}
	err := s.Loop(context.Background(), strings.NewReader("weather now\nforecast\n"), out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "Lost connection")
	assert.Len(t, invoker.calls, 1)
}

func TestClose_Once(t *testing.T) {
	s, client := openFake(t, nil, &stubInvoker{results: []func(context.Context) (tools.ToolResult, error){success}})

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, int32(1), client.closes.Load())

	_, err := s.Ask(context.Background(), "weather now")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindTransport))
}

func TestOpen_Failures(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"initialize", &fakeClient{initErr: mcp.ErrProcessDied}},
		{"list tools", &fakeClient{listErr: mcp.ErrServerUnresponsive}},
		{"no weather tools", &fakeClient{listed: []mcp.Tool{{Name: "get_tides", InputSchema: json.RawMessage(`{"type":"object"}`)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.client, nil)
			assert.Nil(t, s)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsKind(err, pkgerrors.KindTransport), "%v", err)
			assert.Equal(t, int32(1), tt.client.closes.Load())
		})
	}
}
