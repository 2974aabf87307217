// Package assistant wires the query pipeline for one conversation: route the
// question to a weather tool, invoke it across the MCP boundary through the
// result cache, and turn the result into an answer.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	pkgerrors "github.com/hanyun2019/mcp-on-aws-demo/pkg/errors"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/cache"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/mcp"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/metrics/prometheus"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/router"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/synth"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/telemetry"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

// DefaultQueryTimeout bounds one Ask from routing to answer.
const DefaultQueryTimeout = 2 * time.Minute

// Query outcomes reported to metrics.
const (
	queryOK        = "ok"
	queryFailed    = "tool_error"
	queryTransport = "transport_error"
)

// ErrSessionClosed is returned by Ask after Close.
var ErrSessionClosed = errors.New("session is closed")

// Answer is the outcome of one query.
type Answer struct {
	Text      string
	Decision  router.Decision
	Result    tools.ToolResult
	RequestID string
	Duration  time.Duration
}

type options struct {
	store        cache.Store
	ttls         map[string]time.Duration
	queryTimeout time.Duration
	callTimeout  time.Duration
	modelTimeout time.Duration
	now          func() time.Time
}

// Option configures a Session.
type Option func(*options)

// WithCache sets the result store and per-tool TTLs. A nil store disables caching;
// nil ttls means tools.DefaultTTLs.
func WithCache(store cache.Store, ttls map[string]time.Duration) Option {
	return func(o *options) {
		o.store = store
		o.ttls = ttls
	}
}

// WithQueryTimeout bounds each Ask.
func WithQueryTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.queryTimeout = d
		}
	}
}

// WithCallTimeout bounds each tools/call round trip.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithModelTimeout bounds each model call made by the router and synthesizer.
func WithModelTimeout(d time.Duration) Option {
	return func(o *options) { o.modelTimeout = d }
}

// WithClock sets the clock used to resolve relative dates in queries.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Session is one conversation with the weather tools. Queries are answered one
// at a time.
type Session struct {
	id           string
	client       mcp.Client
	catalog      *tools.Registry
	router       *router.Router
	invoker      tools.Invoker
	synth        *synth.Synthesizer
	queryTimeout time.Duration

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// Open initializes client, discovers the tool catalog and builds the pipeline.
// model may be nil, in which case routing and answers use their fallbacks.
// On error the client is closed.
func Open(ctx context.Context, client mcp.Client, model providers.Provider, opts ...Option) (*Session, error) {
	o := options{queryTimeout: DefaultQueryTimeout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	ctx = logger.WithSessionID(ctx, id)

	info, err := client.Initialize(ctx)
	if err != nil {
		_ = client.Close()
		return nil, pkgerrors.Transport("assistant", "Open", err)
	}

	bridge := tools.NewMCPBridge(client, tools.WithCallTimeout(o.callTimeout))
	if _, err := bridge.Discover(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	catalog, err := bridge.Registry()
	if err != nil {
		_ = client.Close()
		return nil, pkgerrors.Transport("assistant", "Open", err)
	}
	if catalog.Len() == 0 {
		_ = client.Close()
		return nil, pkgerrors.Transport("assistant", "Open",
			fmt.Errorf("server %s offers no weather tools", info.ServerInfo.Name))
	}

	var routerOpts []router.Option
	var synthOpts []synth.Option
	if o.modelTimeout > 0 {
		routerOpts = append(routerOpts, router.WithModelTimeout(o.modelTimeout))
		synthOpts = append(synthOpts, synth.WithTimeout(o.modelTimeout))
	}
	routerOpts = append(routerOpts, router.WithClock(o.now))

	s := &Session{
		id:           id,
		client:       client,
		catalog:      catalog,
		router:       router.New(model, routerOpts...),
		invoker:      tools.NewCachedExecutor(bridge, catalog, o.store, o.ttls),
		synth:        synth.New(model, synthOpts...),
		queryTimeout: o.queryTimeout,
	}

	prometheus.RecordSessionStart()
	logger.InfoContext(ctx, "Session opened",
		"server", info.ServerInfo.Name,
		"server_version", info.ServerInfo.Version,
		"tools", catalog.Len())
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Tools returns the discovered catalog.
func (s *Session) Tools() []tools.ToolSpec {
	return s.catalog.List()
}

// Ask answers one query. Tool failures, model problems and rejected arguments
// all produce an Answer; the only error returned is a transport error, after
// which the session should be closed.
func (s *Session) Ask(ctx context.Context, query string) (*Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, pkgerrors.Transport("assistant", "Ask", ErrSessionClosed)
	}

	start := time.Now()
	requestID := uuid.NewString()
	ctx = logger.WithRequestID(logger.WithSessionID(ctx, s.id), requestID)
	ctx, span := telemetry.StartSpan(ctx, "assistant.ask",
		attribute.String("session.id", s.id),
		attribute.String("request.id", requestID))

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	decision := s.route(queryCtx, query)
	result, err := s.invoke(queryCtx, decision)
	if err != nil && decision.Source == router.SourceModel && pkgerrors.IsKind(err, pkgerrors.KindValidation) {
		logger.WarnContext(queryCtx, "Model arguments rejected, rerouting", "tool", decision.Tool, "error", err)
		decision = s.router.Fallback(queryCtx, query, s.catalog, "model arguments rejected")
		result, err = s.invoke(queryCtx, decision)
	}

	if err != nil {
		if transportErr := asTransport(queryCtx, err); transportErr != nil {
			prometheus.RecordQuery(queryTransport, time.Since(start))
			logger.ErrorContext(ctx, "Query failed at the protocol boundary", "error", transportErr)
			telemetry.EndSpan(span, transportErr)
			return nil, transportErr
		}
		result = failureFor(err)
		logger.WarnContext(ctx, "Tool call rejected", "tool", decision.Tool, "error", err)
	}

	text := s.synthesize(queryCtx, query, result)

	status := queryOK
	if _, ok := result.(tools.Failure); ok {
		status = queryFailed
	}
	elapsed := time.Since(start)
	prometheus.RecordQuery(status, elapsed)
	span.SetAttributes(attribute.String("query.status", status))
	telemetry.EndSpan(span, nil)

	return &Answer{
		Text:      text,
		Decision:  decision,
		Result:    result,
		RequestID: requestID,
		Duration:  elapsed,
	}, nil
}

func (s *Session) route(ctx context.Context, query string) router.Decision {
	ctx, span := telemetry.StartSpan(ctx, "assistant.route")
	d := s.router.Route(ctx, query, s.catalog)
	span.SetAttributes(
		attribute.String("tool.name", d.Tool),
		attribute.String("decision.source", d.Source))
	telemetry.EndSpan(span, nil)
	return d
}

func (s *Session) invoke(ctx context.Context, d router.Decision) (tools.ToolResult, error) {
	ctx = logger.WithDecisionSource(logger.WithTool(ctx, d.Tool), d.Source)
	ctx, span := telemetry.StartSpan(ctx, "assistant.invoke", attribute.String("tool.name", d.Tool))
	result, err := s.invoker.Invoke(ctx, d.Call())
	if err == nil {
		span.SetAttributes(attribute.String("tool.status", tools.StatusOf(result)))
	}
	telemetry.EndSpan(span, err)
	return result, err
}

func (s *Session) synthesize(ctx context.Context, query string, result tools.ToolResult) string {
	ctx, span := telemetry.StartSpan(ctx, "assistant.synthesize")
	defer telemetry.EndSpan(span, nil)
	return s.synth.Synthesize(ctx, query, result)
}

// asTransport returns err as a transport error when it is one, or when the query
// deadline expired while it was produced. Otherwise it returns nil.
func asTransport(ctx context.Context, err error) error {
	if pkgerrors.IsKind(err, pkgerrors.KindTransport) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return pkgerrors.Transport("assistant", "Ask", err)
	}
	return nil
}

// failureFor turns a non-transport invocation error into a result the
// synthesizer can apologize for.
func failureFor(err error) tools.Failure {
	reason := tools.ReasonBackendError
	if pkgerrors.IsKind(err, pkgerrors.KindValidation) {
		reason = tools.ReasonInvalidArguments
	}
	return tools.Failure{Reason: reason, Detail: err.Error()}
}

// Close releases the MCP client. Only the first call has an effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.closeErr = s.client.Close()
		prometheus.RecordSessionEnd()
		logger.Info("Session closed", "session_id", s.id)
	})
	return s.closeErr
}
