// Package router decides which weather tool answers a query. A language model
// chooses when one is configured and produces a usable choice; otherwise a
// fixed-priority keyword matcher does. Route never fails: every query gets a
// Decision.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/hanyun2019/mcp-on-aws-demo/pkg/errors"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/metrics/prometheus"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

// Decision sources.
const (
	SourceModel   = "ModelDriven"
	SourceKeyword = "KeywordFallback"
)

// DefaultModelTimeout bounds one model selection call.
const DefaultModelTimeout = 30 * time.Second

// Decision is the router's choice of tool and arguments.
type Decision struct {
	Tool      string
	Arguments map[string]any
	Source    string
	Reason    string
}

// Call returns the decision as a tool call.
func (d Decision) Call() tools.ToolCall {
	return tools.ToolCall{Name: d.Tool, Arguments: d.Arguments}
}

// Router picks tools for queries.
type Router struct {
	model        providers.Provider
	modelTimeout time.Duration
	now          func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithModelTimeout sets the per-call model timeout.
func WithModelTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.modelTimeout = d
		}
	}
}

// WithClock sets the clock used to resolve relative dates.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a Router. A nil model routes by keywords only.
func New(model providers.Provider, opts ...Option) *Router {
	r := &Router{
		model:        model,
		modelTimeout: DefaultModelTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route returns a decision for query over catalog. Model problems of any kind
// (unavailable, timed out, unparseable output, unknown tool, invalid arguments)
// fall back to keywords.
func (r *Router) Route(ctx context.Context, query string, catalog *tools.Registry) Decision {
	var d Decision
	if r.model == nil {
		d = SelectByKeywords(query, catalog, r.now())
		d.Reason = "no model configured; " + d.Reason
	} else if md, err := r.SelectWithModel(ctx, query, catalog); err != nil {
		logger.WarnContext(ctx, "model routing failed, using keyword fallback", "error", err)
		d = SelectByKeywords(query, catalog, r.now())
		d.Reason = "model unusable; " + d.Reason
	} else {
		d = md
	}

	logger.Decision(ctx, d.Tool, d.Source, d.Reason)
	prometheus.RecordDecision(d.Tool, d.Source)
	return d
}

// Fallback is Route without the model: the keyword decision, logged and counted.
func (r *Router) Fallback(ctx context.Context, query string, catalog *tools.Registry, why string) Decision {
	d := SelectByKeywords(query, catalog, r.now())
	d.Reason = why + "; " + d.Reason
	logger.Decision(ctx, d.Tool, d.Source, d.Reason)
	prometheus.RecordDecision(d.Tool, d.Source)
	return d
}

// SelectWithModel asks the model for a tool. Providers with native tool support
// are forced to call one; others are asked for a JSON object. The result must
// name a catalog tool with arguments that normalize, or a model-kind error is
// returned.
func (r *Router) SelectWithModel(ctx context.Context, query string, catalog *tools.Registry) (Decision, error) {
	if r.model == nil {
		return Decision{}, pkgerrors.Model("router", "SelectWithModel", fmt.Errorf("no model configured"))
	}
	ctx, cancel := context.WithTimeout(ctx, r.modelTimeout)
	defer cancel()
	ctx = logger.WithProvider(ctx, r.model.ID())
	ctx = logger.WithModel(ctx, r.model.Model())

	var (
		name string
		args json.RawMessage
		err  error
	)
	if ts, ok := r.model.(providers.ToolSupport); ok {
		name, args, err = selectWithTools(ctx, ts, query, catalog)
	} else {
		name, args, err = selectWithJSON(ctx, r.model, query, catalog)
	}
	if err != nil {
		return Decision{}, pkgerrors.Model("router", "SelectWithModel", err)
	}

	call := tools.ToolCall{Name: name}
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &call.Arguments); err != nil {
			return Decision{}, pkgerrors.Model("router", "SelectWithModel",
				fmt.Errorf("arguments for %s are not an object: %w", name, err))
		}
	}
	normalized, _, err := catalog.Normalize(call)
	if err != nil {
		return Decision{}, pkgerrors.Model("router", "SelectWithModel", err).
			WithDetails(map[string]any{"tool": name})
	}

	return Decision{
		Tool:      normalized.Name,
		Arguments: normalized.Arguments,
		Source:    SourceModel,
		Reason:    "model selected " + normalized.Name,
	}, nil
}

func selectWithTools(ctx context.Context, model providers.ToolSupport, query string, catalog *tools.Registry) (string, json.RawMessage, error) {
	req := providers.ChatRequest{
		System:   toolSelectionPrompt,
		Messages: []providers.Message{{Role: providers.RoleUser, Content: query}},
	}
	resp, err := model.ChatWithTools(ctx, req, providers.DescriptorsFromSpecs(catalog.List()), providers.ToolChoiceAny)
	if err != nil {
		return "", nil, err
	}
	if len(resp.ToolCalls) == 0 {
		return "", nil, fmt.Errorf("model returned no tool call")
	}
	tc := resp.ToolCalls[0]
	return tc.Name, tc.Arguments, nil
}

func selectWithJSON(ctx context.Context, model providers.Provider, query string, catalog *tools.Registry) (string, json.RawMessage, error) {
	req := providers.ChatRequest{
		System:   jsonSelectionPrompt(catalog.List()),
		Messages: []providers.Message{{Role: providers.RoleUser, Content: query}},
		JSONMode: true,
	}
	resp, err := model.Chat(ctx, req)
	if err != nil {
		return "", nil, err
	}
	return ParseSelection(resp.Content)
}

const toolSelectionPrompt = "You route questions about Hong Kong weather to exactly one tool. " +
	"Dates are in Asia/Hong_Kong and must be passed as YYYY-MM-DD."

func jsonSelectionPrompt(specs []tools.ToolSpec) string {
	var b strings.Builder
	b.WriteString(toolSelectionPrompt)
	b.WriteString("\n\nAvailable tools:\n")
	for _, s := range specs {
		fmt.Fprintf(&b, "- %s: %s\n  arguments schema: %s\n", s.Name, s.Description, s.InputSchema())
	}
	b.WriteString("\nReply with only a JSON object of the form " +
		`{"tool": "<tool name>", "arguments": {...}}` + " and nothing else.")
	return b.String()
}
