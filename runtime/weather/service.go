// Package weather implements the server side of the Hong Kong weather tools: it
// validates tool arguments, runs the matching automation recipe and shapes the
// extraction into a tool result envelope.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/automation"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/mcp"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

// Location is reported with every current-weather payload.
const Location = "Hong Kong"

// Service answers weather tool calls from an automation backend.
type Service struct {
	backend  automation.Backend
	recipes  map[tools.Kind]automation.Recipe
	registry *tools.Registry
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRecipes replaces the recipe set. Kinds missing from recipes fall back to
// the page recipes.
func WithRecipes(recipes map[tools.Kind]automation.Recipe) Option {
	return func(s *Service) {
		for k, r := range recipes {
			s.recipes[k] = r
		}
	}
}

// WithClock sets the clock used to resolve forecast dates without a year.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service over backend using the page recipes.
func NewService(backend automation.Backend, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		recipes:  PageRecipes(),
		registry: tools.DefaultRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle runs one tool call. It never returns an error: every problem is a Failure.
func (s *Service) Handle(ctx context.Context, call tools.ToolCall) tools.ToolResult {
	kind, ok := tools.ParseKind(call.Name)
	if !ok {
		return tools.Failure{Reason: tools.ReasonInvalidArguments, Detail: "unknown tool " + call.Name}
	}
	ctx = logger.WithTool(ctx, call.Name)

	normalized, _, err := s.registry.Normalize(call)
	if err != nil {
		return tools.Failure{Reason: tools.ReasonInvalidArguments, Detail: err.Error()}
	}
	args := normalized.Arguments
	capture, _ := args[tools.ArgTakeScreenshot].(bool)

	ext, failure := s.run(ctx, kind, capture)
	if failure != nil {
		return *failure
	}

	switch kind {
	case tools.KindCurrentWeather:
		return s.current(ext)
	case tools.KindForecast:
		return s.forecast(ext, args)
	case tools.KindWarnings:
		return s.warnings(ext)
	default:
		return tools.Failure{Reason: tools.ReasonInvalidArguments, Detail: "unsupported tool " + call.Name}
	}
}

func (s *Service) run(ctx context.Context, kind tools.Kind, capture bool) (*automation.Extraction, *tools.Failure) {
	recipe, ok := s.recipes[kind]
	if !ok {
		return nil, &tools.Failure{Reason: tools.ReasonBackendError, Detail: "no recipe for " + string(kind)}
	}

	logger.InfoContext(ctx, "Running weather recipe", "recipe", recipe.Name, "capture", capture)
	ext, err := s.backend.Run(ctx, recipe, recipe.URL, automation.RunOptions{Capture: capture})
	if err != nil {
		return nil, &tools.Failure{Reason: reasonFor(err), Detail: err.Error()}
	}
	return ext, nil
}

// reasonFor maps a backend error onto a failure category.
func reasonFor(err error) tools.FailureReason {
	switch {
	case errors.Is(err, automation.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return tools.ReasonBackendTimeout
	case errors.Is(err, automation.ErrNavigation):
		return tools.ReasonNavigationFailed
	case errors.Is(err, automation.ErrExtraction):
		return tools.ReasonExtractionFailed
	default:
		return tools.ReasonBackendError
	}
}

func (s *Service) current(ext *automation.Extraction) tools.ToolResult {
	payload := make(map[string]any, len(ext.Fields)+2)
	for k, v := range ext.Fields {
		payload[k] = v
	}
	if t, ok := payload["temperature"].(float64); ok {
		payload["temperature"] = fmt.Sprintf("%g degrees Celsius", t)
	}
	if h, ok := payload["humidity"].(float64); ok {
		payload["humidity"] = fmt.Sprintf("%g per cent", h)
	}
	if _, ok := payload["temperature"]; !ok {
		return tools.Failure{Reason: tools.ReasonExtractionFailed, Detail: "no temperature on " + ext.URL}
	}
	payload["location"] = Location
	payload["source_url"] = ext.URL
	return tools.Success{Payload: payload, Screenshot: ext.Snapshot}
}

func (s *Service) forecast(ext *automation.Extraction, args map[string]any) tools.ToolResult {
	days := forecastDays(ext.Fields["days"], s.now().In(tools.HongKong))
	if len(days) == 0 {
		return tools.Failure{Reason: tools.ReasonExtractionFailed, Detail: "no forecast days on " + ext.URL}
	}

	if date, ok := args[tools.ArgDate].(string); ok && date != "" {
		for _, day := range days {
			if day["date"] == date {
				return tools.Success{
					Payload:    map[string]any{"date": date, "forecast": day, "source_url": ext.URL},
					Screenshot: ext.Snapshot,
				}
			}
		}
		first, last := days[0]["date"], days[len(days)-1]["date"]
		return tools.Failure{
			Reason: tools.ReasonNotAvailable,
			Detail: fmt.Sprintf("%s is outside the published forecast (%v to %v)", date, first, last),
		}
	}

	n := tools.MaxForecastDays
	if d, ok := args[tools.ArgDays].(int); ok && d > 0 {
		n = d
	}
	if n > len(days) {
		n = len(days)
	}

	list := make([]any, n)
	for i := range list {
		list[i] = days[i]
	}
	payload := map[string]any{"days": list, "source_url": ext.URL}
	if gs, ok := ext.Fields["general_situation"]; ok {
		payload["general_situation"] = gs
	}
	return tools.Success{Payload: payload, Screenshot: ext.Snapshot}
}

func (s *Service) warnings(ext *automation.Extraction) tools.ToolResult {
	raw, ok := ext.Fields["warnings"].([]any)
	if !ok && ext.Fields["warnings"] != nil {
		return tools.Failure{Reason: tools.ReasonExtractionFailed, Detail: "warnings field is not a list"}
	}

	warnings := make([]any, 0, len(raw))
	for _, w := range raw {
		if str, ok := w.(string); ok && strings.TrimSpace(str) != "" {
			warnings = append(warnings, strings.TrimSpace(str))
		}
	}
	return tools.Success{
		Payload:    map[string]any{"warnings": warnings, "count": len(warnings), "source_url": ext.URL},
		Screenshot: ext.Snapshot,
	}
}

// forecastDays normalizes extracted days: every day gets an ISO date, days whose
// date cannot be resolved are dropped and the rest are sorted by date.
func forecastDays(raw any, now time.Time) []map[string]any {
	list, _ := raw.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		day, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label, _ := day["date"].(string)
		date, ok := resolveDate(label, now)
		if !ok {
			continue
		}
		normalized := make(map[string]any, len(day))
		for k, v := range day {
			normalized[k] = v
		}
		normalized["date"] = date
		out = append(out, normalized)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i]["date"].(string) < out[j]["date"].(string)
	})
	return out
}

var labelLayouts = []string{"2 Jan 2006", "2 January 2006"}

// resolveDate turns "2025-05-01", "20250501" or "1 May" into YYYY-MM-DD. A label
// without a year is placed in the year that puts it nearest to now.
func resolveDate(label string, now time.Time) (string, bool) {
	label = strings.TrimSpace(label)
	if t, err := time.Parse(tools.DateLayout, label); err == nil {
		return t.Format(tools.DateLayout), true
	}
	if t, err := time.Parse("20060102", label); err == nil {
		return t.Format(tools.DateLayout), true
	}
	for _, layout := range labelLayouts {
		t, err := time.Parse(layout, fmt.Sprintf("%s %d", label, now.Year()))
		if err != nil {
			continue
		}
		switch {
		case t.Month() < now.Month() && now.Month()-t.Month() > 6:
			t = t.AddDate(1, 0, 0)
		case t.Month() > now.Month() && t.Month()-now.Month() > 6:
			t = t.AddDate(-1, 0, 0)
		}
		return t.Format(tools.DateLayout), true
	}
	return "", false
}

// Register installs the weather tools on srv.
func (s *Service) Register(srv *mcp.Server) {
	for _, tool := range tools.ToolsForMCP(s.registry.List()) {
		name := tool.Name
		srv.AddTool(tool, func(ctx context.Context, arguments json.RawMessage) (*mcp.ToolCallResponse, error) {
			var args map[string]any
			if len(arguments) > 0 {
				if err := json.Unmarshal(arguments, &args); err != nil {
					return nil, &mcp.JSONRPCError{Code: mcp.CodeInvalidParams, Message: "arguments must be an object"}
				}
			}
			return Respond(s.Handle(ctx, tools.ToolCall{Name: name, Arguments: args}))
		})
	}
}

// Respond wraps a result in its MCP response envelope.
func Respond(result tools.ToolResult) (*mcp.ToolCallResponse, error) {
	data, err := tools.EncodeResult(result)
	if err != nil {
		return nil, err
	}
	_, failed := result.(tools.Failure)
	return &mcp.ToolCallResponse{
		Content: []mcp.Content{mcp.TextContent(string(data))},
		IsError: failed,
	}, nil
}
