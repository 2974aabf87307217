// Package synth turns a tool result into the answer shown to the user. A model
// phrases successful results when one is available; a deterministic summary
// covers the rest, and failures always get an apology that names the failure
// category without exposing backend detail.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

// DefaultTimeout bounds one synthesis model call.
const DefaultTimeout = 30 * time.Second

const answerTemperature = 0.7

// SystemPrompt instructs the model how to phrase answers.
const SystemPrompt = `You are a helpful weather assistant for Hong Kong. You can provide current weather information,
forecasts, and weather warnings by using the available tools. When responding:

1. Be concise and informative
2. Focus on the weather information requested
3. Interpret the data from the tools to provide insights
4. Suggest appropriate actions based on weather conditions when relevant
5. Only use the data in the tool result; do not invent readings

Available tools:
- get_hk_current_weather: Get current weather conditions in Hong Kong
- get_hk_forecast: Get the 9-day weather forecast for Hong Kong
- get_hk_weather_warnings: Get any active weather warnings for Hong Kong`

// Synthesizer builds answers.
type Synthesizer struct {
	model   providers.Provider
	timeout time.Duration
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithTimeout sets the model call timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a Synthesizer. A nil model always uses the template.
func New(model providers.Provider, opts ...Option) *Synthesizer {
	s := &Synthesizer{model: model, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize answers query from result. It never fails: model errors and empty
// replies fall back to Summary.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, result tools.ToolResult) string {
	switch r := result.(type) {
	case tools.Success:
		if s.model != nil {
			answer, err := s.withModel(ctx, query, r)
			if err == nil {
				return answer
			}
			logger.WarnContext(ctx, "model synthesis failed, using summary", "error", err)
		}
		return Summary(r)
	case tools.Failure:
		return Apology(r)
	default:
		return Apology(tools.Failure{Reason: tools.ReasonBackendError})
	}
}

func (s *Synthesizer) withModel(ctx context.Context, query string, result tools.Success) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := json.MarshalIndent(result.Payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	resp, err := s.model.Chat(ctx, providers.ChatRequest{
		System: SystemPrompt,
		Messages: []providers.Message{{
			Role:    providers.RoleUser,
			Content: fmt.Sprintf("Question: %s\n\nTool result (JSON):\n%s", query, payload),
		}},
		Temperature: answerTemperature,
	})
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", fmt.Errorf("model returned an empty answer")
	}
	return answer, nil
}

var reasonHints = map[tools.FailureReason]string{
	tools.ReasonBackendTimeout:   "The weather site took too long to respond. Please try again in a moment.",
	tools.ReasonNavigationFailed: "The weather site could not be reached. Please try again later.",
	tools.ReasonExtractionFailed: "The weather page was not in the expected format.",
	tools.ReasonNotAvailable:     "The Hong Kong Observatory has not published that information.",
	tools.ReasonInvalidArguments: "Please try rephrasing your question.",
	tools.ReasonBackendError:     "Please try again later.",
}

// Apology explains a failure by its category label. Failure.Detail is never shown.
func Apology(f tools.Failure) string {
	hint, ok := reasonHints[f.Reason]
	if !ok {
		hint = reasonHints[tools.ReasonBackendError]
	}
	return fmt.Sprintf("Sorry, I couldn't get that weather information (%s). %s", f.Reason.Label(), hint)
}
