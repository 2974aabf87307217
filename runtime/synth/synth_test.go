package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/providers/mock"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

func currentWeather() tools.Success {
	return tools.Success{
		Payload: map[string]any{
			"source_url":  "https://www.hko.gov.hk/en/wxinfo/currwx/current.htm",
			"location":    "Hong Kong",
			"conditions":  "Sunny periods",
			"humidity":    "80 per cent",
			"temperature": "28 degrees Celsius",
			"observed_at": "10 a.m.",
		},
		Screenshot: "/tmp/hk_current_weather_1a2b3c4d.html",
	}
}

func TestSummary_OrdersKeys(t *testing.T) {
	got := Summary(currentWeather())
	assert.Equal(t, "Temperature: 28 degrees Celsius\n"+
		"Humidity: 80 per cent\n"+
		"Conditions: Sunny periods\n"+
		"Observed at: 10 a.m.\n"+
		"Location: Hong Kong\n"+
		"Source url: https://www.hko.gov.hk/en/wxinfo/currwx/current.htm\n"+
		"A snapshot of the source page was saved to: /tmp/hk_current_weather_1a2b3c4d.html", got)
}

func TestSummary_Lists(t *testing.T) {
	got := Summary(tools.Success{Payload: map[string]any{
		"general_situation": "A ridge of high pressure",
		"days": []any{
			map[string]any{"date": "2025-05-01", "weekday": "Thursday", "weather": "Sunny", "max_temp": 31, "min_temp": 26},
			map[string]any{"date": "2025-05-02", "weekday": "Friday", "weather": "Showers"},
		},
	}})
	assert.Equal(t, "General situation: A ridge of high pressure\n"+
		"Days:\n"+
		"  - Date: 2025-05-01; Weekday: Thursday; Weather: Sunny; Min temp: 26; Max temp: 31\n"+
		"  - Date: 2025-05-02; Weekday: Friday; Weather: Showers", got)

	got = Summary(tools.Success{Payload: map[string]any{"warnings": []any{}, "count": 0}})
	assert.Equal(t, "Warnings: none\nCount: 0", got)

	got = Summary(tools.Success{Payload: map[string]any{"warnings": []string{"Strong Monsoon Signal"}, "count": 1, "urgent": true}})
	assert.Equal(t, "Warnings:\n  - Strong Monsoon Signal\nCount: 1\nUrgent: yes", got)
}

func TestApology(t *testing.T) {
	for _, reason := range []tools.FailureReason{
		tools.ReasonBackendTimeout, tools.ReasonNavigationFailed, tools.ReasonExtractionFailed,
		tools.ReasonNotAvailable, tools.ReasonInvalidArguments, tools.ReasonBackendError,
	} {
		msg := Apology(tools.Failure{Reason: reason, Detail: "stack trace: goja panic at line 3"})
		assert.Contains(t, msg, reason.Label())
		assert.NotContains(t, msg, "goja")
	}
	assert.Contains(t, Apology(tools.Failure{Reason: tools.ReasonBackendTimeout}), "timeout")
}

func TestSynthesize_WithModel(t *testing.T) {
	model := mock.NewProvider("mock", "x", mock.Reply{Content: "  It's 28°C and sunny. Wear sunscreen!  "})
	s := New(model)

	got := s.Synthesize(context.Background(), "how hot is it?", currentWeather())
	assert.Equal(t, "It's 28°C and sunny. Wear sunscreen!", got)

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, SystemPrompt, reqs[0].System)
	assert.InDelta(t, 0.7, reqs[0].Temperature, 0.001)
	assert.Contains(t, reqs[0].Messages[0].Content, "how hot is it?")
	assert.Contains(t, reqs[0].Messages[0].Content, `"temperature": "28 degrees Celsius"`)
}

func TestSynthesize_FallsBackToSummary(t *testing.T) {
	tests := []struct {
		name  string
		reply mock.Reply
	}{
		{"model error", mock.Reply{Err: errors.New("throttled")}},
		{"empty reply", mock.Reply{Content: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(mock.NewProvider("m", "x", tt.reply)).Synthesize(context.Background(), "q", currentWeather())
			assert.Equal(t, Summary(currentWeather()), got)
		})
	}

	got := New(nil).Synthesize(context.Background(), "q", currentWeather())
	assert.Contains(t, got, "Temperature: 28 degrees Celsius")
	assert.Contains(t, got, "Conditions: Sunny periods")
}

func TestSynthesize_FailureNeverCallsModel(t *testing.T) {
	model := mock.NewProvider("m", "x")
	got := New(model).Synthesize(context.Background(), "q",
		tools.Failure{Reason: tools.ReasonBackendTimeout, Detail: "context deadline exceeded"})
	assert.Contains(t, got, "timeout")
	assert.NotContains(t, got, "deadline")
	assert.Empty(t, model.Requests())
}
