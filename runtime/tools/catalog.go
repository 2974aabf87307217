package tools

import "time"

// Kind is one member of the closed set of supported tools. Dispatch on a Kind is a
// switch over the constants below; ParseKind is the only way in from a string.
type Kind string

// The supported tools.
const (
	KindCurrentWeather Kind = "get_hk_current_weather"
	KindForecast       Kind = "get_hk_forecast"
	KindWarnings       Kind = "get_hk_weather_warnings"
)

// Argument names shared by the router, the weather service and tests.
const (
	ArgDays           = "days"
	ArgDate           = "date"
	ArgTakeScreenshot = "take_screenshot"
)

// DateLayout is the format of the forecast date argument.
const DateLayout = "2006-01-02"

// HongKong is the zone dates are interpreted in. Hong Kong has no daylight saving.
var HongKong = time.FixedZone("HKT", 8*60*60)

// MaxForecastDays is the length of the published forecast.
const MaxForecastDays = 9

var kinds = []Kind{KindCurrentWeather, KindForecast, KindWarnings}

// Kinds returns the supported tools in catalog order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind maps a tool name onto the closed set.
func ParseKind(name string) (Kind, bool) {
	for _, k := range kinds {
		if string(k) == name {
			return k, true
		}
	}
	return "", false
}

func floatPtr(f float64) *float64 { return &f }

func screenshotParam() ParamSpec {
	return ParamSpec{
		Name:        ArgTakeScreenshot,
		Type:        TypeBoolean,
		Description: "Save a snapshot of the source page and return its path",
		Default:     true,
	}
}

// Catalog returns the specs for every supported tool.
func Catalog() []ToolSpec {
	return []ToolSpec{
		{
			Name:        string(KindCurrentWeather),
			Description: "Get the current weather observations for Hong Kong from the Hong Kong Observatory",
			Params:      []ParamSpec{screenshotParam()},
		},
		{
			Name: string(KindForecast),
			Description: "Get the Hong Kong Observatory 9-day weather forecast. " +
				"Pass date (YYYY-MM-DD) for a single day or days to limit the outlook",
			Params: []ParamSpec{
				{
					Name:        ArgDays,
					Type:        TypeInteger,
					Description: "Number of forecast days to return (1-9)",
					Default:     MaxForecastDays,
					Minimum:     floatPtr(1),
					Maximum:     floatPtr(MaxForecastDays),
				},
				{
					Name:        ArgDate,
					Type:        TypeString,
					Description: "Return only the forecast for this date, formatted YYYY-MM-DD",
					Pattern:     `^\d{4}-\d{2}-\d{2}$`,
				},
				screenshotParam(),
			},
		},
		{
			Name:        string(KindWarnings),
			Description: "Get the weather warnings and signals currently in force in Hong Kong",
			Params:      []ParamSpec{screenshotParam()},
		},
	}
}
