package weather

import (
	"time"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/automation"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

// Hong Kong Observatory pages the page recipes read.
const (
	CurrentWeatherURL = "https://www.hko.gov.hk/en/wxinfo/currwx/current.htm"
	ForecastURL       = "https://www.hko.gov.hk/en/wxinfo/currwx/fnd.htm"
	WarningsURL       = "https://www.hko.gov.hk/en/wxinfo/currwx/warning.htm"
)

// Hong Kong Observatory open data endpoints the API recipes read.
const (
	openDataBase       = "https://data.weather.gov.hk/weatherAPI/opendata/weather.php?lang=en&dataType="
	CurrentWeatherAPI  = openDataBase + "rhrread"
	ForecastAPI        = openDataBase + "fnd"
	WarningsSummaryAPI = openDataBase + "warnsum"
)

// Source selects which recipe set a Service uses.
type Source string

// Recipe sources.
const (
	SourcePage Source = "page"
	SourceAPI  Source = "api"
)

const recipeTimeout = 30 * time.Second

const currentScript = `
function extract(page) {
  var text = page.text;
  var out = {};
  var m;
  if ((m = text.match(/Air temperature\s*:?\s*(-?\d+(?:\.\d+)?)\s*degrees? Celsius/i))) {
    out.temperature = m[1] + " degrees Celsius";
  }
  if ((m = text.match(/Relative Humidity\s*:?\s*(\d+)\s*per ?cent/i))) {
    out.humidity = m[1] + " per cent";
  }
  if ((m = text.match(/(?:Bulletin updated|At)\s+(?:at\s+)?(\d{1,2}[:.]\d{2}\s*(?:HKT|a\.m\.|p\.m\.)?[^\n]*)/i))) {
    out.observed_at = m[1].trim();
  }
  var lines = text.split("\n");
  for (var i = 0; i < lines.length; i++) {
    if (/^(Weather|Weather conditions|Current weather)\s*:/i.test(lines[i])) {
      out.conditions = lines[i].replace(/^[^:]*:\s*/, "");
      break;
    }
  }
  if (!out.conditions && page.article) {
    var first = page.article.split(/\.\s/)[0];
    if (first && first.length < 200) { out.conditions = first.trim(); }
  }
  return out;
}`

const forecastScript = `
function extract(page) {
  var lines = page.text.split("\n");
  var dayHead = /^(\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*)\s*\(?\s*(Mon|Tue|Wed|Thu|Fri|Sat|Sun)[a-z]*\)?/i;
  var out = { days: [] };
  var day = null;
  for (var i = 0; i < lines.length; i++) {
    var line = lines[i].trim();
    var m = line.match(/^General Situation\s*:?\s*(.*)$/i);
    if (m) {
      out.general_situation = m[1] || (lines[i + 1] || "").trim();
      continue;
    }
    m = line.match(dayHead);
    if (m) {
      day = { date: m[1], weekday: m[2] };
      out.days.push(day);
      continue;
    }
    if (!day) { continue; }
    if ((m = line.match(/^Wind\s*:?\s*(.+)$/i))) { day.wind = m[1]; continue; }
    if ((m = line.match(/^Weather\s*:?\s*(.+)$/i))) { day.weather = m[1]; continue; }
    if ((m = line.match(/^Temp(?:erature)?\s*(?:range)?\s*:?\s*(.+)$/i))) { day.temperature = m[1]; continue; }
    if ((m = line.match(/^(?:R\.?H\.?|Relative Humidity)\s*(?:range)?\s*:?\s*(.+)$/i))) { day.humidity = m[1]; continue; }
  }
  if (out.days.length === 0) { return {}; }
  return out;
}`

const warningsScript = `
function extract(page) {
  var text = page.text;
  if (/no (?:weather )?warnings? (?:is |are )?in force/i.test(text)) {
    return { warnings: [] };
  }
  var lines = text.split("\n");
  var warnings = [];
  var seen = {};
  for (var i = 0; i < lines.length; i++) {
    var line = lines[i].trim();
    if (line.length > 160) { continue; }
    if (/(Signal|Warning|Alert)\b/.test(line) && !/^(Weather Warnings?|Warnings? in force)\s*$/i.test(line) && !seen[line]) {
      seen[line] = true;
      warnings.push(line);
    }
  }
  if (warnings.length === 0 && !/warning/i.test(page.title)) { return {}; }
  return { warnings: warnings };
}`

// PageRecipes returns the recipes that read the Observatory's HTML pages.
func PageRecipes() map[tools.Kind]automation.Recipe {
	return map[tools.Kind]automation.Recipe{
		tools.KindCurrentWeather: {
			Name: "hk_current_weather", URL: CurrentWeatherURL, Mode: automation.ModePage,
			Script: currentScript, Timeout: recipeTimeout,
		},
		tools.KindForecast: {
			Name: "hk_forecast", URL: ForecastURL, Mode: automation.ModePage,
			Script: forecastScript, Timeout: recipeTimeout,
		},
		tools.KindWarnings: {
			Name: "hk_warnings", URL: WarningsURL, Mode: automation.ModePage,
			Script: warningsScript, Timeout: recipeTimeout,
		},
	}
}

// APIRecipes returns the recipes that read the Observatory's open data API.
func APIRecipes() map[tools.Kind]automation.Recipe {
	return map[tools.Kind]automation.Recipe{
		tools.KindCurrentWeather: {
			Name: "hk_current_weather", URL: CurrentWeatherAPI, Mode: automation.ModeJSON, Timeout: recipeTimeout,
			Fields: map[string]string{
				"temperature":     "temperature.data[?place=='Hong Kong Observatory'].value | [0]",
				"humidity":        "humidity.data[0].value",
				"observed_at":     "updateTime",
				"warning_message": "warningMessage",
				"rainfall":        "rainfall.data[?max > `0`].{place: place, max_mm: max}",
			},
		},
		tools.KindForecast: {
			Name: "hk_forecast", URL: ForecastAPI, Mode: automation.ModeJSON, Timeout: recipeTimeout,
			Fields: map[string]string{
				"general_situation": "generalSituation",
				"days": "weatherForecast[*].{date: forecastDate, weekday: week, weather: forecastWeather, " +
					"wind: forecastWind, min_temp: forecastMintemp.value, max_temp: forecastMaxtemp.value, " +
					"min_rh: forecastMinrh.value, max_rh: forecastMaxrh.value}",
			},
		},
		tools.KindWarnings: {
			Name: "hk_warnings", URL: WarningsSummaryAPI, Mode: automation.ModeJSON, Timeout: recipeTimeout,
			Fields: map[string]string{
				"warnings": "values(@)[?actionCode != 'CANCEL'].name",
			},
		},
	}
}

// Recipes returns the recipe set for source.
func Recipes(source Source) map[tools.Kind]automation.Recipe {
	if source == SourceAPI {
		return APIRecipes()
	}
	return PageRecipes()
}
