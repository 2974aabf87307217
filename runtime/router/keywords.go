package router

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

const monthNames = `(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?`

// datePattern finds one form of explicit date in a query and parses it.
type datePattern struct {
	re    *regexp.Regexp
	parse func(token string) (time.Time, error)
}

// dateTokenPatterns cover year-first numeric dates, day-first numeric dates
// (the Hong Kong convention) and dates with a month name.
var dateTokenPatterns = []datePattern{
	{regexp.MustCompile(`\b\d{4}[-/.]\d{1,2}[-/.]\d{1,2}\b`), parseYearFirst},
	{regexp.MustCompile(`\b\d{1,2}[/.]\d{1,2}[/.]\d{4}\b`), parseDayFirst},
	{regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+` + monthNames + `,?\s+\d{4}\b`), parseMonthName},
	{regexp.MustCompile(`(?i)\b` + monthNames + `\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`), parseMonthName},
}

var (
	ordinalSuffix = regexp.MustCompile(`(?i)(\d)(?:st|nd|rd|th)\b`)
	septAbbrev    = regexp.MustCompile(`(?i)\bsept\b`)
	dateSeparator = strings.NewReplacer("/", "-", ".", "-")
)

var monthNameLayouts = []string{"2 Jan 2006", "2 January 2006", "Jan 2 2006", "January 2 2006"}

func parseYearFirst(token string) (time.Time, error) {
	return dateparse.ParseIn(dateSeparator.Replace(token), tools.HongKong)
}

func parseDayFirst(token string) (time.Time, error) {
	return time.ParseInLocation("2-1-2006", dateSeparator.Replace(token), tools.HongKong)
}

func parseMonthName(token string) (time.Time, error) {
	token = ordinalSuffix.ReplaceAllString(token, "$1")
	token = strings.NewReplacer(",", " ", ".", " ").Replace(token)
	token = septAbbrev.ReplaceAllString(strings.Join(strings.Fields(token), " "), "Sep")
	var err error
	for _, layout := range monthNameLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, token, tools.HongKong); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

var (
	warningWords  = []string{"warning", "warnings", "alert", "signal", "typhoon", "rainstorm"}
	forecastWords = []string{"forecast", "week", "days", "next", "outlook"}
	currentWords  = []string{"now", "current", "currently", "today"}
)

// SelectByKeywords routes query by fixed-priority rules: an explicit date, then
// "tomorrow", then warning words, then forecast words, then current-weather
// words, then current weather by default. Rules whose tool is missing from
// catalog are skipped. Dates resolve in Hong Kong time relative to now.
func SelectByKeywords(query string, catalog *tools.Registry, now time.Time) Decision {
	has := func(k tools.Kind) bool {
		_, err := catalog.Get(string(k))
		return err == nil
	}
	decide := func(k tools.Kind, args map[string]any, reason string) Decision {
		return Decision{Tool: string(k), Arguments: args, Source: SourceKeyword, Reason: reason}
	}
	words := wordSet(query)

	if has(tools.KindForecast) {
		if token, date, ok := findDate(query); ok {
			if date == "" {
				return decide(tools.KindForecast, map[string]any{}, fmt.Sprintf("unreadable date token %q", token))
			}
			return decide(tools.KindForecast, map[string]any{tools.ArgDate: date}, fmt.Sprintf("date token %q", token))
		}
		if words["tomorrow"] {
			date := now.In(tools.HongKong).AddDate(0, 0, 1).Format(tools.DateLayout)
			return decide(tools.KindForecast, map[string]any{tools.ArgDate: date}, `keyword "tomorrow"`)
		}
	}
	if w, ok := firstOf(words, warningWords); ok && has(tools.KindWarnings) {
		return decide(tools.KindWarnings, map[string]any{}, fmt.Sprintf("keyword %q", w))
	}
	if w, ok := firstOf(words, forecastWords); ok && has(tools.KindForecast) {
		return decide(tools.KindForecast, map[string]any{}, fmt.Sprintf("keyword %q", w))
	}
	if w, ok := firstOf(words, currentWords); ok && has(tools.KindCurrentWeather) {
		return decide(tools.KindCurrentWeather, map[string]any{}, fmt.Sprintf("keyword %q", w))
	}

	if has(tools.KindCurrentWeather) {
		return decide(tools.KindCurrentWeather, map[string]any{}, "default")
	}
	if specs := catalog.List(); len(specs) > 0 {
		return Decision{Tool: specs[0].Name, Arguments: map[string]any{}, Source: SourceKeyword, Reason: "default"}
	}
	return decide(tools.KindCurrentWeather, map[string]any{}, "default")
}

// findDate returns the earliest date token in query. date is YYYY-MM-DD, or
// empty when the token looks like a date but is not a valid one.
func findDate(query string) (token, date string, ok bool) {
	best := -1
	for _, p := range dateTokenPatterns {
		for _, loc := range p.re.FindAllStringIndex(query, -1) {
			if best >= 0 && loc[0] >= best {
				continue
			}
			best, token, date = loc[0], query[loc[0]:loc[1]], ""
			if t, err := p.parse(token); err == nil {
				date = t.Format(tools.DateLayout)
			}
		}
	}
	return token, date, best >= 0
}

func wordSet(query string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func firstOf(words map[string]bool, candidates []string) (string, bool) {
	for _, c := range candidates {
		if words[c] {
			return c, true
		}
	}
	return "", false
}
