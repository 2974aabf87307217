package synth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/tools"
)

// preferredKeys lead a summary in this order; other keys follow sorted.
var preferredKeys = []string{
	"temperature", "humidity", "conditions", "observed_at", "location",
	"warnings", "count", "date", "forecast", "general_situation", "days",
}

// preferredItemKeys order the fields of nested objects such as forecast days.
var preferredItemKeys = []string{
	"date", "weekday", "weather", "wind", "temperature", "min_temp", "max_temp",
	"humidity", "min_rh", "max_rh",
}

// Summary renders a payload as one "Label: value" line per key. Lists are
// rendered one item per line; an empty list reads "none".
func Summary(s tools.Success) string {
	data, err := json.Marshal(s.Payload)
	if err != nil {
		return "The weather information could not be displayed."
	}
	root := gjson.ParseBytes(data)

	var b strings.Builder
	for _, key := range orderedKeys(mapKeys(s.Payload), preferredKeys) {
		v := root.Get(gjson.Escape(key))
		label := labelFor(key)
		if v.IsArray() {
			items := v.Array()
			if len(items) == 0 {
				fmt.Fprintf(&b, "%s: none\n", label)
				continue
			}
			fmt.Fprintf(&b, "%s:\n", label)
			for _, item := range items {
				fmt.Fprintf(&b, "  - %s\n", renderValue(item))
			}
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", label, renderValue(v))
	}
	if s.Screenshot != "" {
		fmt.Fprintf(&b, "A snapshot of the source page was saved to: %s\n", s.Screenshot)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderValue(v gjson.Result) string {
	switch {
	case v.IsObject():
		fields := v.Map()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		parts := make([]string, 0, len(keys))
		for _, k := range orderedKeys(keys, preferredItemKeys) {
			parts = append(parts, labelFor(k)+": "+renderValue(fields[k]))
		}
		return strings.Join(parts, "; ")
	case v.IsArray():
		parts := make([]string, 0)
		for _, item := range v.Array() {
			parts = append(parts, renderValue(item))
		}
		return strings.Join(parts, ", ")
	case v.Type == gjson.True:
		return "yes"
	case v.Type == gjson.False:
		return "no"
	case v.Type == gjson.Number:
		return v.Raw
	default:
		return v.String()
	}
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func orderedKeys(keys, preferred []string) []string {
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}
	out := make([]string, 0, len(keys))
	for _, k := range preferred {
		if present[k] {
			out = append(out, k)
			delete(present, k)
		}
	}
	rest := make([]string, 0, len(present))
	for k := range present {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func labelFor(key string) string {
	label := strings.ReplaceAll(key, "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
