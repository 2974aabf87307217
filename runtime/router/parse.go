package router

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	nameKeys = []string{"tool", "name", "tool_name"}
	argKeys  = []string{"arguments", "args", "parameters", "input"}
)

// ParseSelection extracts a tool name and arguments from free-form model output.
// It takes the first JSON object in text that names a tool, so code fences and
// surrounding prose are tolerated.
func ParseSelection(text string) (string, json.RawMessage, error) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		candidate := text[i:]
		if name, args, ok := selectionFrom(candidate); ok {
			return name, args, nil
		}
		next := strings.IndexByte(candidate[1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return "", nil, fmt.Errorf("no tool selection in model output %q", truncate(text, 120))
}

func selectionFrom(candidate string) (string, json.RawMessage, bool) {
	var name string
	for _, k := range nameKeys {
		if v := gjson.Get(candidate, k); v.Type == gjson.String && v.String() != "" {
			name = v.String()
			break
		}
	}
	if name == "" {
		return "", nil, false
	}
	for _, k := range argKeys {
		if v := gjson.Get(candidate, k); v.Exists() {
			return name, json.RawMessage(v.Raw), true
		}
	}
	return name, nil, true
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
