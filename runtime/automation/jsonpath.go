package automation

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jmespath/go-jmespath"
)

// SearchFields evaluates each JMESPath expression against a JSON document. Fields
// whose expression yields null are left out.
func SearchFields(body []byte, fields map[string]string) (map[string]any, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrExtraction, err)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]any, len(fields))
	for _, name := range names {
		value, err := jmespath.Search(fields[name], data)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: JMESPath error: %v", ErrExtraction, name, err)
		}
		if value != nil {
			out[name] = value
		}
	}
	return out, nil
}
