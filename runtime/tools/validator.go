package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator normalizes and validates tool arguments against a ToolSpec's schema.
// Compiled schemas are cached; it is safe for concurrent use.
type SchemaValidator struct {
	mu    sync.Mutex
	cache map[string]*gojsonschema.Schema
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		cache: make(map[string]*gojsonschema.Schema),
	}
}

// Normalize drops unknown arguments, coerces simple type mismatches, fills defaults,
// and validates the result. The input map is not modified.
func (sv *SchemaValidator) Normalize(spec ToolSpec, args map[string]any) (map[string]any, []Coercion, error) {
	out := make(map[string]any, len(spec.Params))
	var coercions []Coercion

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := args[name]
		param, known := spec.Param(name)
		if !known {
			coercions = append(coercions, Coercion{Path: name, From: value, To: nil})
			continue
		}
		if value == nil {
			continue
		}
		coerced, changed := coerceParam(param.Type, value)
		if changed {
			coercions = append(coercions, Coercion{Path: name, From: value, To: coerced})
		}
		out[name] = coerced
	}

	for _, p := range spec.Params {
		if _, set := out[p.Name]; !set && p.Default != nil {
			out[p.Name] = p.Default
		}
	}

	if err := sv.ValidateArgs(spec, out); err != nil {
		return nil, coercions, err
	}
	return out, coercions, nil
}

// ValidateArgs validates arguments against the spec's input schema.
func (sv *SchemaValidator) ValidateArgs(spec ToolSpec, args map[string]any) error {
	schema, err := sv.getSchema(string(spec.InputSchema()))
	if err != nil {
		return fmt.Errorf("invalid input schema for tool %s: %w", spec.Name, err)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return &ValidationError{Type: "args_invalid", Tool: spec.Name, Detail: err.Error()}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validation error for tool %s: %w", spec.Name, err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		path := ""
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
			if path == "" {
				path = desc.Field()
			}
		}
		return &ValidationError{
			Type:   "args_invalid",
			Tool:   spec.Name,
			Detail: fmt.Sprintf("argument validation failed: %s", strings.Join(errs, "; ")),
			Path:   path,
		}
	}

	return nil
}

func (sv *SchemaValidator) getSchema(schemaJSON string) (*gojsonschema.Schema, error) {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	if schema, exists := sv.cache[schemaJSON]; exists {
		return schema, nil
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, err
	}

	sv.cache[schemaJSON] = schema
	return schema, nil
}

// coerceParam converts value toward t when the conversion is lossless. It reports
// whether the value changed; values it cannot convert are returned unchanged for the
// schema check to reject.
func coerceParam(t ParamType, value any) (any, bool) {
	switch t {
	case TypeInteger:
		return coerceInteger(value)
	case TypeNumber:
		return coerceNumber(value)
	case TypeBoolean:
		return coerceBoolean(value)
	case TypeString:
		switch v := value.(type) {
		case string:
			return v, false
		case float64, int, int64, bool:
			return fmt.Sprint(v), true
		}
	}
	return value, false
}

func coerceInteger(value any) (any, bool) {
	switch v := value.(type) {
	case int:
		return v, false
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < math.MaxInt32 {
			return int(v), true
		}
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
			return int(f), true
		}
	}
	return value, false
}

func coerceNumber(value any) (any, bool) {
	switch v := value.(type) {
	case float64:
		return v, false
	case int:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return value, false
}

func coerceBoolean(value any) (any, bool) {
	switch v := value.(type) {
	case bool:
		return v, false
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	case float64:
		if v == 1 {
			return true, true
		}
		if v == 0 {
			return false, true
		}
	}
	return value, false
}
