// Package tools defines the weather assistant's tool catalog, argument validation,
// and the two invokers that sit in front of the MCP boundary: MCPBridge, which
// crosses it, and CachedExecutor, which avoids crossing it when it can.
//
// The catalog is a closed set (see Kind). A ToolSpec is immutable once registered;
// its JSON Schema is derived from its ParamSpecs and is what both sides of the
// protocol validate against.
package tools

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ParamType is the JSON Schema type of a tool parameter.
type ParamType string

// Supported parameter types.
const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`
	Pattern     string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty" yaml:"maximum,omitempty"`
}

// ToolSpec describes a tool offered to the model and served over MCP.
type ToolSpec struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Params      []ParamSpec `json:"params,omitempty" yaml:"params,omitempty"`
}

// Param returns the named parameter.
func (s ToolSpec) Param(name string) (ParamSpec, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

type schemaProperty struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Default     any       `json:"default,omitempty"`
	Pattern     string    `json:"pattern,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
}

type objectSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]schemaProperty `json:"properties"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties *bool                     `json:"additionalProperties,omitempty"`
}

// InputSchema renders the parameters as a JSON Schema object.
func (s ToolSpec) InputSchema() json.RawMessage {
	closed := false
	schema := objectSchema{
		Type:                 "object",
		Properties:           make(map[string]schemaProperty, len(s.Params)),
		AdditionalProperties: &closed,
	}
	for _, p := range s.Params {
		schema.Properties[p.Name] = schemaProperty{
			Type:        p.Type,
			Description: p.Description,
			Default:     p.Default,
			Pattern:     p.Pattern,
			Minimum:     p.Minimum,
			Maximum:     p.Maximum,
		}
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	// Marshalling a struct of plain values cannot fail.
	out, _ := json.Marshal(schema)
	return out
}

// SpecFromSchema builds a ToolSpec from a discovered JSON Schema. Parameters are
// ordered by name since JSON objects carry no order.
func SpecFromSchema(name, description string, schema json.RawMessage) (ToolSpec, error) {
	spec := ToolSpec{Name: name, Description: description}
	if len(schema) == 0 {
		return spec, nil
	}

	var parsed objectSchema
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return ToolSpec{}, fmt.Errorf("tool %s: invalid input schema: %w", name, err)
	}
	if parsed.Type != "" && parsed.Type != "object" {
		return ToolSpec{}, fmt.Errorf("tool %s: input schema type %q is not an object", name, parsed.Type)
	}

	required := make(map[string]bool, len(parsed.Required))
	for _, r := range parsed.Required {
		required[r] = true
	}

	names := make([]string, 0, len(parsed.Properties))
	for n := range parsed.Properties {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		prop := parsed.Properties[n]
		spec.Params = append(spec.Params, ParamSpec{
			Name:        n,
			Type:        prop.Type,
			Description: prop.Description,
			Required:    required[n],
			Default:     normalizeDefault(prop.Type, prop.Default),
			Pattern:     prop.Pattern,
			Minimum:     prop.Minimum,
			Maximum:     prop.Maximum,
		})
	}
	return spec, nil
}

// normalizeDefault turns JSON-decoded integer defaults (float64) back into ints.
func normalizeDefault(t ParamType, v any) any {
	if f, ok := v.(float64); ok && t == TypeInteger {
		return int(f)
	}
	return v
}

// ToolCall is a request to run a named tool with arguments.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// CanonicalArgs returns the arguments as JSON with sorted keys. A nil map encodes as {}.
func (c ToolCall) CanonicalArgs() (json.RawMessage, error) {
	if c.Arguments == nil {
		return json.RawMessage(`{}`), nil
	}
	// encoding/json sorts map keys, at every nesting level.
	out, err := json.Marshal(c.Arguments)
	if err != nil {
		return nil, fmt.Errorf("tool %s: cannot encode arguments: %w", c.Name, err)
	}
	return out, nil
}

// ValidationError represents a tool argument validation failure.
type ValidationError struct {
	Type   string `json:"type"` // "args_invalid", "unknown_tool"
	Tool   string `json:"tool"`
	Detail string `json:"detail"`
	Path   string `json:"path,omitempty"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s validation error (%s): %s", e.Tool, e.Type, e.Detail)
}

// Coercion records an argument that was changed to satisfy the schema.
type Coercion struct {
	Path string `json:"path"`
	From any    `json:"from"`
	To   any    `json:"to"`
}
