package tools

import (
	"fmt"

	pkgerrors "github.com/hanyun2019/mcp-on-aws-demo/pkg/errors"
)

// Registry is an ordered, immutable set of tool specs with unique names.
type Registry struct {
	specs     []ToolSpec
	index     map[string]int
	validator *SchemaValidator
}

// NewRegistry builds a registry from specs, rejecting empty and duplicate names.
func NewRegistry(specs ...ToolSpec) (*Registry, error) {
	r := &Registry{
		specs:     make([]ToolSpec, 0, len(specs)),
		index:     make(map[string]int, len(specs)),
		validator: NewSchemaValidator(),
	}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, ErrToolNameRequired
		}
		if _, dup := r.index[spec.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, spec.Name)
		}
		r.index[spec.Name] = len(r.specs)
		r.specs = append(r.specs, spec)
	}
	return r, nil
}

// DefaultRegistry returns a registry over Catalog().
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		panic(err)
	}
	return r
}

// List returns the specs in registration order.
func (r *Registry) List() []ToolSpec {
	out := make([]ToolSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.specs)
}

// Get retrieves a spec by name.
func (r *Registry) Get(name string) (ToolSpec, error) {
	i, ok := r.index[name]
	if !ok {
		return ToolSpec{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return r.specs[i], nil
}

// Normalize validates call against its spec, returning a call whose arguments are
// coerced and defaulted. Failures are validation-kind errors wrapping *ValidationError.
func (r *Registry) Normalize(call ToolCall) (ToolCall, []Coercion, error) {
	spec, err := r.Get(call.Name)
	if err != nil {
		return ToolCall{}, nil, pkgerrors.Validation("tools", "Normalize", &ValidationError{
			Type:   "unknown_tool",
			Tool:   call.Name,
			Detail: err.Error(),
		})
	}

	args, coercions, err := r.validator.Normalize(spec, call.Arguments)
	if err != nil {
		return ToolCall{}, coercions, pkgerrors.Validation("tools", "Normalize", err)
	}
	return ToolCall{Name: call.Name, Arguments: args}, coercions, nil
}
