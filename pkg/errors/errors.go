// Package errors provides the contextual error type shared by the assistant's packages.
//
// ContextualError captures the component, the operation, and the failure Kind. The Kind
// is the error taxonomy of the pipeline: validation errors are recoverable by re-routing,
// backend and model errors degrade the answer, and only transport errors end a session.
//
// Usage:
//
//	err := errors.Transport("bridge", "Invoke", someErr)
//	if errors.IsKind(err, errors.KindTransport) {
//	    // tear the session down
//	}
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error by how the pipeline reacts to it.
type Kind string

const (
	// KindValidation marks arguments that do not satisfy a tool's schema.
	KindValidation Kind = "validation"
	// KindTransport marks a broken or timed-out protocol boundary.
	KindTransport Kind = "transport"
	// KindBackend marks a failure inside the automation backend.
	KindBackend Kind = "backend"
	// KindModel marks an unavailable model or unusable model output.
	KindModel Kind = "model"
)

// ContextualError is a structured error type that provides consistent context
// about where and why an error occurred.
type ContextualError struct {
	// Component identifies the package that produced the error (e.g. "bridge", "router").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// Kind is the taxonomy bucket. Empty means unclassified.
	Kind Kind

	// StatusCode is an optional HTTP or JSON-RPC status code.
	StatusCode int

	// Details holds optional structured metadata about the error.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates an unclassified ContextualError.
func New(component, operation string, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Cause:     cause,
	}
}

// Validation creates a validation-kind error.
func Validation(component, operation string, cause error) *ContextualError {
	return New(component, operation, cause).WithKind(KindValidation)
}

// Transport creates a transport-kind error.
func Transport(component, operation string, cause error) *ContextualError {
	return New(component, operation, cause).WithKind(KindTransport)
}

// Backend creates a backend-kind error.
func Backend(component, operation string, cause error) *ContextualError {
	return New(component, operation, cause).WithKind(KindBackend)
}

// Model creates a model-kind error.
func Model(component, operation string, cause error) *ContextualError {
	return New(component, operation, cause).WithKind(KindModel)
}

// Error returns a human-readable representation of the error.
func (e *ContextualError) Error() string {
	base := fmt.Sprintf("[%s] %s", e.Component, e.Operation)

	if e.Kind != "" {
		base += fmt.Sprintf(" (%s)", e.Kind)
	}

	if e.StatusCode != 0 {
		base += fmt.Sprintf(" (status %d)", e.StatusCode)
	}

	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}

	return base
}

// Unwrap returns the underlying cause, enabling use with errors.Is and errors.As.
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// WithKind sets the taxonomy bucket.
func (e *ContextualError) WithKind(kind Kind) *ContextualError {
	e.Kind = kind
	return e
}

// WithStatusCode sets the status code.
func (e *ContextualError) WithStatusCode(code int) *ContextualError {
	e.StatusCode = code
	return e
}

// WithDetails sets the details map.
func (e *ContextualError) WithDetails(details map[string]any) *ContextualError {
	e.Details = details
	return e
}

// KindOf returns the Kind of the outermost classified ContextualError in err's chain,
// or the empty Kind when none is classified.
func KindOf(err error) Kind {
	for err != nil {
		var ce *ContextualError
		if !stderrors.As(err, &ce) {
			return ""
		}
		if ce.Kind != "" {
			return ce.Kind
		}
		err = ce.Cause
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
