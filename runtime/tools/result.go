package tools

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ToolResult is the outcome of a tool invocation: either Success or Failure.
// Consumers type-switch on it.
type ToolResult interface {
	isToolResult()
}

// Success carries the tool's structured payload and an optional snapshot path.
type Success struct {
	Payload    map[string]any
	Screenshot string
}

// Failure carries a categorized reason. Detail is for logs, never for users.
type Failure struct {
	Reason FailureReason
	Detail string
}

func (Success) isToolResult() {}
func (Failure) isToolResult() {}

// FailureReason categorizes a tool failure.
type FailureReason string

// Failure categories.
const (
	ReasonBackendTimeout   FailureReason = "BackendTimeout"
	ReasonNavigationFailed FailureReason = "NavigationFailed"
	ReasonExtractionFailed FailureReason = "ExtractionFailed"
	ReasonNotAvailable     FailureReason = "NotAvailable"
	ReasonInvalidArguments FailureReason = "InvalidArguments"
	ReasonBackendError     FailureReason = "BackendError"
)

var reasonLabels = map[FailureReason]string{
	ReasonBackendTimeout:   "timeout",
	ReasonNavigationFailed: "navigation failure",
	ReasonExtractionFailed: "page extraction problem",
	ReasonNotAvailable:     "data not available",
	ReasonInvalidArguments: "invalid request",
	ReasonBackendError:     "backend error",
}

// Label is the plain-words name of the category shown to users.
func (r FailureReason) Label() string {
	if l, ok := reasonLabels[r]; ok {
		return l
	}
	return reasonLabels[ReasonBackendError]
}

// ParseFailureReason maps a category string onto a known reason; unknown values
// become ReasonBackendError.
func ParseFailureReason(s string) FailureReason {
	r := FailureReason(s)
	if _, ok := reasonLabels[r]; ok {
		return r
	}
	return ReasonBackendError
}

// Envelope statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Envelope is the JSON document a tool returns as its single text content item.
type Envelope struct {
	Status     string         `json:"status"`
	Payload    map[string]any `json:"payload,omitempty"`
	Screenshot string         `json:"screenshot_path,omitempty"`
	Error      *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError is the error part of a failed Envelope.
type EnvelopeError struct {
	Category string `json:"category"`
	Detail   string `json:"detail,omitempty"`
}

// ErrMalformedEnvelope is returned when a tool response cannot be decoded.
var ErrMalformedEnvelope = errors.New("malformed tool result envelope")

// EncodeResult renders a result as an Envelope.
func EncodeResult(result ToolResult) ([]byte, error) {
	var env Envelope
	switch r := result.(type) {
	case Success:
		payload := r.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		env = Envelope{Status: StatusOK, Payload: payload, Screenshot: r.Screenshot}
	case Failure:
		env = Envelope{Status: StatusError, Error: &EnvelopeError{Category: string(r.Reason), Detail: r.Detail}}
	default:
		return nil, fmt.Errorf("cannot encode tool result of type %T", result)
	}
	return json.Marshal(env)
}

// DecodeResult parses an Envelope back into a ToolResult.
func DecodeResult(data []byte) (ToolResult, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	switch env.Status {
	case StatusOK:
		payload := env.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		return Success{Payload: payload, Screenshot: env.Screenshot}, nil
	case StatusError:
		if env.Error == nil {
			return Failure{Reason: ReasonBackendError}, nil
		}
		return Failure{Reason: ParseFailureReason(env.Error.Category), Detail: env.Error.Detail}, nil
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedEnvelope, env.Status)
	}
}

// StatusOf returns the envelope status for metrics and logs.
func StatusOf(result ToolResult) string {
	if _, ok := result.(Success); ok {
		return StatusOK
	}
	return StatusError
}
