// Package httputil centralizes HTTP client construction so model providers and
// the automation backend share timeout defaults and trace propagation.
package httputil

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Standard timeout defaults used across the project.
const (
	// DefaultProviderTimeout is the HTTP timeout for language model calls.
	// Completions can take a while, so it is the longer of the two.
	DefaultProviderTimeout = 60 * time.Second

	// DefaultPageTimeout is the HTTP timeout for fetching a weather page.
	DefaultPageTimeout = 30 * time.Second
)

// NewHTTPClient returns an *http.Client configured with the given timeout.
// Pass one of the Default*Timeout constants, or a custom duration.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewTracedHTTPClient is NewHTTPClient with an otelhttp transport, so each
// request gets a client span and carries the caller's trace context.
// A zero timeout leaves deadlines to the request context.
func NewTracedHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
