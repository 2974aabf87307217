// Package credentials provides the authentication applied to language model requests:
// API keys in a header, or AWS SigV4 signing for Bedrock.
package credentials

import (
	"context"
	"net/http"
)

// Credential types reported by Type.
const (
	TypeAPIKey = "api_key"
	TypeAWS    = "aws"
	TypeNone   = "none"
)

// Credential applies authentication to HTTP requests.
type Credential interface {
	Apply(ctx context.Context, req *http.Request) error
	Type() string
}

// HeaderScheme says where an API key goes: the header name and a value prefix.
type HeaderScheme struct {
	Header string
	Prefix string
}

var (
	// BearerScheme is "Authorization: Bearer <key>", used by OpenAI-compatible APIs.
	BearerScheme = HeaderScheme{Header: "Authorization", Prefix: "Bearer "}
	// AnthropicScheme is "X-API-Key: <key>".
	AnthropicScheme = HeaderScheme{Header: "X-API-Key"}
)

// APIKeyCredential sends a static API key in a header.
type APIKeyCredential struct {
	apiKey string
	scheme HeaderScheme
}

// NewAPIKeyCredential returns a bearer-token credential.
func NewAPIKeyCredential(apiKey string) *APIKeyCredential {
	return NewHeaderCredential(apiKey, BearerScheme)
}

// NewHeaderCredential returns a credential that sends apiKey as described by scheme.
func NewHeaderCredential(apiKey string, scheme HeaderScheme) *APIKeyCredential {
	return &APIKeyCredential{apiKey: apiKey, scheme: scheme}
}

// Apply sets the key header. An empty key leaves the request untouched.
func (c *APIKeyCredential) Apply(_ context.Context, req *http.Request) error {
	if c.apiKey != "" {
		req.Header.Set(c.scheme.Header, c.scheme.Prefix+c.apiKey)
	}
	return nil
}

// Type returns TypeAPIKey.
func (c *APIKeyCredential) Type() string { return TypeAPIKey }

// APIKey returns the raw key, for SDK clients that take it directly.
func (c *APIKeyCredential) APIKey() string { return c.apiKey }

// NoOpCredential is used for local providers such as Ollama.
type NoOpCredential struct{}

// Apply does nothing.
func (c *NoOpCredential) Apply(context.Context, *http.Request) error { return nil }

// Type returns TypeNone.
func (c *NoOpCredential) Type() string { return TypeNone }
