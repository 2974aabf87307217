package providers

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/hanyun2019/mcp-on-aws-demo/pkg/httputil"
	"github.com/hanyun2019/mcp-on-aws-demo/runtime/credentials"
)

// TypeNone selects no model; callers use their non-model fallbacks.
const TypeNone = "none"

// DefaultRequestTimeout bounds one HTTP exchange with a provider API.
const DefaultRequestTimeout = httputil.DefaultProviderTimeout

// ProviderFactory is a function that creates a provider from a spec
type ProviderFactory func(spec ProviderSpec) (Provider, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = make(map[string]ProviderFactory)
)

// RegisterProviderFactory registers a factory function for a provider type
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[providerType] = factory
}

// RegisteredTypes returns the registered provider types, sorted.
func RegisteredTypes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(providerFactories))
	for t := range providerFactories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ProviderSpec holds the configuration needed to create a provider instance
type ProviderSpec struct {
	ID       string
	Type     string
	Model    string
	BaseURL  string
	Defaults ProviderDefaults

	// Credential authenticates requests. Nil means no authentication.
	Credential credentials.Credential

	// Platform is "" for the vendor API or "bedrock" for AWS Bedrock.
	Platform string
	Region   string

	// HTTPClient overrides the default client; tests point it at httptest servers.
	HTTPClient *http.Client

	AdditionalConfig map[string]any
}

var defaultBaseURLs = map[string]string{
	"openai": "https://api.openai.com/v1",
	"claude": "https://api.anthropic.com/v1",
	"ollama": "http://localhost:11434",
}

// CreateProviderFromSpec creates a provider implementation from a spec.
// A "none" or empty type returns a nil Provider and no error.
func CreateProviderFromSpec(spec ProviderSpec) (Provider, error) {
	if spec.Type == "" || spec.Type == TypeNone {
		return nil, nil
	}

	if spec.BaseURL == "" {
		spec.BaseURL = defaultBaseURLs[spec.Type]
	}
	if spec.ID == "" {
		spec.ID = spec.Type
	}
	if spec.HTTPClient == nil {
		spec.HTTPClient = httputil.NewTracedHTTPClient(DefaultRequestTimeout)
	}

	factoriesMu.RLock()
	factory, exists := providerFactories[spec.Type]
	factoriesMu.RUnlock()
	if !exists {
		return nil, &UnsupportedProviderError{ProviderType: spec.Type}
	}

	provider, err := factory(spec)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", spec.Type, err)
	}
	return provider, nil
}

// UnsupportedProviderError is returned when a provider type is not registered.
type UnsupportedProviderError struct {
	ProviderType string
}

func (e *UnsupportedProviderError) Error() string {
	return "unsupported provider type: " + e.ProviderType
}
