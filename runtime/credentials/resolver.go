package credentials

import (
	"context"
	"fmt"
	"os"
)

// Platform names.
const (
	PlatformDirect  = ""
	PlatformBedrock = "bedrock"
)

// DefaultEnvVars maps provider types to the environment variables searched for an API key.
var DefaultEnvVars = map[string][]string{
	"claude": {"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"},
	"openai": {"OPENAI_API_KEY", "OPENAI_TOKEN"},
}

// providerSchemes maps provider types to their API key header.
var providerSchemes = map[string]HeaderScheme{
	"claude": AnthropicScheme,
	"openai": BearerScheme,
}

// ResolverConfig holds configuration for credential resolution.
type ResolverConfig struct {
	ProviderType string

	// APIKey is an explicit key. It wins over APIKeyEnv and the defaults.
	APIKey string

	// APIKeyEnv names an environment variable holding the key.
	APIKeyEnv string

	// Platform selects a cloud platform; "bedrock" resolves AWS credentials.
	Platform string
	Region   string
	RoleARN  string
}

// Resolve returns the credential for cfg. Platform credentials come from the
// cloud SDK's default chain; otherwise the API key chain is:
//  1. explicit APIKey
//  2. APIKeyEnv
//  3. default env vars for the provider type
//
// Without a key a NoOpCredential is returned; local providers need none.
func Resolve(ctx context.Context, cfg ResolverConfig) (Credential, error) {
	switch cfg.Platform {
	case PlatformDirect:
	case PlatformBedrock:
		return NewAWSCredential(ctx, cfg.Region, cfg.RoleARN)
	default:
		return nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}

	apiKey, err := findAPIKey(cfg)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return &NoOpCredential{}, nil
	}
	return createAPIKeyCredential(apiKey, cfg.ProviderType), nil
}

func findAPIKey(cfg ResolverConfig) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	if cfg.APIKeyEnv != "" {
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return "", fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
		}
		return key, nil
	}
	for _, envVar := range DefaultEnvVars[cfg.ProviderType] {
		if key := os.Getenv(envVar); key != "" {
			return key, nil
		}
	}
	return "", nil
}

func createAPIKeyCredential(apiKey, providerType string) *APIKeyCredential {
	scheme, ok := providerSchemes[providerType]
	if !ok {
		scheme = BearerScheme
	}
	return NewHeaderCredential(apiKey, scheme)
}
