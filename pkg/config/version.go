package config

// Version constants for assistant manifests.
const (
	// APIVersion is the Kubernetes-style API version for assistant configs
	APIVersion = "hkweather.io/v1alpha1"

	// KindAssistantConfig is the only manifest kind the assistant reads.
	KindAssistantConfig = "AssistantConfig"
)
