package tools

import "errors"

// Sentinel errors for tool operations.
var (
	// ErrToolNotFound is returned when a requested tool is not in the registry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameRequired is returned when registering a tool without a name.
	ErrToolNameRequired = errors.New("tool name is required")

	// ErrDuplicateTool is returned when two specs share a name.
	ErrDuplicateTool = errors.New("duplicate tool name")

	// ErrNotDiscovered is returned when invoking before the catalog was discovered.
	ErrNotDiscovered = errors.New("tool catalog has not been discovered")
)
