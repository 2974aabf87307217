// Package cache provides the ephemeral key/value stores behind the tool result
// cache. Entries expire after a per-entry TTL; nothing is persisted.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidKey is returned for empty keys.
var ErrInvalidKey = errors.New("cache: invalid key")

// Store holds opaque values with a time-to-live.
type Store interface {
	// Get returns the live value for key. A missing or expired entry is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key if present.
	Delete(ctx context.Context, key string) error
	// Close releases the store's resources.
	Close() error
}
