package ports

import (
	"context"
	"time"
)

// Cache is the key-value store behind read-through decorators.
// A failing cache must not fail the caller; decorators fall back to the storage provider.
type Cache interface {
	// Get returns the raw bytes for key. ok=false when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for key; ttl <= 0 keeps it until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
