// Package cache provides the key-value store behind the feed read-through
// layer. Values are opaque byte payloads with a TTL; encoding is left to
// the caller. The Redis implementation is the production backend, the
// in-memory one backs tests and cacheless deployments.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache abstracts a key-value cache with TTL support.
// All operations are safe for concurrent use. Transport failures are
// returned as-is; callers decide whether a store error is fatal.
type Cache interface {
	// Get retrieves the value associated with key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A zero TTL means the entry
	// does not expire (or uses the implementation's default expiration).
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key exists and has not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL reports the remaining lifetime of a key. Returns ErrNotFound
	// for absent keys and zero for keys without expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Ping verifies connectivity to the underlying backend.
	Ping(ctx context.Context) error

	// Close releases all resources held by the implementation.
	Close() error
}
