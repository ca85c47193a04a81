// Package cache provides the byte-level cache used to memoize repository
// package listings between index runs.
//
// Three implementations are provided: a file cache for CLI usage, a Redis
// cache for shared deployments, and a null cache that disables caching.
// [Scoped] namespaces any cache per repository so sources never collide.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys with a TTL.
// Implementations must treat a missing or expired entry as a miss, never an
// error.
type Cache interface {
	// Get retrieves a value. The second return reports a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value. A non-positive ttl stores without expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a value; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any resources held by the cache.
	Close() error
}

// Scoped wraps a cache so every key is prefixed with a namespace.
// fsm uses one scope per repository source, so re-indexing one repository
// never evicts or collides with another's listings.
type Scoped struct {
	inner  Cache
	prefix string
}

// NewScoped creates a namespaced view over an existing cache.
func NewScoped(inner Cache, namespace string) *Scoped {
	return &Scoped{inner: inner, prefix: namespace + ":"}
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, data, ttl)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Close is a no-op: the underlying cache is shared across scopes and owned
// by the caller.
func (s *Scoped) Close() error { return nil }

var _ Cache = (*Scoped)(nil)
