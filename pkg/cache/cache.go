// Package cache stores shared REST responses keyed by request fingerprint.
// Engine holds the in-process entries and their reuse policies; MemoryCache
// and RedisCache are optional persistent backends behind the Cache interface.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache defines the interface for persistent response backends.
// The engine writes completed time-bound entries through to a Cache so
// that they survive the process and can be shared between processes.
// Keys are request fingerprints; implementations add their own prefix.
type Cache interface {
	// Get returns ErrCacheMiss when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear drops every key under the backend's prefix.
	Clear(ctx context.Context) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CacheConfig holds common configuration for cache backends
type CacheConfig struct {
	// DefaultTTL is used when Set is called with a zero TTL
	DefaultTTL time.Duration
	// Prefix is prepended to all backend keys
	Prefix string
}

// DefaultCacheConfig returns a default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "restdecl:",
	}
}

// ErrCacheMiss reports a fingerprint with no live backend entry.
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss reports whether err is, or wraps, an ErrCacheMiss.
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}
