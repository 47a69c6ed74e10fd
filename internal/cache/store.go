// Package cache persists the route indices between builds. Blobs live in a
// Store (in memory or in Redis) under one key prefix.
package cache

import (
	"context"
	"errors"
	"time"
)

// Store defines the interface for all cache backends
type Store interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache. A ttl of zero falls back to the
	// store's default; a negative ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes every value under the store's prefix
	Clear(ctx context.Context) error

	// Exists checks if a key exists in the cache
	Exists(ctx context.Context, key string) (bool, error)
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is the default time-to-live for cached items; zero keeps
	// items until they are overwritten or cleared
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 0,
		Prefix:     "hierarchicalroutes:",
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}

// expiry turns a Set ttl into an absolute deadline; the zero time never expires
func expiry(now time.Time, ttl, fallback time.Duration) time.Time {
	if ttl == 0 {
		ttl = fallback
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
