// Package cache holds the query cache of the data-fetch layer.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache is a byte-oriented store shared by the memory and redis backends.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value for ttl; a zero ttl uses the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeletePrefix removes the key equal to prefix and every key under
	// prefix + KeySeparator.
	DeletePrefix(ctx context.Context, prefix string) error

	Close() error
}

// Error represents an error type for cache operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrCacheMiss   Error = "cache miss"
	ErrCacheClosed Error = "cache closed"
)

// KeySeparator splits a query key into its prefix and arguments.
const KeySeparator = "|"

// Key joins a prefix and its arguments into a query key.
func Key(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + KeySeparator + strings.Join(parts, KeySeparator)
}

func matchesPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+KeySeparator)
}
