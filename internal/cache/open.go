package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/config"
)

// Open returns the backend named by cfg. The server and the admin command
// share it so that writes from either drop the same entries.
func Open(cfg config.CacheConfig) (Cache, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return NewMemoryCache(cfg.TTL, time.Minute), nil
	case "redis":
		c, err := NewRedisCache(RedisOptions{
			URL:        cfg.RedisURL,
			Prefix:     cfg.Prefix,
			DefaultTTL: cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
