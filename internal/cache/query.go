package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Query caches JSON-encoded read results by key and drops them by prefix
// after writes. A nil *Query disables caching.
type Query struct {
	backend Cache
	ttl     time.Duration
	logger  *slog.Logger

	onInvalidate func(prefix string)
}

func NewQuery(backend Cache, ttl time.Duration, logger *slog.Logger) *Query {
	if logger == nil {
		logger = slog.Default()
	}
	return &Query{backend: backend, ttl: ttl, logger: logger}
}

// OnInvalidate registers a hook called for every invalidated prefix.
func (q *Query) OnInvalidate(fn func(prefix string)) {
	q.onInvalidate = fn
}

// Fetch returns the cached value for key or calls load and caches its result.
// Load errors are returned as is and never cached. Backend failures degrade
// to a direct load.
func Fetch[T any](ctx context.Context, q *Query, key string, load func(context.Context) (T, error)) (T, error) {
	if q == nil {
		return load(ctx)
	}

	if raw, err := q.backend.Get(ctx, key); err == nil {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		q.logger.Warn("discarding undecodable cache entry", slog.String("key", key))
	} else if !errors.Is(err, ErrCacheMiss) {
		q.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		q.logger.Warn("cache encode failed", slog.String("key", key), slog.Any("error", err))
		return value, nil
	}
	if err := q.backend.Set(ctx, key, raw, q.ttl); err != nil {
		q.logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return value, nil
}

// Invalidate drops every query under the given prefixes. Failures are logged;
// entries then expire with their TTL.
func (q *Query) Invalidate(ctx context.Context, prefixes ...string) {
	if q == nil {
		return
	}
	for _, prefix := range prefixes {
		if err := q.backend.DeletePrefix(ctx, prefix); err != nil {
			q.logger.Warn("cache invalidation failed", slog.String("prefix", prefix), slog.Any("error", err))
			continue
		}
		if q.onInvalidate != nil {
			q.onInvalidate(prefix)
		}
	}
}

// Close releases the backend.
func (q *Query) Close() error {
	if q == nil {
		return nil
	}
	return q.backend.Close()
}
