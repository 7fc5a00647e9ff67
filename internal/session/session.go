// Package session configures the browser session that carries the access
// token and flash messages of HTML pages.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/brazeiro63/vovo-achados-portal/internal/cache"
)

const (
	cookieName = "vovo_session"
	keyPrefix  = "session"
)

// New creates the session manager. With a nil backend sessions live in
// process memory.
func New(backend cache.Cache, lifetime time.Duration, secure bool) *scs.SessionManager {
	sm := scs.New()
	if backend != nil {
		sm.Store = NewCacheStore(backend)
	}

	sm.Lifetime = lifetime
	sm.Cookie.Name = cookieName
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = secure
	return sm
}

// CacheStore keeps sessions in the query cache backend, so a redis cache
// shares them across instances.
type CacheStore struct {
	backend cache.Cache
}

func NewCacheStore(backend cache.Cache) *CacheStore {
	return &CacheStore{backend: backend}
}

func storeKey(token string) string {
	return cache.Key(keyPrefix, token)
}

func (s *CacheStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	b, err := s.backend.Get(ctx, storeKey(token))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// CommitCtx stores the session until expiry. Already expired sessions are
// deleted instead.
func (s *CacheStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return s.DeleteCtx(ctx, token)
	}
	return s.backend.Set(ctx, storeKey(token), b, ttl)
}

func (s *CacheStore) DeleteCtx(ctx context.Context, token string) error {
	return s.backend.DeletePrefix(ctx, storeKey(token))
}

func (s *CacheStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *CacheStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *CacheStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}
