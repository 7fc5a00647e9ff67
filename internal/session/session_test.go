package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/brazeiro63/vovo-achados-portal/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ scs.CtxStore = (*CacheStore)(nil)

func newStore(t *testing.T) *CacheStore {
	t.Helper()
	backend := cache.NewMemoryCache(time.Minute, time.Minute)
	t.Cleanup(func() { _ = backend.Close() })
	return NewCacheStore(backend)
}

func TestCacheStore_CommitFindDelete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, found, err := store.FindCtx(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.CommitCtx(ctx, "abc", []byte("data"), time.Now().Add(time.Minute)))
	b, found, err := store.FindCtx(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("data"), b)

	require.NoError(t, store.DeleteCtx(ctx, "abc"))
	_, found, err = store.FindCtx(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheStore_ExpiredCommitDeletes(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Commit("abc", []byte("data"), time.Now().Add(time.Minute)))
	require.NoError(t, store.Commit("abc", []byte("data"), time.Now().Add(-time.Second)))

	_, found, err := store.Find("abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNew_CookieAndRoundTrip(t *testing.T) {
	backend := cache.NewMemoryCache(time.Minute, time.Minute)
	t.Cleanup(func() { _ = backend.Close() })
	sm := New(backend, time.Hour, true)

	assert.Equal(t, cookieName, sm.Cookie.Name)
	assert.True(t, sm.Cookie.HttpOnly)
	assert.True(t, sm.Cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, sm.Cookie.SameSite)

	mux := http.NewServeMux()
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		sm.Put(r.Context(), "access_token", "tok")
	})
	mux.HandleFunc("/get", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sm.GetString(r.Context(), "access_token")))
	})
	handler := sm.LoadAndSave(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/put", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/get", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "tok", rec.Body.String())
}
