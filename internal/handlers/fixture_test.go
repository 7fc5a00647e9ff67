package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/brazeiro63/vovo-achados-portal/internal/identity"
	"github.com/brazeiro63/vovo-achados-portal/internal/logger"
	"github.com/brazeiro63/vovo-achados-portal/internal/render"
	"github.com/brazeiro63/vovo-achados-portal/internal/services"
	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/brazeiro63/vovo-achados-portal/web"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "segredo123"

type profileStore struct {
	mu       sync.Mutex
	profiles map[string]types.Profile
}

func (s *profileStore) GetByID(_ context.Context, id string) (types.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return types.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (s *profileStore) GetRole(ctx context.Context, id string) (string, error) {
	p, err := s.GetByID(ctx, id)
	return p.Role, err
}

func (s *profileStore) List(context.Context) ([]types.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (s *profileStore) Update(_ context.Context, p types.Profile) (types.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; !ok {
		return types.Profile{}, store.ErrNotFound
	}
	s.profiles[p.ID] = p
	return p, nil
}

func (s *profileStore) SetRole(_ context.Context, id, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Role = role
	s.profiles[id] = p
	return nil
}

func (s *profileStore) put(p types.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *profileStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
}

// identityRepo keeps users, sessions and link tokens in memory. Creating a
// user also creates its profile, like the signup trigger of the database.
type identityRepo struct {
	mu       sync.Mutex
	users    map[string]types.User
	sessions map[string]types.SessionRecord
	tokens   map[string]types.AuthToken
	profiles *profileStore

	sessionErr error
	deleteErr  error
}

func newIdentityRepo(profiles *profileStore) *identityRepo {
	return &identityRepo{
		users:    make(map[string]types.User),
		sessions: make(map[string]types.SessionRecord),
		tokens:   make(map[string]types.AuthToken),
		profiles: profiles,
	}
}

func (r *identityRepo) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (r *identityRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *identityRepo) Create(_ context.Context, user types.User, profile types.Profile) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user

	profile.ID = user.ID
	profile.Email = user.Email
	profile.Role = types.RoleUser
	profile.CreatedAt = user.CreatedAt
	r.profiles.put(profile)
	return user, nil
}

func (r *identityRepo) UpdatePassword(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	r.users[id] = u
	return nil
}

func (r *identityRepo) ConfirmEmail(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.EmailConfirmedAt = &at
	r.users[id] = u
	return nil
}

func (r *identityRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	r.profiles.remove(id)
	return nil
}

func (r *identityRepo) CreateSession(_ context.Context, s types.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *identityRepo) GetSession(_ context.Context, id string) (types.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessionErr != nil {
		return types.SessionRecord{}, r.sessionErr
	}
	s, ok := r.sessions[id]
	if !ok {
		return types.SessionRecord{}, store.ErrNotFound
	}
	return s, nil
}

func (r *identityRepo) DeleteSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.sessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *identityRepo) DeleteUserSessions(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if s.UserID == userID {
			ids = append(ids, id)
			delete(r.sessions, id)
		}
	}
	return ids, nil
}

func (r *identityRepo) CreateToken(_ context.Context, t types.AuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.Hash] = t
	return nil
}

func (r *identityRepo) ConsumeToken(_ context.Context, hash string, kind types.TokenKind, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[hash]
	if !ok || t.Kind != kind || t.UsedAt != nil || !now.Before(t.ExpiresAt) {
		return "", store.ErrNotFound
	}
	t.UsedAt = &now
	r.tokens[hash] = t
	return t.UserID, nil
}

func (r *identityRepo) setSessionErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionErr = err
}

func (r *identityRepo) setDeleteErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteErr = err
}

func (r *identityRepo) hasUser(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	return ok
}

type linkBox struct {
	mu    sync.Mutex
	links []types.AuthLink
}

func (b *linkBox) SendLink(_ context.Context, link types.AuthLink) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.links = append(b.links, link)
	return nil
}

func (b *linkBox) last(t *testing.T) types.AuthLink {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.links)
	return b.links[len(b.links)-1]
}

type blogRepo struct {
	mu    sync.Mutex
	posts map[string]types.BlogPost
}

func (r *blogRepo) ListPublished(_ context.Context, now time.Time) ([]types.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.BlogPost
	for _, p := range r.posts {
		if p.Published(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *blogRepo) GetPublishedBySlug(_ context.Context, slug string, now time.Time) (types.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.Slug == slug && p.Published(now) {
			return p, nil
		}
	}
	return types.BlogPost{}, store.ErrNotFound
}

func (r *blogRepo) ListAll(context.Context) ([]types.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.BlogPost, 0, len(r.posts))
	for _, p := range r.posts {
		out = append(out, p)
	}
	return out, nil
}

func (r *blogRepo) Get(_ context.Context, id string) (types.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return types.BlogPost{}, store.ErrNotFound
	}
	return p, nil
}

func (r *blogRepo) Create(_ context.Context, post types.BlogPost) (types.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.Slug == post.Slug {
			return types.BlogPost{}, store.ErrConflict
		}
	}
	post.ID = uuid.NewString()
	post.CreatedAt = time.Now()
	post.UpdatedAt = post.CreatedAt
	r.posts[post.ID] = post
	return post, nil
}

func (r *blogRepo) Update(_ context.Context, post types.BlogPost) (types.BlogPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[post.ID]; !ok {
		return types.BlogPost{}, store.ErrNotFound
	}
	post.UpdatedAt = time.Now()
	r.posts[post.ID] = post
	return post, nil
}

func (r *blogRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.posts, id)
	return nil
}

func (r *blogRepo) bySlug(slug string) (types.BlogPost, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.Slug == slug {
			return p, true
		}
	}
	return types.BlogPost{}, false
}

// siteFixture wires the handlers the way the server does, minus CSRF and
// rate limiting, over in-memory repositories.
type siteFixture struct {
	repo     *identityRepo
	profiles *profileStore
	links    *linkBox
	settings *settingsRepo
	products *productRepo
	posts    *blogRepo

	provider *identity.Provider
	users    *services.UserService
	sessions *scs.SessionManager
	auth     *Auth
	authAPI  *AuthHandler
	router   http.Handler
}

func newSiteFixture(t *testing.T) *siteFixture {
	t.Helper()
	log := logger.Discard()

	f := &siteFixture{
		profiles: &profileStore{profiles: make(map[string]types.Profile)},
		links:    &linkBox{},
		settings: &settingsRepo{settings: types.DefaultSettings()},
		products: &productRepo{},
		posts:    &blogRepo{posts: make(map[string]types.BlogPost)},
	}
	f.repo = newIdentityRepo(f.profiles)
	f.provider = identity.NewProvider(f.repo, f.links, identity.Options{
		Secret:     "test-secret",
		BaseURL:    "https://achados.test",
		Logger:     log,
		BcryptCost: bcrypt.MinCost,
	})
	f.users = services.NewUserService(f.profiles, f.provider, nil)
	f.sessions = scs.New()

	renderer, err := render.New(render.Config{TemplatesFS: web.Templates, Sessions: f.sessions})
	require.NoError(t, err)
	f.auth = NewAuth(f.provider, f.users, AuthOptions{
		Sessions:       f.sessions,
		Renderer:       renderer,
		ResolveTimeout: 2 * time.Second,
		Logger:         log,
	})

	products := services.NewProductService(f.products, nil, nil)
	blog := services.NewBlogService(f.posts, nil)
	settings := services.NewSettingsService(f.settings, nil, "test", "memory")
	account := services.NewAccountService(f.provider, log)
	pages := NewPages(PagesDeps{
		Renderer: renderer,
		Auth:     f.auth,
		Products: products,
		Blog:     blog,
		Users:    f.users,
		Settings: settings,
		Account:  account,
		Catalog:  services.NewStoreCatalog(products),
		BaseURL:  "https://achados.test",
		Logger:   log,
	})
	f.authAPI = NewAuthHandler(f.auth, account, settings, f.users, "https://achados.test", log)

	open := func(next http.Handler) http.Handler { return next }
	r := chi.NewRouter()
	r.Use(f.sessions.LoadAndSave, f.auth.Resolve)
	r.Get("/session-token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(f.sessions.GetString(r.Context(), sessionTokenKey)))
	})
	r.Route("/api/auth", func(r chi.Router) { AuthRouter(r, f.authAPI, open) })
	r.Route("/api/blog", func(r chi.Router) { BlogRouter(r, NewBlogHandler(blog, log)) })
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(f.auth.APIRequireAdmin)
		r.Route("/blog", func(r chi.Router) { AdminBlogRouter(r, NewBlogHandler(blog, log)) })
		r.Route("/users", func(r chi.Router) { UserRouter(r, NewUserHandler(f.users, log)) })
		SettingsRouter(r, NewSettingsHandler(settings, log))
	})
	PageRouter(r, pages, open)
	r.Route("/admin", func(r chi.Router) {
		r.Use(f.auth.RequireAdmin)
		AdminPageRouter(r, pages)
	})
	f.router = r
	return f
}

// register creates a confirmed account with the given role and returns its
// first session.
func (f *siteFixture) register(t *testing.T, email, role string) types.Session {
	t.Helper()
	session, _, err := f.provider.SignUp(context.Background(), identity.SignUpParams{Email: email, Password: testPassword})
	require.NoError(t, err)
	require.NotNil(t, session)
	require.NoError(t, f.profiles.SetRole(context.Background(), session.User.ID, role))
	return *session
}

// browser carries the session cookie between requests.
type browser struct {
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (f *siteFixture) browser() *browser {
	return &browser{handler: f.router, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) post(path string, values url.Values) *httptest.ResponseRecorder {
	return b.do(formRequest(path, values))
}

func (b *browser) login(t *testing.T, email string) {
	t.Helper()
	rec := b.post("/login", url.Values{"email": {email}, "password": {testPassword}})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func (b *browser) token() string {
	return b.get("/session-token").Body.String()
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// bearer builds an API request authenticated with token.
func bearer(method, path, token string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (f *siteFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}
