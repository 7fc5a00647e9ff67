package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/brazeiro63/vovo-achados-portal/internal/authstate"
	"github.com/brazeiro63/vovo-achados-portal/internal/identity"
	"github.com/brazeiro63/vovo-achados-portal/internal/metrics"
	"github.com/brazeiro63/vovo-achados-portal/internal/render"
	"github.com/brazeiro63/vovo-achados-portal/types"
)

const (
	defaultResolveTimeout = 3 * time.Second
	// sessionTokenKey is where the browser session keeps the access token.
	sessionTokenKey = "access_token"
)

type contextKey string

const contextAuthKey contextKey = "auth"

// requestAuth is the auth state mounted for one request.
type requestAuth struct {
	client *identity.Client
	auth   *authstate.Context
}

// Auth mounts a per-request auth context and guards routes with it.
type Auth struct {
	provider *identity.Provider
	profiles authstate.ProfileLookup
	sessions *scs.SessionManager
	renderer *render.Renderer
	timeout  time.Duration
	logger   *slog.Logger
	metrics  metrics.Recorder
}

type AuthOptions struct {
	// Sessions holds the browser cookie session. Without it only bearer
	// tokens are read.
	Sessions       *scs.SessionManager
	Renderer       *render.Renderer
	ResolveTimeout time.Duration
	Logger         *slog.Logger
	Metrics        metrics.Recorder
}

func NewAuth(provider *identity.Provider, profiles authstate.ProfileLookup, opts AuthOptions) *Auth {
	a := &Auth{
		provider: provider,
		profiles: profiles,
		sessions: opts.Sessions,
		renderer: opts.Renderer,
		timeout:  opts.ResolveTimeout,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if a.timeout <= 0 {
		a.timeout = defaultResolveTimeout
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = metrics.Nop{}
	}
	return a
}

// Resolve mounts the auth context of the request and waits, at most the
// resolve timeout, for loading to end. Guards decide on whatever state is
// current when they run, so a slow role lookup yields a loading answer
// rather than a redirect.
func (a *Auth) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := a.requestToken(r)

		client := a.provider.NewClient(token)
		ac := authstate.New(client, a.profiles, authstate.Options{Logger: a.logger, Metrics: a.metrics})
		defer func() {
			ac.Close()
			client.Close()
		}()
		ac.Mount(r.Context())

		waitCtx, cancel := context.WithTimeout(r.Context(), a.timeout)
		state, err := ac.Wait(waitCtx)
		cancel()
		if err != nil {
			a.logger.WarnContext(r.Context(), "auth state still loading",
				slog.String("path", r.URL.Path),
				slog.String("phase", state.Phase.String()),
			)
		}
		// A token the store could not check is kept for the next request.
		if fromCookie && token != "" && state.Phase == authstate.PhaseAnonymous && !state.Unverified {
			a.sessions.Remove(r.Context(), sessionTokenKey)
		}

		ctx := context.WithValue(r.Context(), contextAuthKey, &requestAuth{client: client, auth: ac})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestToken prefers the Authorization header, then the browser session.
func (a *Auth) requestToken(r *http.Request) (string, bool) {
	if token, err := bearerToken(r); err == nil {
		return token, false
	}
	if a.sessions == nil {
		return "", false
	}
	return a.sessions.GetString(r.Context(), sessionTokenKey), true
}

// persist stores a new session's token in the browser session.
func (a *Auth) persist(r *http.Request, session types.Session) error {
	if a.sessions == nil {
		return nil
	}
	if err := a.sessions.RenewToken(r.Context()); err != nil {
		return err
	}
	a.sessions.Put(r.Context(), sessionTokenKey, session.AccessToken)
	return nil
}

func (a *Auth) forget(r *http.Request) {
	if a.sessions == nil {
		return
	}
	a.sessions.Remove(r.Context(), sessionTokenKey)
	if err := a.sessions.RenewToken(r.Context()); err != nil {
		a.logger.WarnContext(r.Context(), "renew session token", slog.String("error", err.Error()))
	}
}

func authFrom(r *http.Request) *requestAuth {
	ra, _ := r.Context().Value(contextAuthKey).(*requestAuth)
	return ra
}

// stateOf returns the current auth state of the request. Without a mounted
// context it is the zero state, which every guard answers with Wait.
func stateOf(r *http.Request) authstate.State {
	if ra := authFrom(r); ra != nil {
		return ra.auth.Snapshot()
	}
	return authstate.State{}
}

// clientOf returns the session store client of the request. It is never
// nil for requests that went through Resolve.
func clientOf(r *http.Request) *identity.Client {
	if ra := authFrom(r); ra != nil {
		return ra.client
	}
	return nil
}

// RequireSession guards HTML pages that need a signed-in visitor.
func (a *Auth) RequireSession(next http.Handler) http.Handler {
	return a.guard("session", authstate.GuardSession, false)(next)
}

// RequireAdmin guards the back-office pages.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return a.guard("admin", authstate.GuardAdmin, false)(next)
}

// APIRequireSession is RequireSession with JSON answers.
func (a *Auth) APIRequireSession(next http.Handler) http.Handler {
	return a.guard("api_session", authstate.GuardSession, true)(next)
}

// APIRequireAdmin is RequireAdmin with JSON answers.
func (a *Auth) APIRequireAdmin(next http.Handler) http.Handler {
	return a.guard("api_admin", authstate.GuardAdmin, true)(next)
}

func (a *Auth) guard(name string, check func(authstate.State) authstate.Decision, api bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := check(stateOf(r))
			a.metrics.RecordGuardDecision(name, decision.String())

			switch decision {
			case authstate.Allow:
				next.ServeHTTP(w, r)
			case authstate.Wait:
				w.Header().Set("Retry-After", "1")
				if api {
					writeError(w, http.StatusServiceUnavailable, "Carregando...")
					return
				}
				a.renderLoading(w, r)
			case authstate.RedirectLogin:
				if api {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				http.Redirect(w, r, "/login", http.StatusSeeOther)
			default:
				if api {
					writeError(w, http.StatusForbidden, "forbidden")
					return
				}
				http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			}
		})
	}
}

func (a *Auth) renderLoading(w http.ResponseWriter, r *http.Request) {
	if a.renderer != nil {
		err := a.renderer.Render(w, r, http.StatusServiceUnavailable, "pages/loading", render.TemplateData{Title: "Carregando..."})
		if err == nil {
			return
		}
		a.logger.ErrorContext(r.Context(), "render loading page", slog.String("error", err.Error()))
	}
	http.Error(w, "Carregando...", http.StatusServiceUnavailable)
}
