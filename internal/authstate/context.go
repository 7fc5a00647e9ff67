// Package authstate derives {session, user, isAdmin, loading} from session
// store events and the profile role, and decides route access from it.
package authstate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/internal/metrics"
	"github.com/brazeiro63/vovo-achados-portal/types"
)

type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseResolving
	PhaseAnonymous
	PhaseAuthenticatedUser
	PhaseAuthenticatedAdmin
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseResolving:
		return "resolving"
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticatedUser:
		return "authenticated_user"
	case PhaseAuthenticatedAdmin:
		return "authenticated_admin"
	default:
		return "unknown"
	}
}

// State is a snapshot of the auth context.
type State struct {
	Phase   Phase
	Session *types.Session
	User    *types.User
	IsAdmin bool
	Loading bool
	// Unverified is set when the current session could not be fetched, as
	// opposed to the store reporting that there is none.
	Unverified bool
}

// SessionSource is the session store client the context listens to.
type SessionSource interface {
	GetSession(ctx context.Context) (*types.Session, error)
	OnSessionChange(fn func(types.AuthEvent, *types.Session)) func()
	SignOut(ctx context.Context) error
}

// ProfileLookup returns the raw stored role of a user.
type ProfileLookup interface {
	GetRole(ctx context.Context, userID string) (string, error)
}

type Options struct {
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// Context holds the auth state of one visitor. All writes go through one
// mutex; session fetches and role lookups run on goroutines bound to the
// mount context.
type Context struct {
	source   SessionSource
	profiles ProfileLookup
	logger   *slog.Logger
	metrics  metrics.Recorder

	mu       sync.Mutex
	state    State
	seq      uint64
	resolved string
	sawEvent bool
	closed   bool
	nextID   int
	watchers map[int]func(State)

	mountCtx    context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	mountedAt   time.Time

	ready     chan struct{}
	readyOnce sync.Once
	wg        sync.WaitGroup
}

func New(source SessionSource, profiles ProfileLookup, opts Options) *Context {
	c := &Context{
		source:   source,
		profiles: profiles,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		watchers: make(map[int]func(State)),
		ready:    make(chan struct{}),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop{}
	}
	return c
}

// Mount starts resolution: it registers the session listener and fetches the
// current session concurrently. Both paths land in the same handler.
func (c *Context) Mount(ctx context.Context) {
	c.mu.Lock()
	if c.state.Phase != PhaseUninitialized || c.closed {
		c.mu.Unlock()
		return
	}
	c.mountCtx, c.cancel = context.WithCancel(ctx)
	c.mountedAt = time.Now()
	c.state = State{Phase: PhaseResolving, Loading: true}
	snapshot, fns := c.state, c.watchersLocked()
	c.mu.Unlock()
	notify(fns, snapshot)

	unsubscribe := c.source.OnSessionChange(func(_ types.AuthEvent, session *types.Session) {
		c.handle(session, true)
	})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return
	}
	c.unsubscribe = unsubscribe
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		session, err := c.source.GetSession(c.mountCtx)
		if err != nil {
			c.logger.Error("fetch current session", slog.String("error", err.Error()))
			c.apply(nil, false, true)
			return
		}
		c.handle(session, false)
	}()
}

// handle applies a session value. Listener events always apply; the initial
// fetch is dropped once a listener event has been seen, since it can only be
// older.
func (c *Context) handle(session *types.Session, fromListener bool) {
	c.apply(session, fromListener, false)
}

func (c *Context) apply(session *types.Session, fromListener, failed bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if fromListener {
		c.sawEvent = true
	} else if c.sawEvent {
		c.mu.Unlock()
		return
	}

	c.state.Unverified = failed
	if session == nil {
		c.seq++
		c.resolved = ""
		c.state.Phase = PhaseAnonymous
		c.state.Session = nil
		c.state.User = nil
		c.state.IsAdmin = false
		c.commitLocked()
		return
	}

	if session.ID == c.resolved {
		// Same session: refresh user data, keep the role.
		c.state.Session = session
		user := session.User
		c.state.User = &user
		snapshot, fns := c.state, c.watchersLocked()
		c.mu.Unlock()
		notify(fns, snapshot)
		return
	}

	c.seq++
	seq := c.seq
	c.resolved = session.ID
	user := session.User
	c.state.Phase = PhaseResolving
	c.state.Session = session
	c.state.User = &user
	c.state.IsAdmin = false
	snapshot, fns := c.state, c.watchersLocked()
	ctx := c.mountCtx
	c.wg.Add(1)
	c.mu.Unlock()
	notify(fns, snapshot)

	go func() {
		defer c.wg.Done()
		c.lookupRole(ctx, seq, user.ID)
	}()
}

func (c *Context) lookupRole(ctx context.Context, seq uint64, userID string) {
	if ctx.Err() != nil {
		c.metrics.RecordRoleLookup("stale")
		return
	}
	role, err := c.profiles.GetRole(ctx, userID)

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		c.metrics.RecordRoleLookup("stale")
		return
	}

	isAdmin := false
	outcome := types.RoleUser
	if err != nil {
		outcome = "error"
		c.logger.Error("role lookup failed", slog.String("user_id", userID), slog.String("error", err.Error()))
	} else if types.NormalizeRole(role) == types.RoleAdmin {
		isAdmin = true
		outcome = types.RoleAdmin
	}

	c.state.IsAdmin = isAdmin
	if isAdmin {
		c.state.Phase = PhaseAuthenticatedAdmin
	} else {
		c.state.Phase = PhaseAuthenticatedUser
	}
	c.commitLocked()
	c.metrics.RecordRoleLookup(outcome)
}

// commitLocked ends the loading window, publishes the state and releases
// c.mu.
func (c *Context) commitLocked() {
	first := false
	if c.state.Loading {
		c.state.Loading = false
		first = true
	}
	snapshot, fns := c.state, c.watchersLocked()
	mountedAt := c.mountedAt
	c.mu.Unlock()

	if first {
		c.readyOnce.Do(func() { close(c.ready) })
		c.metrics.RecordAuthResolve(time.Since(mountedAt))
	}
	notify(fns, snapshot)
}

// SignOut asks the session store to end the session. Local state is cleared
// whatever the outcome; the store's error is returned afterwards.
func (c *Context) SignOut(ctx context.Context) error {
	err := c.source.SignOut(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return err
	}
	c.seq++
	c.resolved = ""
	c.state.Phase = PhaseAnonymous
	c.state.Session = nil
	c.state.User = nil
	c.state.IsAdmin = false
	c.state.Unverified = false
	c.commitLocked()

	if err != nil {
		c.logger.Warn("sign out failed", slog.String("error", err.Error()))
	}
	return err
}

// Snapshot returns the current state.
func (c *Context) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until loading has ended or ctx is done, then returns the
// current state.
func (c *Context) Wait(ctx context.Context) (State, error) {
	select {
	case <-c.ready:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// OnChange registers fn for every state transition.
func (c *Context) OnChange(fn func(State)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.watchers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Close unregisters the session listener, cancels in-flight work and waits
// for it to return. Results arriving after Close are dropped.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubscribe, cancel := c.unsubscribe, c.cancel
	c.watchers = make(map[int]func(State))
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

func (c *Context) watchersLocked() []func(State) {
	fns := make([]func(State), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(State), s State) {
	for _, fn := range fns {
		fn(s)
	}
}
