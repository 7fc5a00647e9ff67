package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/brazeiro63/vovo-achados-portal/types"
)

// Client is one visitor's view of the session store. It holds the visitor's
// access token, resolves it lazily and notifies listeners when the session
// changes, whether through its own calls or through events published by the
// Provider for the same session.
type Client struct {
	provider *Provider

	mu        sync.Mutex
	token     string
	session   *types.Session
	loaded    bool
	gen       uint64
	next      int
	listeners map[int]func(types.AuthEvent, *types.Session)
	hubUser   string
	hubCancel func()
	closed    bool
}

// NewClient returns a Client for the given access token. An empty token
// starts anonymous.
func (p *Provider) NewClient(accessToken string) *Client {
	return &Client{
		provider:  p,
		token:     accessToken,
		listeners: make(map[int]func(types.AuthEvent, *types.Session)),
	}
}

// GetSession returns the current session, validating the token with the
// Provider on first use. A nil session means anonymous.
func (c *Client) GetSession(ctx context.Context) (*types.Session, error) {
	c.mu.Lock()
	if c.loaded {
		s := c.session
		c.mu.Unlock()
		return s, nil
	}
	token, gen := c.token, c.gen
	c.mu.Unlock()

	session, err := c.provider.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A sign-in or sign-out raced the lookup; theirs wins.
	if c.gen != gen {
		return c.session, nil
	}
	c.loaded = true
	c.session = session
	c.gen++
	c.watchLocked()
	return session, nil
}

// OnSessionChange registers fn for every later session change and returns a
// function that removes it.
func (c *Client) OnSessionChange(fn func(types.AuthEvent, *types.Session)) func() {
	c.mu.Lock()
	c.next++
	id := c.next
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// AccessToken returns the token of the current session, or the initial token
// when the session was never resolved.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session.AccessToken
	}
	if c.loaded {
		return ""
	}
	return c.token
}

func (c *Client) SignIn(ctx context.Context, email, password string) (types.Session, error) {
	session, err := c.provider.SignIn(ctx, email, password)
	if err != nil {
		return types.Session{}, err
	}
	c.set(types.AuthEventSignedIn, &session)
	return session, nil
}

// SignUp registers a user. The client is signed in only when the Provider
// returned a session.
func (c *Client) SignUp(ctx context.Context, params SignUpParams) (*types.Session, types.User, error) {
	session, user, err := c.provider.SignUp(ctx, params)
	if err != nil {
		return nil, user, err
	}
	if session != nil {
		c.set(types.AuthEventSignedIn, session)
	}
	return session, user, nil
}

// SignOut revokes the current session. Without a session it only clears
// local state. When the Provider fails the session is kept and the error
// returned.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.AccessToken()
	if token == "" {
		c.clear()
		return nil
	}
	if err := c.provider.SignOut(ctx, token); err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	c.clear()
	return nil
}

// UpdateUser sets a new password for the signed-in user.
func (c *Client) UpdateUser(ctx context.Context, password string) (types.User, error) {
	if _, err := c.GetSession(ctx); err != nil {
		return types.User{}, err
	}
	token := c.AccessToken()
	if token == "" {
		return types.User{}, ErrNoSession
	}
	// The Provider publishes USER_UPDATED, which refreshes this client.
	return c.provider.UpdatePassword(ctx, token, password)
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return c.provider.ResetPasswordForEmail(ctx, email, redirectTo)
}

// ExchangeRecovery signs the client in with a recovery link token.
func (c *Client) ExchangeRecovery(ctx context.Context, token string) (types.Session, error) {
	session, err := c.provider.ExchangeRecovery(ctx, token)
	if err != nil {
		return types.Session{}, err
	}
	c.set(types.AuthEventPasswordRecovery, &session)
	return session, nil
}

// ConfirmEmail signs the client in with a confirmation link token.
func (c *Client) ConfirmEmail(ctx context.Context, token string) (types.Session, error) {
	session, err := c.provider.ConfirmEmail(ctx, token)
	if err != nil {
		return types.Session{}, err
	}
	c.set(types.AuthEventSignedIn, &session)
	return session, nil
}

// Close detaches the client from the Provider's events and drops listeners.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.hubCancel != nil {
		c.hubCancel()
		c.hubCancel = nil
	}
	c.listeners = make(map[int]func(types.AuthEvent, *types.Session))
}

func (c *Client) set(event types.AuthEvent, session *types.Session) {
	c.mu.Lock()
	c.session = session
	c.loaded = true
	c.gen++
	c.watchLocked()
	fns := c.snapshotLocked()
	c.mu.Unlock()

	emit(fns, event, session)
}

// clear drops the session and notifies SIGNED_OUT once per session.
func (c *Client) clear() {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.token = ""
	c.loaded = true
	c.gen++
	c.watchLocked()
	var fns []func(types.AuthEvent, *types.Session)
	if had {
		fns = c.snapshotLocked()
	}
	c.mu.Unlock()

	emit(fns, types.AuthEventSignedOut, nil)
}

func (c *Client) onChange(change Change) {
	c.mu.Lock()
	if c.closed || c.session == nil || c.session.ID != change.SessionID {
		c.mu.Unlock()
		return
	}

	switch change.Event {
	case types.AuthEventSignedOut:
		c.mu.Unlock()
		c.clear()
	case types.AuthEventUserUpdated:
		if change.Session == nil {
			c.mu.Unlock()
			return
		}
		updated := *c.session
		updated.User = change.Session.User
		c.session = &updated
		c.gen++
		fns := c.snapshotLocked()
		c.mu.Unlock()
		emit(fns, types.AuthEventUserUpdated, &updated)
	default:
		c.mu.Unlock()
	}
}

// watchLocked keeps the hub subscription on the current session's user.
func (c *Client) watchLocked() {
	if c.closed {
		return
	}
	user := ""
	if c.session != nil {
		user = c.session.User.ID
	}
	if user == c.hubUser && c.hubCancel != nil {
		return
	}
	if c.hubCancel != nil {
		c.hubCancel()
		c.hubCancel = nil
	}
	c.hubUser = user
	if user != "" {
		c.hubCancel = c.provider.Subscribe(user, c.onChange)
	}
}

func (c *Client) snapshotLocked() []func(types.AuthEvent, *types.Session) {
	fns := make([]func(types.AuthEvent, *types.Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func emit(fns []func(types.AuthEvent, *types.Session), event types.AuthEvent, session *types.Session) {
	for _, fn := range fns {
		fn(event, session)
	}
}
