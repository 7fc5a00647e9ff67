// Package identity is the session store: credentials, sessions, email links
// and session-change notifications.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/brazeiro63/vovo-achados-portal/internal/metrics"
	"github.com/brazeiro63/vovo-achados-portal/internal/store"
	"github.com/brazeiro63/vovo-achados-portal/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Repository persists identities, sessions and link tokens.
type Repository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User, profile types.Profile) (types.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	ConfirmEmail(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	CreateSession(ctx context.Context, session types.SessionRecord) error
	GetSession(ctx context.Context, id string) (types.SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) ([]string, error)
	CreateToken(ctx context.Context, token types.AuthToken) error
	ConsumeToken(ctx context.Context, hash string, kind types.TokenKind, now time.Time) (string, error)
}

// LinkSender delivers recovery and confirmation links to the user's inbox.
type LinkSender interface {
	SendLink(ctx context.Context, link types.AuthLink) error
}

// Options configures a Provider.
type Options struct {
	Secret     string
	SessionTTL time.Duration
	LinkTTL    time.Duration
	// BaseURL is used for links when the caller gives no redirect target.
	BaseURL string
	Logger  *slog.Logger
	Metrics metrics.Recorder
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

const (
	defaultSessionTTL = 7 * 24 * time.Hour
	defaultLinkTTL    = time.Hour
)

// Provider is the server side of the session store.
type Provider struct {
	repo       Repository
	links      LinkSender
	hub        *Hub
	secret     []byte
	sessionTTL time.Duration
	linkTTL    time.Duration
	baseURL    string
	bcryptCost int
	logger     *slog.Logger
	metrics    metrics.Recorder
	now        func() time.Time
}

func NewProvider(repo Repository, links LinkSender, opts Options) *Provider {
	p := &Provider{
		repo:       repo,
		links:      links,
		hub:        NewHub(),
		secret:     []byte(opts.Secret),
		sessionTTL: opts.SessionTTL,
		linkTTL:    opts.LinkTTL,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		bcryptCost: opts.BcryptCost,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        time.Now,
	}
	if p.sessionTTL <= 0 {
		p.sessionTTL = defaultSessionTTL
	}
	if p.linkTTL <= 0 {
		p.linkTTL = defaultLinkTTL
	}
	if p.bcryptCost == 0 {
		p.bcryptCost = bcrypt.DefaultCost
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.metrics == nil {
		p.metrics = metrics.Nop{}
	}
	return p
}

// SignUpParams are the fields of the registration form.
type SignUpParams struct {
	Email    string
	Password string
	Username string
	FullName string
	// RequireConfirmation withholds the session until the user follows the
	// confirmation link.
	RequireConfirmation bool
	// RedirectTo is where the confirmation link points.
	RedirectTo string
}

// SignUp creates the user and its profile. It returns a session unless
// confirmation is required.
func (p *Provider) SignUp(ctx context.Context, params SignUpParams) (*types.Session, types.User, error) {
	email, err := normalizeEmail(params.Email)
	if err != nil {
		return nil, types.User{}, err
	}
	if len(params.Password) < MinPasswordLength {
		return nil, types.User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), p.bcryptCost)
	if err != nil {
		return nil, types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := types.User{Email: email, PasswordHash: string(hash)}
	if !params.RequireConfirmation {
		now := p.now()
		user.EmailConfirmedAt = &now
	}

	user, err = p.repo.Create(ctx, user, types.Profile{
		Username: strings.TrimSpace(params.Username),
		FullName: strings.TrimSpace(params.FullName),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, types.User{}, ErrUserAlreadyExists
		}
		return nil, types.User{}, err
	}
	p.logger.Info("user registered", slog.String("user_id", user.ID), slog.Bool("confirmed", user.Confirmed()))

	if params.RequireConfirmation {
		target := params.RedirectTo
		if target == "" {
			target = p.baseURL + "/auth/confirm"
		}
		if err := p.sendLink(ctx, user, types.TokenConfirmation, target, false); err != nil {
			return nil, user, err
		}
		return nil, user, nil
	}

	session, err := p.createSession(ctx, user)
	if err != nil {
		return nil, user, err
	}
	p.publish(Change{Event: types.AuthEventSignedIn, UserID: user.ID, SessionID: session.ID})
	return &session, user, nil
}

// SignIn verifies the password and opens a new session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (types.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return types.Session{}, ErrInvalidCredentials
	}

	user, err := p.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Session{}, ErrInvalidCredentials
		}
		return types.Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.Session{}, ErrInvalidCredentials
	}
	if !user.Confirmed() {
		return types.Session{}, ErrEmailNotConfirmed
	}

	session, err := p.createSession(ctx, user)
	if err != nil {
		return types.Session{}, err
	}
	p.publish(Change{Event: types.AuthEventSignedIn, UserID: user.ID, SessionID: session.ID})
	return session, nil
}

// GetSession resolves an access token. Missing, malformed, revoked and
// expired tokens all yield a nil session without error.
func (p *Provider) GetSession(ctx context.Context, accessToken string) (*types.Session, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, nil
	}
	claims, err := parseAccessToken(accessToken, p.secret)
	if err != nil {
		return nil, nil
	}

	record, err := p.repo.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if record.UserID != claims.Subject || !p.now().Before(record.ExpiresAt) {
		return nil, nil
	}

	user, err := p.repo.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &types.Session{
		ID:          record.ID,
		AccessToken: accessToken,
		ExpiresAt:   record.ExpiresAt,
		User:        user,
	}, nil
}

// SignOut revokes the session behind the access token.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := parseAccessToken(accessToken, p.secret)
	if err != nil {
		return ErrNoSession
	}
	if err := p.repo.DeleteSession(ctx, claims.SessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoSession
		}
		return err
	}
	p.publish(Change{Event: types.AuthEventSignedOut, UserID: claims.Subject, SessionID: claims.SessionID})
	return nil
}

// UpdatePassword replaces the password of the session's user.
func (p *Provider) UpdatePassword(ctx context.Context, accessToken, password string) (types.User, error) {
	session, err := p.GetSession(ctx, accessToken)
	if err != nil {
		return types.User{}, err
	}
	if session == nil {
		return types.User{}, ErrNoSession
	}
	if len(password) < MinPasswordLength {
		return types.User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}
	if err := p.repo.UpdatePassword(ctx, session.User.ID, string(hash)); err != nil {
		return types.User{}, err
	}

	user := session.User
	user.PasswordHash = string(hash)
	user.UpdatedAt = p.now()
	session.User = user
	p.logger.Info("password updated", slog.String("user_id", user.ID))
	p.publish(Change{Event: types.AuthEventUserUpdated, UserID: user.ID, SessionID: session.ID, Session: session})
	return user, nil
}

// ResetPasswordForEmail sends a recovery link. Unknown addresses are
// answered the same way as known ones.
func (p *Provider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	user, err := p.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Info("recovery requested for unknown email")
			return nil
		}
		return err
	}
	if redirectTo == "" {
		redirectTo = p.baseURL + "/reset-password"
	}
	return p.sendLink(ctx, user, types.TokenRecovery, redirectTo, true)
}

// ExchangeRecovery trades a recovery link token for a session.
func (p *Provider) ExchangeRecovery(ctx context.Context, token string) (types.Session, error) {
	user, err := p.consumeLink(ctx, token, types.TokenRecovery)
	if err != nil {
		return types.Session{}, err
	}
	session, err := p.createSession(ctx, user)
	if err != nil {
		return types.Session{}, err
	}
	p.publish(Change{Event: types.AuthEventPasswordRecovery, UserID: user.ID, SessionID: session.ID})
	return session, nil
}

// ConfirmEmail marks the address verified and opens a session.
func (p *Provider) ConfirmEmail(ctx context.Context, token string) (types.Session, error) {
	user, err := p.consumeLink(ctx, token, types.TokenConfirmation)
	if err != nil {
		return types.Session{}, err
	}
	session, err := p.createSession(ctx, user)
	if err != nil {
		return types.Session{}, err
	}
	p.publish(Change{Event: types.AuthEventSignedIn, UserID: user.ID, SessionID: session.ID})
	return session, nil
}

// RevokeUserSessions signs the user out everywhere.
func (p *Provider) RevokeUserSessions(ctx context.Context, userID string) error {
	ids, err := p.repo.DeleteUserSessions(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		p.publish(Change{Event: types.AuthEventSignedOut, UserID: userID, SessionID: id})
	}
	return nil
}

// DeleteUser revokes every session of the user, then removes it with its profile.
func (p *Provider) DeleteUser(ctx context.Context, userID string) error {
	if err := p.RevokeUserSessions(ctx, userID); err != nil {
		return err
	}
	return p.repo.Delete(ctx, userID)
}

// Subscribe registers fn for session changes of userID.
func (p *Provider) Subscribe(userID string, fn func(Change)) func() {
	return p.hub.Subscribe(userID, fn)
}

func (p *Provider) createSession(ctx context.Context, user types.User) (types.Session, error) {
	now := p.now()
	record := types.SessionRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(p.sessionTTL),
	}
	if err := p.repo.CreateSession(ctx, record); err != nil {
		return types.Session{}, fmt.Errorf("create session: %w", err)
	}
	token, err := issueAccessToken(user.ID, record.ID, p.secret, now, record.ExpiresAt)
	if err != nil {
		return types.Session{}, fmt.Errorf("issue token: %w", err)
	}
	return types.Session{
		ID:          record.ID,
		AccessToken: token,
		ExpiresAt:   record.ExpiresAt,
		User:        user,
	}, nil
}

// sendLink stores a fresh token and hands the link to the LinkSender. Recovery
// links carry the token in the URL fragment, confirmation links in the query.
func (p *Provider) sendLink(ctx context.Context, user types.User, kind types.TokenKind, target string, fragment bool) error {
	raw, hash, err := newLinkToken()
	if err != nil {
		return err
	}
	expiresAt := p.now().Add(p.linkTTL)
	if err := p.repo.CreateToken(ctx, types.AuthToken{Hash: hash, Kind: kind, UserID: user.ID, ExpiresAt: expiresAt}); err != nil {
		return fmt.Errorf("store %s token: %w", kind, err)
	}

	link, err := buildLink(target, raw, kind, fragment)
	if err != nil {
		return err
	}
	if err := p.links.SendLink(ctx, types.AuthLink{Kind: kind, Email: user.Email, URL: link, ExpiresAt: expiresAt}); err != nil {
		return fmt.Errorf("send %s link: %w", kind, err)
	}
	p.logger.Info("auth link issued", slog.String("user_id", user.ID), slog.String("kind", string(kind)))
	return nil
}

func (p *Provider) consumeLink(ctx context.Context, token string, kind types.TokenKind) (types.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return types.User{}, ErrInvalidLink
	}
	now := p.now()
	userID, err := p.repo.ConsumeToken(ctx, hashLinkToken(token), kind, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidLink
		}
		return types.User{}, err
	}
	user, err := p.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidLink
		}
		return types.User{}, err
	}
	// Following any emailed link proves ownership of the address.
	if !user.Confirmed() {
		if err := p.repo.ConfirmEmail(ctx, user.ID, now); err != nil {
			return types.User{}, err
		}
		user.EmailConfirmedAt = &now
	}
	return user, nil
}

func (p *Provider) publish(change Change) {
	p.metrics.RecordAuthEvent(string(change.Event))
	p.hub.Publish(change)
}

func buildLink(target, token string, kind types.TokenKind, fragment bool) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid redirect: %w", err)
	}
	v := url.Values{}
	v.Set("type", string(kind))
	if fragment {
		v.Set("access_token", token)
		u.Fragment = ""
		u.RawFragment = ""
		return u.String() + "#" + v.Encode(), nil
	}
	v.Set("token", token)
	q := u.Query()
	for k, vals := range v {
		q[k] = vals
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
