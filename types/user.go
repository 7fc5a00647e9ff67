package types

import "time"

// User is an identity held by the session store.
// It carries credentials and email verification state, not authorization.
type User struct {
	// ID is the unique identifier of the user (uuid).
	ID string `json:"id" db:"id"`

	// Email is the login address of the user. Stored lower-cased.
	Email string `json:"email" db:"email"`

	// EmailConfirmedAt is set once the user followed the confirmation link.
	// A nil value means the address was never verified.
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty" db:"email_confirmed_at"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent credential change.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Confirmed reports whether the user verified their email address.
func (u User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Session is an authenticated session issued by the session store.
type Session struct {
	// ID identifies the session row; the access token embeds it.
	ID string `json:"id"`

	// AccessToken is the signed bearer token for this session.
	AccessToken string `json:"access_token"`

	// ExpiresAt is when the session stops being accepted.
	ExpiresAt time.Time `json:"expires_at"`

	// User is the identity the session belongs to.
	User User `json:"user"`
}

// SessionRecord is the persisted form of a Session.
type SessionRecord struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// TokenKind distinguishes single-use links sent by email.
type TokenKind string

const (
	TokenRecovery     TokenKind = "recovery"
	TokenConfirmation TokenKind = "confirmation"
)

// AuthToken is a single-use, hashed link token.
type AuthToken struct {
	// Hash is the SHA-256 hex digest of the token; the raw token is only
	// ever sent to the user.
	Hash      string     `db:"token_hash"`
	Kind      TokenKind  `db:"kind"`
	UserID    string     `db:"user_id"`
	ExpiresAt time.Time  `db:"expires_at"`
	UsedAt    *time.Time `db:"used_at"`
}

// AuthLink is an email-bound link produced by the session store
// (password recovery or address confirmation).
type AuthLink struct {
	Kind      TokenKind `json:"kind"`
	Email     string    `json:"email"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthEvent names a session change notified to listeners.
type AuthEvent string

const (
	AuthEventInitialSession   AuthEvent = "INITIAL_SESSION"
	AuthEventSignedIn         AuthEvent = "SIGNED_IN"
	AuthEventSignedOut        AuthEvent = "SIGNED_OUT"
	AuthEventUserUpdated      AuthEvent = "USER_UPDATED"
	AuthEventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)
