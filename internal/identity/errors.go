package identity

import "errors"

// MinPasswordLength is the shortest password the store accepts.
const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrUserAlreadyExists  = errors.New("user already registered")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	// ErrNoSession is returned by calls that need a live session.
	ErrNoSession = errors.New("auth session missing")
	// ErrInvalidLink is returned for unknown, used or expired link tokens.
	ErrInvalidLink = errors.New("link is invalid or has expired")
)
