package auth

import "errors"

// Authentication failures. Callers classify a failure with errors.Is; every
// error returned by Authenticator wraps exactly one of these.
var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrBadCredentials     = errors.New("bad credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountDisabled    = errors.New("account disabled")
)

// ErrUserNotFound is returned by UserStore implementations.
var ErrUserNotFound = errors.New("user not found")
