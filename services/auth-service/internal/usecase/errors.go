package usecase

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the usecases that the caller is
// expected to act on wraps exactly one of these.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrThrottled    = errors.New("too many requests")
)

// Identity resolution errors.
var (
	ErrInvalidProfile   = fmt.Errorf("%w: incomplete provider profile", ErrUnauthorized)
	ErrAccountDisabled  = fmt.Errorf("%w: account disabled", ErrUnauthorized)
	ErrEmailRequired    = fmt.Errorf("%w: provider did not return an email address", ErrUnauthorized)
	ErrInvalidAccount   = fmt.Errorf("%w: invalid account", ErrUnauthorized)
	ErrDuplicateEmail   = fmt.Errorf("%w: an account with this email already exists", ErrConflict)
	ErrIdentityLinked   = fmt.Errorf("%w: provider identity is linked to another account", ErrConflict)
	ErrLastAuthMethod   = fmt.Errorf("%w: cannot remove the last sign-in method, set a password first", ErrConflict)
	ErrConcurrentUpdate = fmt.Errorf("%w: account was modified concurrently", ErrConflict)
)

// Session errors.
var (
	ErrInvalidSession = fmt.Errorf("%w: invalid session", ErrUnauthorized)
	ErrSessionRevoked = fmt.Errorf("%w: session revoked", ErrUnauthorized)
)

// Password recovery errors.
var (
	ErrTooManyRequests  = fmt.Errorf("%w: too many password reset requests", ErrThrottled)
	ErrInvalidToken     = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrExpiredToken     = fmt.Errorf("%w: expired token", ErrUnauthorized)
	ErrWeakPassword     = fmt.Errorf("%w: password does not meet the policy", ErrUnauthorized)
	ErrPasswordMismatch = fmt.Errorf("%w: passwords do not match", ErrUnauthorized)
)

// IsResetValidationError reports whether err is a user input problem of the
// reset flow rather than an authentication failure.
func IsResetValidationError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrWeakPassword) ||
		errors.Is(err, ErrPasswordMismatch)
}
