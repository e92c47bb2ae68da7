package breadbox

import "errors"

var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("not found")
	// ErrInternal is returned when an internal error occurs
	ErrInternal = errors.New("internal error")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned when authentication fails
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSignatureMismatch is returned when a signed URL fails verification,
	// including absent or malformed signature parameters.
	ErrSignatureMismatch = errors.New("url signature mismatch")
	// ErrGrantExpired is returned when a signed URL's expiry has passed.
	ErrGrantExpired = errors.New("signed url expired")
	// ErrExpiresTooLate is returned when a signed URL claims a lifetime
	// beyond the configured maximum.
	ErrExpiresTooLate = errors.New("signed url expires too late")
)
