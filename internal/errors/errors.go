package errors

import (
	"errors"
	"fmt"
)

// Common error kinds for the token broker. Handlers map these onto HTTP
// status codes; everything else is treated as an internal failure.
var (
	// Request errors
	ErrValidation = errors.New("invalid request")

	// Session errors
	ErrNotFound       = errors.New("session not found")
	ErrSessionExpired = errors.New("session expired")

	// Throttling
	ErrRateLimited = errors.New("rate limit exceeded")

	// Provider errors
	ErrUpstream = errors.New("upstream provider error")

	// Storage errors
	ErrPersistence = errors.New("persistence failure")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
