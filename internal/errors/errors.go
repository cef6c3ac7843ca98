package errors

import (
	"errors"
	"fmt"
)

// Common error types for the identity bridge
var (
	// Callback errors. All of them collapse to the same user-visible page.
	ErrMalformedState        = errors.New("malformed state")
	ErrSessionUnresolvable   = errors.New("session unresolvable")
	ErrStateMismatchOrDenied = errors.New("state mismatch or authorization denied")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")
	ErrTokenPersistFailed    = errors.New("failed to persist pending token")

	// Verification errors
	ErrCodeMismatch    = errors.New("verification code mismatch")
	ErrNoPendingToken  = errors.New("no pending token")
	ErrTooManyAttempts = errors.New("too many verification attempts")

	// Session errors
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionLoadFailed = errors.New("session load failed")

	// Provider errors
	ErrUnknownProvider = errors.New("unknown provider")
	ErrProfileFetch    = errors.New("profile fetch failed")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
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
