package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the identifier/secret pair is rejected
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrDuplicateAccount is returned when signing up with a registered email
	ErrDuplicateAccount = errors.New("email already registered")
	// ErrUnconfirmed is returned when signing in before confirming the email
	ErrUnconfirmed = errors.New("email not confirmed")
	// ErrInvalidInput is returned when the identifier or secret fails validation
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransport is returned when the auth backend cannot be reached
	ErrTransport = errors.New("auth backend unavailable")
)

// AuthError is the error returned by every credential operation. Kind is one
// of the sentinels above, so callers can use errors.Is(err, ErrUnconfirmed).
type AuthError struct {
	Op   string
	Kind error
	Err  error
}

// NewAuthError builds an AuthError of the given kind
func NewAuthError(op string, kind, err error) *AuthError {
	return &AuthError{Op: op, Kind: kind, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *AuthError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// asAuthError returns err as an *AuthError, classifying anything else as a
// transport failure.
func asAuthError(op string, err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return NewAuthError(op, ErrTransport, err)
}
