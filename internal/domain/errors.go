package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing record, series, patron or subject.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied signals that the acting user may not see or do something.
	ErrAccessDenied = errors.New("access denied")
	// ErrUnavailable signals that a backing service (index, catalog, session store) is unreachable.
	ErrUnavailable = errors.New("service unavailable")
	// ErrInvalidRequest signals a request the service cannot interpret at all.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotImplemented signals an unsupported format or feature.
	ErrNotImplemented = errors.New("not implemented")
)

// AccessDeniedError wraps ErrAccessDenied and records whether the actor was signed in.
// Anonymous actors are sent to authentication, signed-in actors get a forbidden page.
type AccessDeniedError struct {
	Authenticated bool
	Reason        string
}

func (e *AccessDeniedError) Error() string {
	if e.Reason == "" {
		return ErrAccessDenied.Error()
	}
	return fmt.Sprintf("%s: %s", ErrAccessDenied.Error(), e.Reason)
}

func (e *AccessDeniedError) Unwrap() error { return ErrAccessDenied }

// NewAccessDenied creates an access denied error for the given actor.
func NewAccessDenied(actor *User, reason string) error {
	return &AccessDeniedError{Authenticated: actor != nil, Reason: reason}
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
