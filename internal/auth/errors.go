package auth

import (
	"errors"
	"fmt"
)

// Error kinds
var (
	ErrMissingCredential   = errors.New("missing credential")
	ErrRefreshRejected     = errors.New("refresh rejected")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Error is returned when an access token cannot be obtained. It is fatal to
// an upload batch.
type Error struct {
	Kind  error
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth: %v: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("auth: %v", e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
