package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrTooLarge             = errors.New("too large")
	ErrMissingToken         = errors.New("missing token")
	ErrSessionExpired       = errors.New("session expired")
	ErrUnsupportedOperation = errors.New("operation not supported for this collection")
)

// Error kinds, aligned with the log error-type field values.
const (
	KindValidation = "validation_error"
	KindAuth       = "auth_error"
	KindServer     = "server_error"
	KindNetwork    = "network_error"
	KindInternal   = "internal_error"
)

// ValidationError is raised locally before any network call. The user
// can always recover by correcting the input.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// AuthError means the request cannot be made or was refused for lack of a
// valid session; consumers should send the user back to login.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// ServerError carries the backend's message when it provided one.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Status != 0 {
		return fmt.Sprintf("server error: HTTP %d %s", e.Status, http.StatusText(e.Status))
	}
	return "server error"
}

// NetworkError wraps a transport failure (offline, DNS, reset, timeout).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// NewValidationError wraps a sentinel validation error.
func NewValidationError(err error) error { return &ValidationError{Err: err} }

// NewAuthError wraps a sentinel auth error.
func NewAuthError(err error) error { return &AuthError{Err: err} }

// ErrorKind classifies err into one of the Kind* constants.
func ErrorKind(err error) string {
	var (
		validation *ValidationError
		auth       *AuthError
		server     *ServerError
		network    *NetworkError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &auth):
		return KindAuth
	case errors.As(err, &server):
		return KindServer
	case errors.As(err, &network):
		return KindNetwork
	default:
		return KindInternal
	}
}
