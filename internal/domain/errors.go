package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveTimer      = errors.New("no active timer")
	ErrAccountNotFound    = errors.New("account not found")
	ErrEntryNotFound      = errors.New("time entry not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrNoAccountSelected  = errors.New("no account selected")
	ErrAlreadySynced      = errors.New("time entry already synced")
	ErrEntryRunning       = errors.New("time entry is still running")
)

// Remote API failures.
var (
	ErrInvalidURL   = errors.New("invalid jira url")
	ErrUnauthorized = errors.New("unauthorized, check the api token")
)

// ServerError is any non-2xx response other than 401.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Body)
}

// NetworkError wraps a transport failure, including timeouts.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// DecodingError is a response body that did not have the expected shape.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string { return "failed to parse response: " + e.Err.Error() }
func (e *DecodingError) Unwrap() error { return e.Err }

// IsRemoteError reports whether err came from the remote API call.
func IsRemoteError(err error) bool {
	var (
		se *ServerError
		ne *NetworkError
		de *DecodingError
	)
	return errors.Is(err, ErrInvalidURL) || errors.Is(err, ErrUnauthorized) ||
		errors.As(err, &se) || errors.As(err, &ne) || errors.As(err, &de)
}
