package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the backend rejected the bearer token. The token
	// has already been dropped from the session when this is returned.
	ErrUnauthorized = errors.New("client: session expired or invalid")
	// ErrNetwork covers transport failures and an open circuit breaker.
	ErrNetwork = errors.New("client: backend unreachable")
	// ErrNoToken is returned by Login when the response carries no token.
	ErrNoToken = errors.New("client: login response did not include a token")
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
}

// StatusCode extracts the HTTP status behind err: 401 for ErrUnauthorized,
// the code of a StatusError, 0 otherwise.
func StatusCode(err error) int {
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsUnauthorized reports whether err came from a rejected bearer token.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
