package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is returned when a call needs a token and the client has none.
var ErrUnauthenticated = errors.New("client is not authenticated")

// NetworkError reports a transport, auth, or server failure. All NetworkErrors
// are retryable from the user's point of view.
type NetworkError struct {
	// Op names the API call (e.g. "conversations").
	Op string
	// Status is the HTTP status, or zero when no response was received.
	Status int
	// Err is the underlying cause.
	Err error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server returned %d %s: %v", e.Op, e.Status, http.StatusText(e.Status), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether the server rejected the credentials.
func (e *NetworkError) IsAuthFailure() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden || errors.Is(e.Err, ErrUnauthenticated)
}

// IsNetworkError reports whether err wraps a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
