package tfm

import (
	"errors"
	"fmt"
)

var (
	// ErrServerURLNotConfigured is returned by every fetch operation before
	// any network I/O when the client has no server URL.
	ErrServerURLNotConfigured = errors.New("TFM server URL is not configured")

	// ErrSuperseded is returned to a paginated fetch whose accumulation was
	// discarded because a newer fetch started under the same request key.
	ErrSuperseded = errors.New("fetch superseded by a newer request for the same key")
)

// APIError is a protocol-level failure: the server answered, but with a
// success=false envelope or a body that is not a valid envelope at all.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s", e.Message)
}

// HTTPStatusError is a non-200 response outside the envelope protocol.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// NetworkError wraps transport-level failures of a single request.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error requesting %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
