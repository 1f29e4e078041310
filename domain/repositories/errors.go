package repositories

import (
	"errors"
	"fmt"
)

// ErrTimeout indicates a provider call exceeded its deadline.
var ErrTimeout = errors.New("provider request timed out")

// ErrConnection indicates the provider could not be reached or the
// connection dropped mid-stream.
var ErrConnection = errors.New("provider connection failed")

// APIStatusError reports a non-success response from a provider API.
type APIStatusError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIStatusError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("provider returned status %d: %s (request %s)", e.StatusCode, e.Message, e.RequestID)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// AsStatusError unwraps an APIStatusError from err, if present.
func AsStatusError(err error) (*APIStatusError, bool) {
	var se *APIStatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
