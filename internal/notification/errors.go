package notification

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("notification not found")
)

// APIError is a non-2xx answer from the notification API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d message=%q", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d", e.StatusCode)
}
