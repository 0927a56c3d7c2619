package topic

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable indicates a transport failure or timeout talking to the
	// consensus service. Retryable; the core never retries it silently.
	ErrUnavailable = errors.New("topic service unavailable")

	// ErrNotFound indicates the referenced topic does not exist.
	ErrNotFound = errors.New("topic not found")
)

// UnavailableError carries the underlying transport failure.
type UnavailableError struct {
	Op      string
	TopicID ID
	Err     error
}

// Error returns a human-readable description of the failure.
func (e *UnavailableError) Error() string {
	if e.TopicID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.TopicID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns ErrUnavailable for errors.Is compatibility.
func (e *UnavailableError) Unwrap() error {
	return ErrUnavailable
}

func unavailable(op string, topicID ID, err error) error {
	return &UnavailableError{Op: op, TopicID: topicID, Err: err}
}
