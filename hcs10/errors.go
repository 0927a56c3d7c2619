package hcs10

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAgent indicates a referenced account id or topic is not known
	// to the directory.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrCapacityExceeded indicates the target agent is at its connection
	// limit. Only the offending request fails; existing sessions are
	// untouched.
	ErrCapacityExceeded = errors.New("connection capacity exceeded")

	// ErrMalformed indicates a memo or envelope that does not parse to
	// exactly one valid operation. Readers log and drop; they never crash.
	ErrMalformed = errors.New("malformed hcs-10 payload")

	// ErrProtocolViolation indicates an operation that is not valid for the
	// current session state.
	ErrProtocolViolation = errors.New("protocol violation")
)

// MalformedError describes why an input failed to decode.
type MalformedError struct {
	Input  string
	Reason string
}

// Error returns a human-readable description of the decode failure.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed payload %q: %s", e.Input, e.Reason)
}

// Unwrap returns ErrMalformed for errors.Is compatibility.
func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}

func malformed(input, format string, args ...any) error {
	return &MalformedError{Input: input, Reason: fmt.Sprintf(format, args...)}
}
