package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session id does not resolve.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMessageNotFound is returned when a message id does not resolve within its session.
	ErrMessageNotFound = errors.New("message not found")
	// ErrTurnInProgress is returned when a session already has a live turn.
	ErrTurnInProgress = errors.New("a turn is already in progress for this session")
	// ErrNoPendingApproval is returned when an approval references no pending tool call.
	ErrNoPendingApproval = errors.New("no pending tool call with that id")
	// ErrApprovalOutstanding is returned when a second tool request arrives while one is pending.
	ErrApprovalOutstanding = errors.New("a tool call is already awaiting approval")
	// ErrConnectionNotFound is returned for operations on an unknown connection id.
	ErrConnectionNotFound = errors.New("connection not found")
)

// StorageError represents errors accessing the chat database
type StorageError struct {
	Path string
	Op   string // "open", "migrate", "query", "write"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DecodeError represents a malformed frame in an event stream
type DecodeError struct {
	Frame string
	Err   error
}

func (e *DecodeError) Error() string {
	frame := e.Frame
	if len(frame) > 80 {
		frame = frame[:77] + "..."
	}
	return fmt.Sprintf("decode error [%s]: %v", frame, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TransportError represents a failed request to the station backend
type TransportError struct {
	Endpoint   string
	StatusCode int // zero when the request never got a response
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("transport error %s (%d): %s", e.Endpoint, e.StatusCode, e.Detail)
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("transport error %s (%d): %v", e.Endpoint, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport error %s (%d)", e.Endpoint, e.StatusCode)
	default:
		return fmt.Sprintf("transport error %s: %v", e.Endpoint, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConnectionError represents a tool-server connection failure
type ConnectionError struct {
	ConnectionID string
	Target       string
	Err          error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error [%s] %s: %v", e.ConnectionID, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
