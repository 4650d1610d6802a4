package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeUnavailable        = "unavailable"
	ErrCodeRateLimited        = "rate_limited"
)

var (
	// ErrDraining is returned when an action arrives after shutdown began.
	ErrDraining = errors.New("coordinator is draining")
	// ErrSlowConsumer is returned when a connection's outbound queue is full.
	ErrSlowConsumer = errors.New("slow consumer")
	// ErrConnectionClosed is returned when delivering to a connection that is gone.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrCommitPanic marks a command processor that panicked mid-commit.
	ErrCommitPanic = errors.New("commit panicked")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorEvent builds a unicast error event for a single connection.
func ErrorEvent(code, msg string) *Event {
	return &Event{Kind: EventError, Error: coreError(code, msg)}
}
