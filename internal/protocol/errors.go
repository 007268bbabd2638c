package protocol

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error that occurred on the device
// link or while handling relay messages.
type ErrorType int

const (
	// ErrTypeConnectionFailed indicates the TCP connection could not be opened
	ErrTypeConnectionFailed ErrorType = iota
	// ErrTypeHandshakeFailed indicates bytes were received but no upgrade acceptance
	ErrTypeHandshakeFailed
	// ErrTypeHandshakeTimeout indicates nothing was received before the handshake deadline
	ErrTypeHandshakeTimeout
	// ErrTypeConnectionClosed indicates the peer closed or the session is not connected
	ErrTypeConnectionClosed
	// ErrTypeReadError indicates a failed or timed out read
	ErrTypeReadError
	// ErrTypeSendFailed indicates a failed frame write
	ErrTypeSendFailed
	// ErrTypeKeyGenerationFailed indicates the random source could not produce a key
	ErrTypeKeyGenerationFailed
	// ErrTypeFrameCreationFailed indicates a payload could not be framed (too large)
	ErrTypeFrameCreationFailed
	// ErrTypePayloadParse indicates a JSON body did not match the expected schema
	ErrTypePayloadParse
	// ErrTypeZoneOutOfRange indicates a zone index outside the configured bank
	ErrTypeZoneOutOfRange
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeConnectionFailed:
		return "Connection Failed"
	case ErrTypeHandshakeFailed:
		return "Handshake Failed"
	case ErrTypeHandshakeTimeout:
		return "Handshake Timeout"
	case ErrTypeConnectionClosed:
		return "Connection Closed"
	case ErrTypeReadError:
		return "Read Error"
	case ErrTypeSendFailed:
		return "Send Failed"
	case ErrTypeKeyGenerationFailed:
		return "Key Generation Failed"
	case ErrTypeFrameCreationFailed:
		return "Frame Creation Failed"
	case ErrTypePayloadParse:
		return "Payload Parse Error"
	case ErrTypeZoneOutOfRange:
		return "Zone Out Of Range"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is the single error type surfaced by the frame codec, handshake,
// transport session, relay routing and zone driver.
type Error struct {
	Type    ErrorType // Category of error
	Message string    // Human-readable error message
	Err     error     // Underlying error (if any)

	timeout bool
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the error was caused by a deadline expiring.
func (e *Error) Timeout() bool {
	return e.timeout
}

// NewError creates an error of the given type.
func NewError(t ErrorType, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// NewTimeoutError creates a read error flagged as a deadline expiry.
func NewTimeoutError(message string, err error) *Error {
	return &Error{Type: ErrTypeReadError, Message: message, Err: err, timeout: true}
}

// IsType checks if err (or anything it wraps) is an *Error of type t
func IsType(err error, t ErrorType) bool {
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return protoErr.Type == t
	}
	return false
}

// IsTimeout checks if err is a read that hit its deadline
func IsTimeout(err error) bool {
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return protoErr.timeout
	}
	return false
}

// TypeOf returns the error type of err, if it is an *Error.
func TypeOf(err error) (ErrorType, bool) {
	var protoErr *Error
	if errors.As(err, &protoErr) {
		return protoErr.Type, true
	}
	return 0, false
}
