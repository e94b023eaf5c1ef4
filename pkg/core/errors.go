package core

import (
	"errors"
	"fmt"
)

// Error represents a categorized livenotes error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`

	// RequestID is set by the HTTP bridge when the error is returned to a client.
	RequestID string `json:"request_id,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrDeviceUnavailable  ErrorType = "device_unavailable"
	ErrChannel            ErrorType = "channel_error"
	ErrChannelAlreadyOpen ErrorType = "channel_already_open"
	ErrToolCallMalformed  ErrorType = "tool_call_malformed"
	ErrFinalizeFailed     ErrorType = "finalize_failed"
	ErrPersistenceFailed  ErrorType = "persistence_failed"
	ErrInvalidState       ErrorType = "invalid_state"
	ErrInvalidRequest     ErrorType = "invalid_request_error"
	ErrNotFound           ErrorType = "not_found_error"
	ErrAPI                ErrorType = "api_error"
)

// NewDeviceUnavailableError reports that the capture device could not be opened.
// It is never retried.
func NewDeviceUnavailableError(message string, cause error) *Error {
	return &Error{Type: ErrDeviceUnavailable, Message: message, cause: cause}
}

// NewChannelError reports a transport or protocol failure on the streaming channel.
func NewChannelError(message string, cause error) *Error {
	return &Error{Type: ErrChannel, Message: message, cause: cause}
}

// NewChannelAlreadyOpenError is returned when a second handle is requested from an adapter.
func NewChannelAlreadyOpenError() *Error {
	return &Error{Type: ErrChannelAlreadyOpen, Message: "streaming channel is already open"}
}

// NewToolCallMalformedError describes a dropped tool invocation.
func NewToolCallMalformedError(name, message string) *Error {
	return &Error{Type: ErrToolCallMalformed, Message: message, Param: name}
}

// NewFinalizeFailedError wraps a summarization failure.
func NewFinalizeFailedError(cause error) *Error {
	msg := "finalize failed"
	if cause != nil {
		msg = fmt.Sprintf("finalize failed: %v", cause)
	}
	return &Error{Type: ErrFinalizeFailed, Message: msg, cause: cause}
}

// NewPersistenceFailedError wraps a history save/load failure.
func NewPersistenceFailedError(op string, cause error) *Error {
	return &Error{Type: ErrPersistenceFailed, Message: fmt.Sprintf("%s: %v", op, cause), Code: op, cause: cause}
}

// NewInvalidStateError reports a command that is not allowed in the current session state.
func NewInvalidStateError(message, code string) *Error {
	return &Error{Type: ErrInvalidState, Message: message, Code: code}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewAPIError creates a generic error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// UserVisible reports whether the error should be surfaced to the person recording.
func (e *Error) UserVisible() bool {
	switch e.Type {
	case ErrDeviceUnavailable, ErrChannel, ErrInvalidState:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.cause
}

// TypeOf returns the ErrorType of err, or "" when err is not a *Error.
func TypeOf(err error) ErrorType {
	var ce *Error
	if errors.As(err, &ce) && ce != nil {
		return ce.Type
	}
	return ""
}

func IsDeviceUnavailable(err error) bool { return TypeOf(err) == ErrDeviceUnavailable }

func IsChannelError(err error) bool { return TypeOf(err) == ErrChannel }

func IsChannelAlreadyOpen(err error) bool { return TypeOf(err) == ErrChannelAlreadyOpen }

func IsInvalidState(err error) bool { return TypeOf(err) == ErrInvalidState }

func IsNotFound(err error) bool { return TypeOf(err) == ErrNotFound }
