package streams

import (
	"errors"
	"fmt"
)

// StreamError is a stream-definition error with a stable code.
type StreamError struct {
	Code    string
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Is matches any StreamError with the same code.
func (e *StreamError) Is(target error) bool {
	var t *StreamError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Error codes
const (
	ErrCodeStreamNotFound = "STREAM_NOT_FOUND"
	ErrCodeDeviceNotFound = "DEVICE_NOT_FOUND"
	ErrCodeStreamExists   = "STREAM_EXISTS"
	ErrCodeInvalidParams  = "INVALID_PARAMS"
	ErrCodeConfigError    = "CONFIG_ERROR"
)

var (
	ErrStreamNotFound = &StreamError{Code: ErrCodeStreamNotFound, Message: "stream not found"}
	ErrDeviceNotFound = &StreamError{Code: ErrCodeDeviceNotFound, Message: "device not found"}
	ErrStreamExists   = &StreamError{Code: ErrCodeStreamExists, Message: "stream already exists"}
	ErrInvalidParams  = &StreamError{Code: ErrCodeInvalidParams, Message: "invalid stream definition"}
	ErrConfig         = &StreamError{Code: ErrCodeConfigError, Message: "stream store failure"}
)

// NewStreamError creates a new stream error.
func NewStreamError(code, message string, cause error) *StreamError {
	return &StreamError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
