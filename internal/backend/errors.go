package backend

import "fmt"

// Error is a stream or context operation failure.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is works against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeReinitInProgress   = "REINIT_IN_PROGRESS"
	ErrCodeInvalidState       = "INVALID_STATE"
	ErrCodeInvalidParams      = "INVALID_PARAMS"
	ErrCodeNoDevice           = "NO_DEVICE"
	ErrCodeClosed             = "CLOSED"
	ErrCodeDeviceDisconnected = "DEVICE_DISCONNECTED"
	ErrCodeStreamNotFound     = "STREAM_NOT_FOUND"
	ErrCodeStreamExists       = "STREAM_EXISTS"
)

var (
	ErrReinitInProgress   = &Error{Code: ErrCodeReinitInProgress, Message: "device switch in progress"}
	ErrInvalidState       = &Error{Code: ErrCodeInvalidState, Message: "invalid stream state"}
	ErrInvalidParams      = &Error{Code: ErrCodeInvalidParams, Message: "invalid stream parameters"}
	ErrNoDevice           = &Error{Code: ErrCodeNoDevice, Message: "no device"}
	ErrClosed             = &Error{Code: ErrCodeClosed, Message: "closed"}
	ErrDeviceDisconnected = &Error{Code: ErrCodeDeviceDisconnected, Message: "pinned device disconnected"}
	ErrStreamNotFound     = &Error{Code: ErrCodeStreamNotFound, Message: "stream not found"}
)

// NewError creates a new backend error.
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
