package hal

import "fmt"

// Error is a hardware property service failure.
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

// Is matches any *Error carrying the same code, so callers can test
// against the sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeBadObject       = "BAD_OBJECT"
	ErrCodeUnknownProperty = "UNKNOWN_PROPERTY"
	ErrCodeUnspecified     = "UNSPECIFIED"
	ErrCodeNoDevice        = "NO_DEVICE"
	ErrCodeUnsupported     = "UNSUPPORTED"
)

var (
	ErrBadObject       = &Error{Code: ErrCodeBadObject, Message: "bad object"}
	ErrUnknownProperty = &Error{Code: ErrCodeUnknownProperty, Message: "unknown property"}
	ErrUnspecified     = &Error{Code: ErrCodeUnspecified, Message: "unspecified error"}
	ErrNoDevice        = &Error{Code: ErrCodeNoDevice, Message: "no device"}
	ErrUnsupported     = &Error{Code: ErrCodeUnsupported, Message: "unsupported"}
)

// NewError creates a new hardware error.
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// BadObject reports an operation against an object the service does not know.
func BadObject(id ObjectID) *Error {
	return NewError(ErrCodeBadObject, fmt.Sprintf("object %s", id), nil)
}
