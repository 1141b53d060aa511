package ryepay

import "fmt"

// Error represents a checkout-specific error
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Common error codes
const (
	// ErrCodeBadAuthorization means the supplied credential was malformed or
	// its audience claim matched no configured environment.
	ErrCodeBadAuthorization = "BAD_AUTHORIZATION"
	// ErrCodeInvalidConfig means a required init parameter was missing.
	ErrCodeInvalidConfig = "INVALID_CONFIG"
	// ErrCodeNotReady means an operation was attempted before initialization completed.
	ErrCodeNotReady = "NOT_READY"
	// ErrCodeLoadFailed means a third-party SDK failed to load.
	ErrCodeLoadFailed = "LOAD_FAILED"
	// ErrCodeInternal means a programmer error, e.g. no credential generator registered.
	ErrCodeInternal = "INTERNAL"
)

// NewError creates a new checkout error
func NewError(code, message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WrapError creates a new checkout error that wraps an underlying cause
func WrapError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}
