package localdb

import (
	"errors"
	"fmt"
)

// Error codes for engine operations.
const (
	ErrCodeEngineSetup      = "ENGINE_SETUP"
	ErrCodeEngineNotRunning = "ENGINE_NOT_RUNNING"
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeEngineNotFound   = "ENGINE_NOT_FOUND"
)

// Error represents a database engine error with a code.
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

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsFatalSetup reports whether err means the engine could not be created or
// started.
func IsFatalSetup(err error) bool {
	return HasCode(err, ErrCodeEngineSetup)
}
