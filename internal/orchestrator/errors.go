package orchestrator

import (
	"errors"
	"fmt"
)

// Error codes for orchestrator operations.
const (
	ErrCodeAlreadyRunning     = "ALREADY_RUNNING"
	ErrCodeInstanceNotFound   = "INSTANCE_NOT_FOUND"
	ErrCodeExecutableNotFound = "EXECUTABLE_NOT_FOUND"
	ErrCodeInstanceRunning    = "INSTANCE_RUNNING"
	ErrCodeNotRunning         = "NOT_RUNNING"
	ErrCodeShutDown           = "SHUT_DOWN"
)

// Error represents an orchestrator error with a code.
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

// IsPrecondition reports whether Start was rejected before anything was
// launched: already running, unknown instance or missing web server.
func IsPrecondition(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case ErrCodeAlreadyRunning, ErrCodeInstanceNotFound, ErrCodeExecutableNotFound:
		return true
	}
	return false
}
