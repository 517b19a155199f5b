package blaslt

import (
	"fmt"
)

// Status is the result code of a library call. Every Status is also an
// error value, so errors.Is(err, StatusInvalidValue) matches any *Error
// carrying that status.
type Status int

const (
	StatusSuccess Status = iota
	StatusNotInitialized
	StatusAllocFailed
	StatusInvalidValue
	StatusNotSupported
	StatusExecutionFailed
	StatusInternalError
)

// Error implements error
func (s Status) Error() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotInitialized:
		return "not initialized"
	case StatusAllocFailed:
		return "allocation failed"
	case StatusInvalidValue:
		return "invalid value"
	case StatusNotSupported:
		return "not supported"
	case StatusExecutionFailed:
		return "execution failed"
	case StatusInternalError:
		return "internal error"
	default:
		return fmt.Sprintf("status %d", int(s))
	}
}

// Error is a failed library call
type Error struct {
	Status  Status
	Op      string // Operation that failed
	Message string // Human-readable message
	Err     error  // Underlying error if any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("blaslt %s: %s: %s (caused by: %v)", e.Op, e.Status.Error(), e.Message, e.Err)
	}
	return fmt.Sprintf("blaslt %s: %s: %s", e.Op, e.Status.Error(), e.Message)
}

// Unwrap allows error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Status target
func (e *Error) Is(target error) bool {
	s, ok := target.(Status)
	return ok && s == e.Status
}

func newError(status Status, op, format string, args ...interface{}) error {
	return &Error{
		Status:  status,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

func wrapError(status Status, op string, err error, format string, args ...interface{}) error {
	return &Error{
		Status:  status,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
