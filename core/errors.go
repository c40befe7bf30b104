package core

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Error kinds. Domain errors match one of them with errors.Is.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrSessionExpired         = errors.New("session expired")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
)

type kindError struct {
	kind error
	msg  string
}

// NewKindError returns an error reading msg that matches kind with errors.Is.
func NewKindError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string        { return e.msg }
func (e *kindError) Is(target error) bool { return target == e.kind }

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return fmt.Sprintf("%s: %s", err.Fields[0].Field, err.Fields[0].Error)
		}
		return "invalid input"
	}
	return err.Err.Error()
}

// ThrottledError is returned when a client exceeded its admission quota.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (err *ThrottledError) Error() string {
	return fmt.Sprintf("too many requests, retry in %s", err.RetryAfter.Round(time.Second))
}

// TransientError wraps a failure of a backing service that may succeed on retry.
type TransientError struct {
	Err error
}

func NewTransientError(err error) error {
	return &TransientError{Err: err}
}

func (err *TransientError) Error() string {
	if err.Err == nil {
		return "service temporarily unavailable"
	}
	return err.Err.Error()
}

func (err *TransientError) Unwrap() error { return err.Err }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
