package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrValidation   = errors.New("validation failed")
)

// Processing error kinds. Match with errors.Is.
var (
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrDecode              = errors.New("decode error")
	ErrRecognition         = errors.New("recognition failure")
	ErrMemoryLimitExceeded = errors.New("memory limit exceeded")
	ErrTimeout             = errors.New("timeout")
	ErrBufferMismatch      = errors.New("buffer mismatch")
	ErrIO                  = errors.New("io error")
)

// ProcessError is a failure raised while processing a document.
// Kind is one of the Err* kinds above.
type ProcessError struct {
	Kind    error
	Step    string
	Message string
	Cause   error
}

func (e *ProcessError) Error() string {
	msg := e.Kind.Error()
	if e.Step != "" {
		msg = e.Step + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProcessError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Fatal reports whether this kind always stops the step chain.
func (e *ProcessError) Fatal() bool {
	return IsFatalKind(e.Kind)
}

// IsFatalKind reports whether kind stops the chain regardless of step policy.
func IsFatalKind(kind error) bool {
	switch kind {
	case ErrUnsupportedFormat, ErrMemoryLimitExceeded, ErrTimeout, ErrBufferMismatch, ErrIO:
		return true
	}
	return false
}

// KindOf returns the processing kind carried by err, or nil.
func KindOf(err error) error {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for _, k := range []error{ErrUnsupportedFormat, ErrDecode, ErrRecognition, ErrMemoryLimitExceeded, ErrTimeout, ErrBufferMismatch, ErrIO} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewProcessError(kind error, step, message string, cause error) *ProcessError {
	return &ProcessError{Kind: kind, Step: step, Message: message, Cause: cause}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
