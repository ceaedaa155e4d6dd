// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by socket primitives, multiplexers and the transport core.
// Platform error codes are translated into this closed set at the primitive
// boundary and never travel further up.

package api

import (
	"errors"
	"fmt"
)

// Transient outcomes. Absorbed by partial-I/O orchestration and never returned
// from a Transport Entry operation.
var (
	ErrWouldBlock = fmt.Errorf("operation would block")
	ErrInProgress = fmt.Errorf("operation in progress")
)

// Terminal outcomes.
var (
	ErrClosed        = fmt.Errorf("connection closed by peer")
	ErrTimeout       = fmt.Errorf("operation timeout")
	ErrDisconnected  = fmt.Errorf("disconnected")
	ErrConfiguration = fmt.Errorf("configuration error")
	ErrLogic         = fmt.Errorf("logic error")
	ErrNotReady      = fmt.Errorf("%w: connection not ready", ErrLogic)
)

// Common errors used across the library.
var (
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrNotSupported      = fmt.Errorf("operation not supported")
	ErrAlreadyExists     = fmt.Errorf("resource already exists")
	ErrNotFound          = fmt.Errorf("resource not found")
	ErrResourceExhausted = fmt.Errorf("resource exhausted")
)

// ErrOperationTimeout is kept for callers of the older name.
var ErrOperationTimeout = ErrTimeout

// Outcome is the closed result set every primitive maps into.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeWouldBlock
	OutcomeInProgress
	OutcomeClosed
	OutcomeTimeout
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeWouldBlock:
		return "would-block"
	case OutcomeInProgress:
		return "in-progress"
	case OutcomeClosed:
		return "closed"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "fatal"
	}
}

// Classify maps err into the closed Outcome set. nil is OutcomeDone.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeDone
	case errors.Is(err, ErrWouldBlock):
		return OutcomeWouldBlock
	case errors.Is(err, ErrInProgress):
		return OutcomeInProgress
	case errors.Is(err, ErrClosed):
		return OutcomeClosed
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	default:
		return OutcomeFatal
	}
}

// OSError is a non-retryable operating system failure. Code is the numeric
// OS error value and Msg its text; platform error values are not wrapped.
type OSError struct {
	Op   string
	Code int
	Msg  string
}

func (e *OSError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s (code %d)", e.Op, e.Msg, e.Code)
	}
	return fmt.Sprintf("%s: os error %d", e.Op, e.Code)
}

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeTimeout
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeInternal
	ErrCodeDisconnected
	ErrCodeConfiguration
	ErrCodeLogic
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the sentinel matching Code, plus the wrapped cause, so
// errors.Is works on structured errors.
func (e *Error) Unwrap() []error {
	var out []error
	if sentinel := e.Code.sentinel(); sentinel != nil {
		out = append(out, sentinel)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

func (c ErrorCode) sentinel() error {
	switch c {
	case ErrCodeTimeout:
		return ErrTimeout
	case ErrCodeDisconnected:
		return ErrDisconnected
	case ErrCodeConfiguration:
		return ErrConfiguration
	case ErrCodeLogic:
		return ErrLogic
	case ErrCodeInvalidArgument:
		return ErrInvalidArgument
	case ErrCodeResourceExhausted:
		return ErrResourceExhausted
	case ErrCodeNotSupported:
		return ErrNotSupported
	case ErrCodeAlreadyExists:
		return ErrAlreadyExists
	case ErrCodeNotFound:
		return ErrNotFound
	}
	return nil
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap creates a structured error that unwraps to cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	e := NewError(code, fmt.Sprintf("%s: %v", message, cause))
	e.cause = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
