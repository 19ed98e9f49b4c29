// Package api
// Author: momentics <momentics@gmail.com>
//
// Failure taxonomy shared by the reassembly core, the dispatcher and the
// endpoint capability.

package api

import "fmt"

// ErrorCode identifies the failure kind carried by an Error.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeProtocolViolation
	ErrCodeInvalidEncoding
	ErrCodeMessageTooLarge
	ErrCodeAppenderClosed
	ErrCodeTransportFailure
	ErrCodeConnectionClosed
	ErrCodeInvalidArgument
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeProtocolViolation:
		return "protocol_violation"
	case ErrCodeInvalidEncoding:
		return "invalid_encoding"
	case ErrCodeMessageTooLarge:
		return "message_too_large"
	case ErrCodeAppenderClosed:
		return "appender_closed"
	case ErrCodeTransportFailure:
		return "transport_failure"
	case ErrCodeConnectionClosed:
		return "connection_closed"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is. Any *Error with the same Code matches.
var (
	ErrProtocolViolation = &Error{Code: ErrCodeProtocolViolation, Message: "protocol violation"}
	ErrInvalidEncoding   = &Error{Code: ErrCodeInvalidEncoding, Message: "invalid UTF-8 encoding"}
	ErrMessageTooLarge   = &Error{Code: ErrCodeMessageTooLarge, Message: "message too large"}
	ErrAppenderClosed    = &Error{Code: ErrCodeAppenderClosed, Message: "appender is closed"}
	ErrTransportFailure  = &Error{Code: ErrCodeTransportFailure, Message: "transport failure"}
	ErrConnectionClosed  = &Error{Code: ErrCodeConnectionClosed, Message: "connection is closed"}
	ErrInvalidArgument   = &Error{Code: ErrCodeInvalidArgument, Message: "invalid argument"}
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
	msg := e.Message
	if e.cause != nil {
		msg = msg + ": " + e.cause.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Errorf builds a structured error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WrapError attaches a cause to a new structured error.
func WrapError(code ErrorCode, message string, cause error) *Error {
	e := NewError(code, message)
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

// CodeOf reports the failure kind of err. Errors outside the taxonomy are
// ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	for e := err; e != nil; {
		if ae, ok := e.(*Error); ok {
			return ae.Code
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return ErrCodeInternal
}

// AsError converts err into a structured *Error, keeping the original as
// the cause when it is not already one.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	return WrapError(CodeOf(err), CodeOf(err).String(), err)
}
