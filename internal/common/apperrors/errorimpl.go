package apperrors

import (
	"errors"
	"strings"
)

// appError is the concrete implementation of the Error interface.
type appError struct {
	msg           string  // primary error message
	base          error   // base error for errors.Is/As compatibility
	wrappedErrors []error // additional wrapped errors
	statuscode    int     // HTTP status code
	wirecode      string  // stable wire error code
}

// Error returns the error message.
func (e *appError) Error() string {
	return e.msg
}

// ErrorAll returns the message followed by all wrapped error messages.
func (e *appError) ErrorAll() string {
	if len(e.wrappedErrors) == 0 {
		return e.Error()
	}
	var b strings.Builder
	b.WriteString(e.Error())
	for _, err := range e.wrappedErrors {
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the base error for compatibility with errors.Is / errors.As.
func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns all wrapped errors in the order they were added.
func (e *appError) UnwrapAll() []error {
	return e.wrappedErrors
}

// Msg creates a new error with a new message and wraps the original error.
// The new error inherits the status and wire codes from the original.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, e.wrappedErrors...),
		statuscode:    e.statuscode,
		wirecode:      e.wirecode,
	}
}

// New creates a fresh error using the current error as a template.
// The new error inherits the status and wire codes but starts with a new message.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
		wirecode:   e.wirecode,
	}
}

// MsgErr creates a new error with a message and wraps additional errors.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	all := append([]error{e}, errs...)
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: all,
		statuscode:    e.statuscode,
		wirecode:      e.wirecode,
	}
}

// Err creates a new error by attaching additional errors to the current error.
func (e *appError) Err(errs ...error) Error {
	all := append([]error{e}, errs...)
	return &appError{
		msg:           e.msg,
		base:          e,
		wrappedErrors: all,
		statuscode:    e.statuscode,
		wirecode:      e.wirecode,
	}
}

// SetStatusCode returns a shallow copy with an updated status code.
func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statuscode = code
	return &cp
}

// StatusCode returns the current HTTP status code.
func (e *appError) StatusCode() int {
	return e.statuscode
}

// SetWireCode returns a shallow copy with an updated wire error code.
func (e *appError) SetWireCode(code string) Error {
	cp := *e
	cp.wirecode = code
	return &cp
}

// WireCode returns the wire error code for this error. Walks the base chain
// so derived errors report the nearest tagged ancestor's code.
func (e *appError) WireCode() string {
	if e.wirecode != "" {
		return e.wirecode
	}
	var base *appError
	if errors.As(e.base, &base) {
		return base.WireCode()
	}
	return ""
}

// New creates a root-level error with the given message.
func New(msg string) Error {
	return &appError{
		msg: msg,
	}
}

// Is checks if the error matches the target by checking both the base error
// and all wrapped errors.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
