// Package zugerr implements the error taxonomy used across the sandboxed
// scripting core: PolicyReject, LoadError, RuntimeError, AllocatorError,
// and ConfigError are all represented as *Error; HostAssertion is a
// programming bug and is raised with panic instead.
package zugerr

import "fmt"

// Code identifies which envelope of the taxonomy an error belongs to.
type Code int

const (
	// PolicyReject covers disallowed paths, nonexistent files, bytecode
	// files, and capability denials. Local, non-fatal.
	PolicyReject Code = iota + 1
	// LoadError covers parse/compile failures of a chunk.
	LoadError
	// RuntimeError covers errors raised by the script itself, including
	// watchdog timeouts.
	RuntimeError
	// AllocatorError covers limitReached and overflow conditions raised
	// by the Limited Allocator.
	AllocatorError
	// ConfigError covers bad watchdog arm preconditions and invalid
	// configuration values.
	ConfigError
)

func (c Code) String() string {
	switch c {
	case PolicyReject:
		return "PolicyReject"
	case LoadError:
		return "LoadError"
	case RuntimeError:
		return "RuntimeError"
	case AllocatorError:
		return "AllocatorError"
	case ConfigError:
		return "ConfigError"
	default:
		return "Unknown"
	}
}

// Error is the taxonomy's carrier type. Exactly one of Message or the
// wrapped Err's message is meaningful at a time; Err is nil for errors
// that originate inside this module.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a new Error carrying a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error under the given code.
func Wrap(err error, code Code) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		e.Code = code
		return e
	}
	return &Error{Code: code, Err: err}
}

// Wrapf wraps an existing error under the given code with a formatted
// message replacing the wrapped error's own text.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err is a *Error carrying the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}

// Assertf raises a HostAssertion-class fatal programming bug. Unlike the
// rest of the taxonomy this never returns — callers are never expected
// to recover from a null allocator-state pointer or similar invariant
// violation.
func Assertf(format string, args ...any) {
	panic(fmt.Sprintf("zugerr: assertion failed: "+format, args...))
}
