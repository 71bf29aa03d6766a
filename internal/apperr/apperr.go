// Package apperr defines the error taxonomy surfaced to external controllers.
// Every failure that crosses the dispatch boundary is one of these codes so the
// caller always receives a structured error document.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Code string

const (
	LaunchFailed         Code = "launch_failed"
	ProcessUnreachable   Code = "process_unreachable"
	WindowNotFound       Code = "window_not_found"
	CaptureDenied        Code = "capture_denied"
	InputInjectionDenied Code = "input_injection_denied"
	DevtoolsUnavailable  Code = "devtools_unavailable"
	IpcCommandNotFound   Code = "ipc_command_not_found"
	RegistryBusy         Code = "registry_busy"
	RegistryCorrupt      Code = "registry_corrupt"
	OperationTimedOut    Code = "operation_timed_out"
	InvalidArguments     Code = "invalid_arguments"
)

// Internal marks failures that are bugs rather than operator-visible
// conditions; it is deliberately outside the public taxonomy.
const Internal Code = "internal"

// Error carries a taxonomy code alongside a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// CodeOf extracts the taxonomy code from err. A plain context deadline maps to
// operation_timed_out; anything uncoded reports as internal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OperationTimedOut
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}
