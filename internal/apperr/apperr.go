// Package apperr defines the closed taxonomy of error kinds surfaced to
// IPC clients, mirroring oxidepm-core's error enum in the original source.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of a fixed set of error categories a client can act on.
type Kind string

const (
	AppNotFound          Kind = "app_not_found"
	AppAlreadyExists     Kind = "app_already_exists"
	DaemonNotRunning     Kind = "daemon_not_running"
	DaemonAlreadyRunning Kind = "daemon_already_running"
	BuildFailed          Kind = "build_failed"
	ProcessStartFailed   Kind = "process_start_failed"
	ProcessNotRunning    Kind = "process_not_running"
	ConfigError          Kind = "config_error"
	ConfigNotFound       Kind = "config_not_found"
	IpcError             Kind = "ipc_error"
	IpcConnectionFailed  Kind = "ipc_connection_failed"
	DbError              Kind = "db_error"
	InvalidSelector      Kind = "invalid_selector"
	InvalidMode          Kind = "invalid_mode"
	FileNotFound         Kind = "file_not_found"
	PermissionDenied     Kind = "permission_denied"
	Timeout              Kind = "timeout"
	HealthCheckFailed    Kind = "health_check_failed"
)

// Error is the concrete error type carried through the system. It always
// has a Kind and a human-readable Message; it may wrap a cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can do errors.Is(err, apperr.New(apperr.AppNotFound, "")).
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error that wraps cause, reusing cause's message if message is empty.
func Wrap(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the Kind of err, defaulting to "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether the first *Error in err's chain has the given Kind;
// an *Error nested inside another *Error is not examined.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
