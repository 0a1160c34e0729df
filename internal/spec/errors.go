package spec

import (
	"errors"
	"fmt"
)

// Kind classifies every expected failure in the engine. Components
// return *Error values across boundaries; panics are reserved for
// genuine bugs (KindInternal).
type Kind string

const (
	KindUser              Kind = "UserError"
	KindValidationFailed  Kind = "ValidationFailed"
	KindLockContention    Kind = "LockContention"
	KindMalformedSpec     Kind = "MalformedSpec"
	KindNotFound          Kind = "NotFound"
	KindDependencyBlocked Kind = "DependencyBlocked"
	KindCycleDetected     Kind = "CycleDetected"
	KindConsultation      Kind = "ConsultationFailed"
	KindToolNotFound      Kind = "ExternalToolNotFound"
	KindIO                Kind = "IoError"
	KindInternal          Kind = "Internal"
)

// ExitCode maps an error kind to the CLI process exit code.
// User-correctable problems exit 1, internal failures exit 2.
func (k Kind) ExitCode() int {
	switch k {
	case KindInternal, KindIO:
		return 2
	default:
		return 1
	}
}

// Error is the structured error carried across component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a structured error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a structured error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetails attaches structured detail fields, used by --json error
// rendering.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the error kind, defaulting to Internal for plain
// errors that escaped a component boundary.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
