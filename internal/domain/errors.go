package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failure surfaced in a job result
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindDependency ErrorKind = "dependency"
	KindRuntime    ErrorKind = "runtime"
	KindRouting    ErrorKind = "routing"
)

// Error is a classified job failure. The wrapped error carries the stack trace.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Format delegates to the wrapped error so that %+v prints its stack trace.
func (e *Error) Format(s fmt.State, verb rune) {
	if f, ok := e.Err.(fmt.Formatter); ok {
		f.Format(s, verb)
		return
	}
	fmt.Fprint(s, e.Err.Error())
}

// ValidationError reports a missing or malformed job input field
func ValidationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Err: errors.Errorf(format, args...)}
}

// DependencyError reports an external model that is not available
func DependencyError(format string, args ...interface{}) error {
	return &Error{Kind: KindDependency, Err: errors.Errorf(format, args...)}
}

// RoutingError reports an unknown action
func RoutingError(format string, args ...interface{}) error {
	return &Error{Kind: KindRouting, Err: errors.Errorf(format, args...)}
}

// RuntimeError wraps a failed external call or processing step
func RuntimeError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindRuntime, Err: errors.Wrap(err, message)}
}

// KindOf returns the kind of err, defaulting to KindRuntime for unclassified errors
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindRuntime
}

// WrapValidation classifies err as a validation failure
func WrapValidation(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindValidation, Err: errors.Wrap(err, message)}
}
