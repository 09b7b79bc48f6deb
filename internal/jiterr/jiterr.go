// Package jiterr implements the runtime's error taxonomy and its two
// propagation channels: a recoverable raise (returned to the caller) and a
// fatal abort (logged, then the process exits) for invariants the runtime
// cannot continue past.
package jiterr

import (
	goerrors "errors"
	"fmt"
	"os"

	"github.com/jitgraph/jitgraph/internal/jitlog"
	"tlog.app/go/errors"
)

// Kind classifies a recoverable failure. Kept small and closed (spec.md §7's
// taxonomy is fixed) rather than an open string so callers can switch on it.
type Kind int

const (
	// BackendUnavailable: required driver/library missing; operations that
	// need that backend raise this instead of attempting them.
	BackendUnavailable Kind = iota
	// InvalidArgument: size-broadcast rule violated, type mismatch, unknown
	// device index.
	InvalidArgument
	// OutOfMemory: allocator exhausted after flushing deferred frees.
	OutOfMemory
)

func (k Kind) String() string {
	switch k {
	case BackendUnavailable:
		return "BackendUnavailable"
	case InvalidArgument:
		return "InvalidArgument"
	case OutOfMemory:
		return "OutOfMemory"
	default:
		return "Unknown"
	}
}

// Error is the value returned on the recoverable raise channel.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }

// Raise constructs a recoverable *Error with a printf-style message, wrapped
// with tlog.app/go/errors so it carries a stack the way the rest of this
// repo's errors do.
func Raise(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, err: errors.New(format, args...)}
}

// Wrap attaches kind + context to an existing error without discarding it.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, err: errors.Wrap(err, format, args...)}
}

// Is reports whether err is a *Error of the given kind (for errors.Is-style
// call sites that just want to branch on taxonomy).
func Is(err error, kind Kind) bool {
	var e *Error
	if !goerrors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Fatal logs the message (with the offending source attached by the caller,
// e.g. the IR text for a CompileFailure) at error level and terminates the
// process. CompileFailure (module verify failed, GOT emitted, parse error)
// is the one error kind spec.md §7 marks non-recoverable; this is its sole
// entry point, matching the teacher's own main.go convention of logging and
// os.Exit(1)-ing on unrecoverable input rather than panicking.
func Fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	jitlog.Errorw("fatal: "+msg)
	os.Exit(1)
}

// Leak reports non-zero refcounts surviving shutdown. Warning-only per
// spec.md §7. It does no capping of its own; the root jit package's
// shutdown leak report caps its output at 10 variables and logs through
// jitlog directly.
func Leak(format string, args ...any) {
	jitlog.Warnw(fmt.Sprintf(format, args...))
}
