// Package errs defines the runtime's error taxonomy: a closed set of kinds
// every public entrypoint reports through, instead of ad-hoc errors.
//
// Every service-call entrypoint is no-throw at the public boundary: errors
// are returned as values, never panicked, except for the Fatal kind which
// is reserved for invariant violations that are bugs, not runtime
// conditions (double-boot, uninstalled allocator). Assert callers decide
// whether to panic on Fatal; the package itself never does.
package errs

import "errors"

// Kind is a closed taxonomy of failure categories, matching spec.md §7.
type Kind int

const (
	InvalidArgument Kind = iota
	Duplicate
	NotFound
	StartupFailed
	CapabilityMismatch
	ResourceExhausted
	ShutdownInProgress
	Fatal
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case Duplicate:
		return "duplicate"
	case NotFound:
		return "not_found"
	case StartupFailed:
		return "startup_failed"
	case CapabilityMismatch:
		return "capability_mismatch"
	case ResourceExhausted:
		return "resource_exhausted"
	case ShutdownInProgress:
		return "shutdown_in_progress"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a kinded error. Compare kinds with errors.Is against the
// package-level sentinels, or with As to recover the Kind and message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Msg }

// Is allows errors.Is(err, errs.InvalidArgumentErr) style sentinel checks
// without allocating a distinct sentinel per call site.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New builds a Kind-tagged error with msg as its message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Sentinels for errors.Is comparisons against a specific kind, e.g.
// errors.Is(err, errs.ErrNotFound).
var (
	ErrInvalidArgument    = &Error{Kind: InvalidArgument}
	ErrDuplicate          = &Error{Kind: Duplicate}
	ErrNotFound           = &Error{Kind: NotFound}
	ErrStartupFailed      = &Error{Kind: StartupFailed}
	ErrCapabilityMismatch = &Error{Kind: CapabilityMismatch}
	ErrResourceExhausted  = &Error{Kind: ResourceExhausted}
	ErrShutdownInProgress = &Error{Kind: ShutdownInProgress}
	ErrFatal              = &Error{Kind: Fatal}
)

// Of reports the Kind of err, or a false ok if err is not a *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
