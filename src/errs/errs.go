// Package errs is the shared structured error type for build orchestration.
// All component failures convert to *Error before crossing the builder's
// public contract; raw OS-level errors never reach the caller unwrapped.
package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cratekit/ptxforge/src/diag"
)

// Kind classifies a build failure. String-based for debuggability.
type Kind string

const (
	// KindToolNotFound — the nested toolchain executable could not be
	// located or lacks required target support. Carries a remediation hint.
	KindToolNotFound Kind = "TOOL_NOT_FOUND"

	// KindInvocationFailed — the nested process exited nonzero.
	KindInvocationFailed Kind = "INVOCATION_FAILED"

	// KindNoOutputProduced — the nested build reported success but the
	// output directory holds no matching artifact.
	KindNoOutputProduced Kind = "NO_OUTPUT_PRODUCED"

	// KindAmbiguousOutput — more than one candidate artifact matched.
	KindAmbiguousOutput Kind = "AMBIGUOUS_OUTPUT"

	// KindCrateTypeMismatch — requested crate type incompatible with what
	// the manifest declares buildable. Raised before any process spawns.
	KindCrateTypeMismatch Kind = "CRATE_TYPE_MISMATCH"

	// KindTimedOut — the supervising context expired and the child was
	// killed.
	KindTimedOut Kind = "TIMED_OUT"

	// KindIO — any other filesystem or process-IO failure, wrapped with
	// the operation that failed.
	KindIO Kind = "IO_FAILURE"

	// KindInternal — invariant violation inside the orchestrator itself.
	KindInternal Kind = "INTERNAL"
)

// Error carries enough context to render a complete report without
// re-invoking anything.
type Error struct {
	Kind Kind
	Msg  string

	Command     string   // executable that was involved, if any
	ExitCode    int      // nested process exit code (InvocationFailed)
	Stderr      []string // captured stderr tail
	Candidates  []string // artifact candidates (AmbiguousOutput)
	Hint        string   // remediation suggestion (ToolNotFound)
	Diagnostics []diag.Diagnostic

	Err error // wrapped cause, may be nil
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Msg)

	switch e.Kind {
	case KindInvocationFailed:
		if e.Command != "" {
			fmt.Fprintf(&b, ": %q exited with code %d", e.Command, e.ExitCode)
		} else {
			fmt.Fprintf(&b, ": exited with code %d", e.ExitCode)
		}
	case KindToolNotFound:
		if e.Hint != "" {
			fmt.Fprintf(&b, " (%s)", e.Hint)
		}
	case KindAmbiguousOutput:
		if len(e.Candidates) > 0 {
			fmt.Fprintf(&b, ": candidates %s", strings.Join(e.Candidates, ", "))
		}
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is matching on kind via sentinel comparison.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// As extracts a *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
