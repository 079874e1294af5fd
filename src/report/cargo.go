// Package report renders build diagnostics and failures, either through
// Cargo's build-script protocol or as a standalone colorized report.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cratekit/ptxforge/src/diag"
	"github.com/cratekit/ptxforge/src/errs"
)

// warningDirective is Cargo's documented build-script channel for
// surfacing text on the host console. This is a wire-format contract:
// the prefix must match byte-for-byte or cargo will not relay the line.
// The protocol has no error directive, so error diagnostics travel the
// same channel and the process exit status carries the failure.
const warningDirective = "cargo:warning="

// CargoAdapter forwards diagnostics and results to the host build system
// by writing protocol lines on this process's own stdout.
type CargoAdapter struct {
	Out io.Writer
}

// NewCargoAdapter writes to stdout, where cargo listens.
func NewCargoAdapter() *CargoAdapter {
	return &CargoAdapter{Out: os.Stdout}
}

// Diagnostic forwards one compiler message. Notes are skipped; warnings
// and errors are relayed line by line so multi-line renderings survive
// the single-line protocol.
func (a *CargoAdapter) Diagnostic(d diag.Diagnostic) {
	if d.Severity != diag.SeverityWarning && d.Severity != diag.SeverityError {
		return
	}
	for _, line := range diagnosticLines(d) {
		fmt.Fprintf(a.Out, "%s%s\n", warningDirective, line)
	}
}

// Error forwards a top-level build failure, including captured stderr
// context when present.
func (a *CargoAdapter) Error(err error) {
	fmt.Fprintf(a.Out, "%s%s\n", warningDirective, err.Error())
	if e, ok := errs.As(err); ok {
		for _, d := range e.Diagnostics {
			a.Diagnostic(d)
		}
		for _, line := range e.Stderr {
			fmt.Fprintf(a.Out, "%s%s\n", warningDirective, line)
		}
	}
}

// RustcEnv exposes a key to the host crate's compilation environment.
func (a *CargoAdapter) RustcEnv(key, value string) {
	fmt.Fprintf(a.Out, "cargo:rustc-env=%s=%s\n", key, value)
}

// RerunIfChanged registers a path with the host's change tracking.
func (a *CargoAdapter) RerunIfChanged(path string) {
	fmt.Fprintf(a.Out, "cargo:rerun-if-changed=%s\n", path)
}

// diagnosticLines flattens a diagnostic to plain text lines: the
// compiler's own rendering when present, otherwise level, message and
// primary span locations.
func diagnosticLines(d diag.Diagnostic) []string {
	if d.Rendered != "" {
		return strings.Split(d.Rendered, "\n")
	}

	lines := []string{fmt.Sprintf("%s: %s", d.Severity, d.Message)}
	for _, s := range d.Spans {
		lines = append(lines, fmt.Sprintf(" --> %s", s.Location()))
	}
	return lines
}
