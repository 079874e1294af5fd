package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cratekit/ptxforge/src/diag"
	"github.com/cratekit/ptxforge/src/errs"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Printer renders a human-oriented report directly to the error stream.
// Used when the build driver runs outside the host's diagnostic channel.
type Printer struct {
	Writer io.Writer
	Color  bool
}

// NewPrinter writes to stderr with color auto-detection.
func NewPrinter() *Printer {
	return &Printer{
		Writer: os.Stderr,
		Color:  UseColor(),
	}
}

// Print renders diagnostics in emission order, then a summary line with
// error/warning counts.
func (p *Printer) Print(diagnostics []diag.Diagnostic) {
	var nErrors, nWarnings int

	for _, d := range diagnostics {
		switch d.Severity {
		case diag.SeverityError:
			nErrors++
		case diag.SeverityWarning:
			nWarnings++
		}
		p.printDiagnostic(d)
	}

	if len(diagnostics) > 0 {
		fmt.Fprintf(p.Writer, "\n%s\n", SummaryLine(nErrors, nWarnings, p.Color))
	}
}

// PrintError renders a build failure: the message, any attached
// diagnostics, and the captured stderr tail.
func (p *Printer) PrintError(err error) {
	e, ok := errs.As(err)
	if !ok {
		fmt.Fprintf(p.Writer, "%s %v\n", p.colorize("error:", colorRed+colorBold), err)
		return
	}

	fmt.Fprintf(p.Writer, "%s %s\n", p.colorize("error:", colorRed+colorBold), e.Msg)

	switch e.Kind {
	case errs.KindInvocationFailed:
		if e.Command != "" {
			fmt.Fprintf(p.Writer, "  %s %q exited with code %d\n", p.colorize("-->", colorGray), e.Command, e.ExitCode)
		}
	case errs.KindToolNotFound:
		if e.Hint != "" {
			fmt.Fprintf(p.Writer, "  %s %s\n", p.colorize("hint:", colorCyan), e.Hint)
		}
	case errs.KindAmbiguousOutput:
		for _, c := range e.Candidates {
			fmt.Fprintf(p.Writer, "  %s %s\n", p.colorize("candidate:", colorGray), c)
		}
	}

	if len(e.Diagnostics) > 0 {
		fmt.Fprintln(p.Writer)
		p.Print(e.Diagnostics)
	}

	if len(e.Stderr) > 0 {
		fmt.Fprintf(p.Writer, "\n%s\n", p.colorize("captured stderr:", colorBold))
		for _, line := range e.Stderr {
			fmt.Fprintf(p.Writer, "  %s\n", line)
		}
	}
}

func (p *Printer) printDiagnostic(d diag.Diagnostic) {
	if d.Rendered != "" {
		fmt.Fprintf(p.Writer, "%s\n", d.Rendered)
		return
	}

	fmt.Fprintf(p.Writer, "%s %s\n", severityTag(d.Severity, p.Color), d.Message)
	for _, s := range d.Spans {
		fmt.Fprintf(p.Writer, "  %s %s\n", p.colorize("-->", colorGray), s.Location())
	}
}

// SummaryLine returns a one-line error/warning tally, optionally colored.
func SummaryLine(nErrors, nWarnings int, color bool) string {
	var parts []string
	if nErrors > 0 {
		s := fmt.Sprintf("%d error(s)", nErrors)
		if color {
			s = colorRed + s + colorReset
		}
		parts = append(parts, s)
	}
	if nWarnings > 0 {
		s := fmt.Sprintf("%d warning(s)", nWarnings)
		if color {
			s = colorYellow + s + colorReset
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return "no diagnostics"
	}
	return strings.Join(parts, ", ")
}

// severityTag returns a colored severity label.
func severityTag(s diag.Severity, color bool) string {
	switch s {
	case diag.SeverityError:
		if color {
			return colorRed + colorBold + "error:" + colorReset
		}
		return "error:"
	case diag.SeverityWarning:
		if color {
			return colorYellow + colorBold + "warning:" + colorReset
		}
		return "warning:"
	default:
		if color {
			return colorGray + "note:" + colorReset
		}
		return "note:"
	}
}

func (p *Printer) colorize(text, color string) string {
	if !p.Color {
		return text
	}
	return color + text + colorReset
}

func isTerminal() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// UseColor returns true if colored output should be used.
// Respects NO_COLOR env, TERM=dumb, and terminal detection.
func UseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal()
}

// InsideCargo reports whether this process was launched by a cargo build
// script, meaning the host diagnostic channel is available on stdout.
func InsideCargo() bool {
	return os.Getenv("CARGO") != "" && os.Getenv("OUT_DIR") != ""
}
