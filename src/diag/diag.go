// Package diag decodes cargo's --message-format=json diagnostic stream.
//
// Each line is classified independently: structured compiler messages become
// Diagnostics, other recognized JSON envelopes become Meta records, anything
// else passes through verbatim as Raw. A line that carries the JSON envelope
// but fails to decode is Degraded — counted, never fatal, because the nested
// toolchain's output format drifts between versions.
package diag

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity of a parsed compiler diagnostic.
type Severity int

const (
	SeverityNote Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the cargo-style lowercase label.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}

// Span locates a diagnostic in a source file.
type Span struct {
	File        string
	LineStart   int
	LineEnd     int
	ColumnStart int
	ColumnEnd   int
}

// Location renders the span as file:line:col.
func (s Span) Location() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.LineStart, s.ColumnStart)
}

// Diagnostic is one parsed compiler message. Immutable once decoded.
type Diagnostic struct {
	Severity Severity
	Message  string
	Rendered string // human-readable rendering supplied by the compiler, may be empty
	Spans    []Span // primary spans only
}

// RecordKind discriminates classified stream lines.
type RecordKind int

const (
	// RecordRaw is a line that is not a JSON message envelope. Passed
	// through verbatim for raw-output capture.
	RecordRaw RecordKind = iota

	// RecordDiagnostic is a decoded compiler message.
	RecordDiagnostic

	// RecordMeta is a recognized envelope that is not a compiler message
	// (compiler-artifact, build-script-executed, build-finished, ...).
	RecordMeta

	// RecordDegraded is a line that looks like a message envelope but
	// failed to decode.
	RecordDegraded
)

// Record is the classification of a single stream line.
type Record struct {
	Kind       RecordKind
	Line       string      // the original line, always set
	Reason     string      // envelope discriminator, set for Meta/Degraded/Diagnostic
	Diagnostic *Diagnostic // set for RecordDiagnostic
}

// Wire format of a cargo JSON message line.
type envelope struct {
	Reason  string          `json:"reason"`
	Message json.RawMessage `json:"message"`
}

type wireMessage struct {
	Level    string     `json:"level"`
	Message  string     `json:"message"`
	Rendered string     `json:"rendered"`
	Spans    []wireSpan `json:"spans"`
}

type wireSpan struct {
	FileName    string `json:"file_name"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
	ColumnStart int    `json:"column_start"`
	ColumnEnd   int    `json:"column_end"`
	IsPrimary   bool   `json:"is_primary"`
}

const reasonCompilerMessage = "compiler-message"

// ParseLine classifies a single line of the nested compiler's stdout.
// It never returns an error: unrecognized input is Raw, a broken envelope
// is Degraded.
func ParseLine(line string) Record {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Record{Kind: RecordRaw, Line: line}
	}

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Reason == "" {
		// JSON-looking chatter without a reason discriminator is plain
		// passthrough, not a degraded envelope.
		return Record{Kind: RecordRaw, Line: line}
	}

	if env.Reason != reasonCompilerMessage {
		return Record{Kind: RecordMeta, Line: line, Reason: env.Reason}
	}

	var msg wireMessage
	if err := json.Unmarshal(env.Message, &msg); err != nil || msg.Message == "" && msg.Level == "" {
		return Record{Kind: RecordDegraded, Line: line, Reason: env.Reason}
	}

	d := &Diagnostic{
		Severity: parseLevel(msg.Level),
		Message:  msg.Message,
		Rendered: strings.TrimRight(msg.Rendered, "\n"),
	}
	for _, s := range msg.Spans {
		if !s.IsPrimary {
			continue
		}
		d.Spans = append(d.Spans, Span{
			File:        s.FileName,
			LineStart:   s.LineStart,
			LineEnd:     s.LineEnd,
			ColumnStart: s.ColumnStart,
			ColumnEnd:   s.ColumnEnd,
		})
	}

	return Record{Kind: RecordDiagnostic, Line: line, Reason: env.Reason, Diagnostic: d}
}

func parseLevel(level string) Severity {
	switch level {
	case "error", "error: internal compiler error":
		return SeverityError
	case "warning":
		return SeverityWarning
	default:
		return SeverityNote
	}
}

// Collector accumulates classified records in emission order.
type Collector struct {
	diagnostics []Diagnostic
	raw         []string
	degraded    int
}

// Feed classifies one line and records it. Returns the classification so
// callers can forward lines elsewhere while streaming.
func (c *Collector) Feed(line string) Record {
	rec := ParseLine(line)
	switch rec.Kind {
	case RecordDiagnostic:
		c.diagnostics = append(c.diagnostics, *rec.Diagnostic)
	case RecordRaw:
		c.raw = append(c.raw, rec.Line)
	case RecordDegraded:
		c.degraded++
	}
	return rec
}

// Diagnostics returns collected compiler messages in emission order.
func (c *Collector) Diagnostics() []Diagnostic { return c.diagnostics }

// Raw returns unstructured passthrough lines in emission order.
func (c *Collector) Raw() []string { return c.raw }

// Degraded returns how many envelope lines failed to decode.
func (c *Collector) Degraded() int { return c.degraded }

// Errors returns the count of error-level diagnostics.
func (c *Collector) Errors() int {
	n := 0
	for _, d := range c.diagnostics {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Warnings returns the count of warning-level diagnostics.
func (c *Collector) Warnings() int {
	n := 0
	for _, d := range c.diagnostics {
		if d.Severity == SeverityWarning {
			n++
		}
	}
	return n
}
