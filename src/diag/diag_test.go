package diag

import (
	"fmt"
	"testing"
)

func diagnosticLine(t *testing.T, level, message string) string {
	t.Helper()
	return fmt.Sprintf(`{"reason":"compiler-message","message":{"level":%q,"message":%q,"spans":[]}}`, level, message)
}

func TestParseLineClassification(t *testing.T) {
	cases := []struct {
		name string
		line string
		want RecordKind
	}{
		{"plain text", "   Compiling sample v0.1.0", RecordRaw},
		{"empty", "", RecordRaw},
		{"json without reason", `{"foo":"bar"}`, RecordRaw},
		{"broken json", `{"reason":`, RecordRaw},
		{"artifact envelope", `{"reason":"compiler-artifact","target":{"name":"sample"}}`, RecordMeta},
		{"build finished", `{"reason":"build-finished","success":true}`, RecordMeta},
		{"compiler message", diagnosticLine(t, "error", "boom"), RecordDiagnostic},
		{"envelope with bad message", `{"reason":"compiler-message","message":{"level":5}}`, RecordDegraded},
		{"envelope with null message", `{"reason":"compiler-message","message":null}`, RecordDegraded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ParseLine(tc.line)
			if rec.Kind != tc.want {
				t.Errorf("ParseLine(%q) kind = %v, want %v", tc.line, rec.Kind, tc.want)
			}
			if rec.Line != tc.line {
				t.Errorf("ParseLine(%q) did not preserve the original line", tc.line)
			}
		})
	}
}

func TestParseLineDecodesDiagnostic(t *testing.T) {
	line := `{"reason":"compiler-message","message":{` +
		`"level":"error",` +
		`"message":"cannot find function` + "`external_fn`" + ` in this scope",` +
		`"rendered":"error[E0425]: cannot find function\n --> src/lib.rs:7:20\n",` +
		`"spans":[{"file_name":"src/lib.rs","line_start":7,"line_end":7,"column_start":20,"column_end":31,"is_primary":true},` +
		`{"file_name":"src/other.rs","line_start":1,"line_end":1,"column_start":1,"column_end":2,"is_primary":false}]}}`

	rec := ParseLine(line)
	if rec.Kind != RecordDiagnostic {
		t.Fatalf("kind = %v, want RecordDiagnostic", rec.Kind)
	}

	d := rec.Diagnostic
	if d.Severity != SeverityError {
		t.Errorf("severity = %v, want error", d.Severity)
	}
	if len(d.Spans) != 1 {
		t.Fatalf("spans = %d, want 1 (primary only)", len(d.Spans))
	}
	span := d.Spans[0]
	if span.File != "src/lib.rs" || span.LineStart != 7 || span.ColumnStart != 20 {
		t.Errorf("unexpected span: %+v", span)
	}
	if got, want := span.Location(), "src/lib.rs:7:20"; got != want {
		t.Errorf("Location() = %q, want %q", got, want)
	}
	if d.Rendered == "" {
		t.Error("rendered text was dropped")
	}
}

func TestSeverityLevels(t *testing.T) {
	cases := []struct {
		level string
		want  Severity
	}{
		{"error", SeverityError},
		{"warning", SeverityWarning},
		{"note", SeverityNote},
		{"help", SeverityNote},
		{"", SeverityNote},
	}
	for _, tc := range cases {
		rec := ParseLine(diagnosticLine(t, tc.level, "msg"))
		if rec.Kind != RecordDiagnostic {
			t.Fatalf("level %q: kind = %v", tc.level, rec.Kind)
		}
		if rec.Diagnostic.Severity != tc.want {
			t.Errorf("level %q: severity = %v, want %v", tc.level, rec.Diagnostic.Severity, tc.want)
		}
	}
}

func TestCollectorPreservesOrder(t *testing.T) {
	c := &Collector{}

	lines := []string{
		"   Compiling sample v0.1.0",
		diagnosticLine(t, "warning", "first"),
		`{"reason":"compiler-message","message":{"level":7}}`, // degraded
		diagnosticLine(t, "error", "second"),
		`{"reason":"build-finished","success":false}`,
		diagnosticLine(t, "error", "third"),
		"some trailing chatter",
	}
	for _, line := range lines {
		c.Feed(line)
	}

	got := c.Diagnostics()
	if len(got) != 3 {
		t.Fatalf("diagnostics = %d, want 3", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Message != want {
			t.Errorf("diagnostics[%d] = %q, want %q (order must match emission)", i, got[i].Message, want)
		}
	}

	if c.Degraded() != 1 {
		t.Errorf("degraded = %d, want 1", c.Degraded())
	}
	if len(c.Raw()) != 2 {
		t.Errorf("raw lines = %d, want 2", len(c.Raw()))
	}
	if c.Errors() != 2 || c.Warnings() != 1 {
		t.Errorf("counts = %d errors / %d warnings, want 2/1", c.Errors(), c.Warnings())
	}
}

func TestCollectorNeverPanicsOnGarbage(t *testing.T) {
	c := &Collector{}
	garbage := []string{
		`{`, `}`, `{}`, `{"reason":123}`, `{"reason":"compiler-message"}`,
		"\x00\x01\x02", `{"reason":"compiler-message","message":"not-an-object"}`,
	}
	for _, line := range garbage {
		c.Feed(line)
	}
	if len(c.Diagnostics()) != 0 {
		t.Errorf("garbage produced %d diagnostics", len(c.Diagnostics()))
	}
}
