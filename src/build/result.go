package build

import (
	"github.com/cratekit/ptxforge/src/diag"
)

// Outcome tags a non-failed build attempt.
type Outcome int

const (
	// OutcomeBuilt — the nested build ran and produced an artifact.
	OutcomeBuilt Outcome = iota

	// OutcomeNotNeeded — the build was skipped: either a recursive
	// invocation was detected, or the freshness check found the inputs
	// unchanged since the last successful build. Observably distinct
	// from Built so callers can skip re-linking.
	OutcomeNotNeeded
)

func (o Outcome) String() string {
	if o == OutcomeNotNeeded {
		return "not needed"
	}
	return "built"
}

// BuildStatus is the result of a non-failed build attempt. Failures are
// never represented here; they surface as *errs.Error.
type BuildStatus struct {
	Outcome Outcome
	Output  *BuildOutput // set when Outcome is OutcomeBuilt
}

// BuildOutput is a successful build: exactly one resolved artifact plus
// the diagnostics collected during the build, in emission order.
// Warnings may be present even on success.
type BuildOutput struct {
	ArtifactPath string
	Diagnostics  []diag.Diagnostic
	Degraded     int // structured lines that failed to decode

	cratePath string
}

// Warnings returns the count of warning-level diagnostics.
func (o *BuildOutput) Warnings() int {
	n := 0
	for _, d := range o.Diagnostics {
		if d.Severity == diag.SeverityWarning {
			n++
		}
	}
	return n
}
