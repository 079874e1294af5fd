package build

import (
	"path/filepath"
)

// Environment is the derived, read-only snapshot a single build attempt
// runs against. Computed once during configuration, never mutated, and
// discarded when the attempt ends.
type Environment struct {
	CrateName    string
	CratePath    string
	CrateType    CrateType // resolved, never CrateTypeAuto
	Profile      Profile
	Target       string
	OutputDir    string // handed to the nested build as CARGO_TARGET_DIR
	ArtifactStem string // expected artifact file stem for the crate type
}

// ArtifactDir is where the nested build drops artifacts for this
// target/profile pair.
func (e *Environment) ArtifactDir() string {
	return filepath.Join(e.OutputDir, e.Target, e.Profile.String())
}
