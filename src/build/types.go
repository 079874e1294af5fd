package build

import (
	"github.com/cratekit/ptxforge/src/errs"
)

// DefaultTarget is the NVPTX target triple builds compile against unless
// overridden.
const DefaultTarget = "nvptx64-nvidia-cuda"

// RecursionGuardEnv marks the nested build's environment. The device
// crate's own build script sees it and skips, which breaks the otherwise
// infinite build-script recursion.
const RecursionGuardEnv = "PTXFORGE_CRATE_BUILDING"

// Profile selects the cargo optimization profile.
type Profile int

const (
	ProfileRelease Profile = iota
	ProfileDebug
)

func (p Profile) String() string {
	if p == ProfileDebug {
		return "debug"
	}
	return "release"
}

// ParseProfile maps a config/flag string to a Profile. Empty means the
// release default.
func ParseProfile(s string) (Profile, error) {
	switch s {
	case "", "release":
		return ProfileRelease, nil
	case "debug":
		return ProfileDebug, nil
	default:
		return ProfileRelease, errs.New(errs.KindInternal, "unknown profile %q (want debug or release)", s)
	}
}

// CrateType selects which manifest target the nested build compiles.
type CrateType int

const (
	// CrateTypeAuto derives the type from the manifest; ambiguity is an
	// error rather than a guess.
	CrateTypeAuto CrateType = iota
	CrateTypeBinary
	CrateTypeLibrary
)

func (t CrateType) String() string {
	switch t {
	case CrateTypeBinary:
		return "bin"
	case CrateTypeLibrary:
		return "lib"
	default:
		return "auto"
	}
}

// rustcFlag is the --crate-type value handed to the nested compiler.
// Library builds go through cdylib so the PTX linker sees a linkable unit.
func (t CrateType) rustcFlag() string {
	if t == CrateTypeBinary {
		return "bin"
	}
	return "cdylib"
}

// ParseCrateType maps a config/flag string to a CrateType. Empty means
// auto-detection.
func ParseCrateType(s string) (CrateType, error) {
	switch s {
	case "", "auto":
		return CrateTypeAuto, nil
	case "bin", "binary":
		return CrateTypeBinary, nil
	case "lib", "library", "cdylib":
		return CrateTypeLibrary, nil
	default:
		return CrateTypeAuto, errs.New(errs.KindInternal, "unknown crate type %q (want bin, lib or auto)", s)
	}
}
