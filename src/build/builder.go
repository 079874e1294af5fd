// Package build orchestrates a nested cargo build for the NVPTX target:
// it assembles the compiler invocation, supervises the process while
// parsing its structured diagnostic stream, and resolves the produced
// PTX artifact.
package build

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cratekit/ptxforge/src/crate"
	"github.com/cratekit/ptxforge/src/diag"
	"github.com/cratekit/ptxforge/src/errs"
	"github.com/cratekit/ptxforge/src/executor"
	"github.com/cratekit/ptxforge/src/toolchain"
)

// Options configures a build attempt. Zero value: release profile,
// auto crate type, default NVPTX target, no colors, no freshness check.
type Options struct {
	Profile   Profile
	CrateType CrateType
	Target    string   // target triple, DefaultTarget when empty
	Toolchain string   // cargo channel ("nightly", ...), ambient when empty
	CargoArgs []string // extra arguments for the cargo invocation
	Colors    bool     // colorize the compiler's rendered diagnostics
	Freshness bool     // skip the nested build when inputs are unchanged
}

// invokeFunc runs the assembled nested command. Swappable in tests so
// builder behavior is verifiable without a toolchain.
type invokeFunc func(ctx context.Context, env *Environment, args []string, onStdout, onStderr func(string)) (*executor.Output, error)

// Builder drives one build attempt through configuration, invocation,
// output streaming and artifact resolution.
type Builder struct {
	crate *crate.Crate
	opts  Options

	invoke    invokeFunc
	preflight func(ctx context.Context, target string) error
}

// New analyses the crate at dir and prepares a builder for it.
func New(dir string, opts Options) (*Builder, error) {
	c, err := crate.Analyse(dir)
	if err != nil {
		return nil, err
	}
	if opts.Target == "" {
		opts.Target = DefaultTarget
	}

	b := &Builder{crate: c, opts: opts, preflight: toolchain.Check}
	b.invoke = b.runCargo
	return b, nil
}

// Crate returns the analysed source crate.
func (b *Builder) Crate() *crate.Crate { return b.crate }

// IsBuildNeeded reports whether this invocation is a recursive one
// (the device crate's own build script running inside the nested build).
func IsBuildNeeded() bool {
	return os.Getenv(RecursionGuardEnv) != "1"
}

// Build performs the attempt: Configuring → Invoking → StreamingOutput →
// Resolving. A failed attempt returns a *errs.Error; BuildStatus only
// ever reports Built or NotNeeded.
func (b *Builder) Build(ctx context.Context) (*BuildStatus, error) {
	if !IsBuildNeeded() {
		return &BuildStatus{Outcome: OutcomeNotNeeded}, nil
	}

	env, err := b.configure()
	if err != nil {
		return nil, err
	}

	if b.opts.Freshness {
		if fresh, _ := isFresh(env); fresh {
			return &BuildStatus{Outcome: OutcomeNotNeeded}, nil
		}
	}

	if err := b.preflight(ctx, env.Target); err != nil {
		return nil, err
	}

	args := cargoArgs(env, b.opts)

	// Stream supervision: stdout feeds the diagnostic parser, stderr is
	// drained into a raw capture. Neither stops at the first error —
	// the compiler may emit several before exiting and the report's
	// value depends on completeness.
	collector := &diag.Collector{}
	var stderrLines []string
	_, runErr := b.invoke(ctx, env, args,
		func(line string) { collector.Feed(line) },
		func(line string) {
			if isNotVerbose(line) {
				stderrLines = append(stderrLines, line)
			}
		},
	)
	if runErr != nil {
		if e, ok := errs.As(runErr); ok && e.Kind == errs.KindInvocationFailed {
			e.Diagnostics = collector.Diagnostics()
			e.Stderr = stderrLines
		}
		return nil, runErr
	}

	artifact, err := resolveArtifact(env)
	if err != nil {
		return nil, err
	}

	if b.opts.Freshness {
		writeStamp(env)
	}

	return &BuildStatus{
		Outcome: OutcomeBuilt,
		Output: &BuildOutput{
			ArtifactPath: artifact,
			Diagnostics:  collector.Diagnostics(),
			Degraded:     collector.Degraded(),
			cratePath:    env.CratePath,
		},
	}, nil
}

// configure validates the requested crate type against the manifest and
// derives the immutable environment snapshot. Fails before any process
// is spawned.
func (b *Builder) configure() (*Environment, error) {
	crateType, err := b.resolveCrateType()
	if err != nil {
		return nil, err
	}

	outputDir, err := b.crate.OutputDir()
	if err != nil {
		return nil, err
	}

	stem := b.crate.Name()
	if crateType == CrateTypeLibrary {
		stem = b.crate.OutputPrefix()
	}

	return &Environment{
		CrateName:    b.crate.Name(),
		CratePath:    b.crate.Path(),
		CrateType:    crateType,
		Profile:      b.opts.Profile,
		Target:       b.opts.Target,
		OutputDir:    outputDir,
		ArtifactStem: stem,
	}, nil
}

func (b *Builder) resolveCrateType() (CrateType, error) {
	hasLib := b.crate.HasLibraryTarget()
	hasBin := b.crate.HasBinaryTarget()

	switch b.opts.CrateType {
	case CrateTypeBinary:
		if !hasBin {
			return CrateTypeAuto, errs.New(errs.KindCrateTypeMismatch,
				"crate %q declares no binary target but a binary build was requested", b.crate.Name())
		}
		return CrateTypeBinary, nil

	case CrateTypeLibrary:
		if !hasLib {
			return CrateTypeAuto, errs.New(errs.KindCrateTypeMismatch,
				"crate %q declares no library target but a library build was requested", b.crate.Name())
		}
		if types := b.crate.LibCrateTypes(); len(types) > 0 && !contains(types, "cdylib") {
			return CrateTypeAuto, errs.New(errs.KindCrateTypeMismatch,
				"crate %q restricts [lib] crate-type to %v, which excludes cdylib", b.crate.Name(), types)
		}
		return CrateTypeLibrary, nil

	default: // auto
		switch {
		case hasLib && hasBin:
			return CrateTypeAuto, errs.New(errs.KindCrateTypeMismatch,
				"crate %q has both library and binary targets; pick one explicitly", b.crate.Name())
		case hasLib:
			return CrateTypeLibrary, nil
		case hasBin:
			return CrateTypeBinary, nil
		default:
			return CrateTypeAuto, errs.New(errs.KindCrateTypeMismatch,
				"crate %q has no buildable targets", b.crate.Name())
		}
	}
}

// cargoArgs assembles the nested command line. Order is deterministic:
// identical options always yield an identical invocation.
func cargoArgs(env *Environment, opts Options) []string {
	var args []string

	if opts.Toolchain != "" {
		args = append(args, "+"+opts.Toolchain)
	}

	args = append(args, "rustc")
	if env.Profile == ProfileRelease {
		args = append(args, "--release")
	}

	color := "never"
	if opts.Colors {
		color = "always"
	}
	args = append(args, "--color", color)
	args = append(args, "--message-format=json")
	args = append(args, "--target", env.Target)

	if env.CrateType == CrateTypeLibrary {
		args = append(args, "--lib")
	} else {
		args = append(args, "--bin", env.CrateName)
	}

	args = append(args, opts.CargoArgs...)
	args = append(args, "--", "--crate-type", env.CrateType.rustcFlag())

	return args
}

// runCargo is the production invoker. Environment overlay is explicit:
// the recursion guard, the redirected target dir, and a pinned locale so
// diagnostic text stays deterministic.
func (b *Builder) runCargo(ctx context.Context, env *Environment, args []string, onStdout, onStderr func(string)) (*executor.Output, error) {
	return executor.New(toolchain.Cargo).
		WithArgs(args...).
		WithDir(env.CratePath).
		WithEnv(RecursionGuardEnv, "1").
		WithEnv("CARGO_TARGET_DIR", env.OutputDir).
		WithEnv("LC_ALL", "C").
		RunStream(ctx, onStdout, onStderr)
}

// resolveArtifact scans the expected output directory. Exactly one match
// succeeds; zero or several is an error — silently picking one risks
// shipping a stale artifact from a previous build.
func resolveArtifact(env *Environment) (string, error) {
	pattern := filepath.Join(env.ArtifactDir(), env.ArtifactStem+"*.ptx")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", errs.Wrap(errs.KindIO, err, "scanning %q", env.ArtifactDir())
	}
	sort.Strings(matches)

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", errs.New(errs.KindNoOutputProduced,
			"nested build succeeded but no %s*.ptx artifact exists in %q", env.ArtifactStem, env.ArtifactDir())
	default:
		e := errs.New(errs.KindAmbiguousOutput,
			"nested build produced %d candidate artifacts in %q", len(matches), env.ArtifactDir())
		e.Candidates = matches
		return "", e
	}
}

// isNotVerbose drops cargo's -v chatter from the stderr capture so error
// reports stay readable.
func isNotVerbose(line string) bool {
	return !strings.HasPrefix(line, "+ ") &&
		!strings.Contains(line, "Running `") &&
		!strings.Contains(line, "Fresh ") &&
		!strings.HasPrefix(line, "Caused by:") &&
		!strings.HasPrefix(line, "  process didn't exit successfully: ")
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
