// Package toolchain verifies the nested toolchain before a build spawns.
package toolchain

import (
	"context"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/cratekit/ptxforge/src/errs"
	"github.com/cratekit/ptxforge/src/executor"
)

// Cargo is the nested build tool. CARGO is cargo's own convention for
// pointing tooling at a specific binary.
var Cargo = executor.Tool{
	Name:        "cargo",
	EnvOverride: "CARGO",
	Hint:        "install Rust via rustup (https://rustup.rs)",
}

// Linker produces PTX assembly for the NVPTX target.
var Linker = executor.Tool{
	Name:        "ptx-linker",
	EnvOverride: "PTX_LINKER",
	Hint:        "run `cargo install ptx-linker`",
}

// minLinkerVersion is the oldest ptx-linker with stable JSON-compatible
// output handling.
var minLinkerVersion = semver.MustParse("0.9.0")

// Check fails fast when the toolchain cannot serve a build for target.
// The linker gate only applies to the NVPTX target; other triples are the
// caller's responsibility.
func Check(ctx context.Context, target string) error {
	if _, err := Cargo.Path(); err != nil {
		return err
	}

	if !strings.HasPrefix(target, "nvptx") {
		return nil
	}

	out, err := executor.New(Linker).WithArgs("-V").Run(ctx)
	if err != nil {
		if e, ok := errs.As(err); ok && e.Kind == errs.KindToolNotFound {
			return err
		}
		e := errs.Wrap(errs.KindToolNotFound, err, "%q is present but not functional", Linker.Name)
		e.Command = Linker.Name
		e.Hint = Linker.Hint
		return e
	}

	version, err := ParseVersion(out.Stdout)
	if err != nil {
		// An unparseable banner is tolerated: the linker answers -V, and
		// failing the build over a banner format change would be worse
		// than proceeding.
		return nil
	}

	if version.LessThan(minLinkerVersion) {
		e := errs.New(errs.KindToolNotFound, "%q %s is older than the required %s",
			Linker.Name, version, minLinkerVersion)
		e.Command = Linker.Name
		e.Hint = "run `cargo install ptx-linker --force` to update"
		return e
	}

	return nil
}

// ParseVersion extracts a semver from a `tool -V` banner such as
// "ptx-linker 0.9.1" or "ptx-linker v0.9.1 (abc1234)".
func ParseVersion(lines []string) (*semver.Version, error) {
	for _, line := range lines {
		for _, field := range strings.Fields(line) {
			field = strings.TrimPrefix(field, "v")
			if v, err := semver.NewVersion(field); err == nil {
				return v, nil
			}
		}
	}
	return nil, errs.New(errs.KindInternal, "no version found in banner %q", strings.Join(lines, " "))
}
