// Package crate analyses a Rust source crate: just enough manifest
// parsing to learn the crate name and which target kinds it can build.
package crate

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/cratekit/ptxforge/src/errs"
)

// TargetDirEnv overrides where nested build output lands.
const TargetDirEnv = "PTXFORGE_TARGET_DIR"

// Crate is a read-only snapshot of a source crate on disk.
type Crate struct {
	path          string
	name          string
	libCrateTypes []string
	hasLib        bool
	hasBin        bool
}

type manifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Lib *struct {
		Path      string   `toml:"path"`
		CrateType []string `toml:"crate-type"`
	} `toml:"lib"`
	Bin []struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"bin"`
}

// Analyse reads the crate manifest at dir and inspects its source layout.
func Analyse(dir string) (*Crate, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, err, "resolving crate path %q", dir)
	}

	data, err := os.ReadFile(filepath.Join(abs, "Cargo.toml"))
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, err, "reading manifest in %q", abs)
	}

	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errs.Wrap(errs.KindIO, err, "parsing Cargo.toml in %q", abs)
	}
	if m.Package.Name == "" {
		return nil, errs.New(errs.KindIO, "Cargo.toml in %q has no package name", abs)
	}

	c := &Crate{path: abs, name: m.Package.Name}

	if m.Lib != nil {
		c.hasLib = true
		c.libCrateTypes = m.Lib.CrateType
	} else if fileExists(filepath.Join(abs, "src", "lib.rs")) {
		c.hasLib = true
	}

	if len(m.Bin) > 0 || fileExists(filepath.Join(abs, "src", "main.rs")) {
		c.hasBin = true
	}

	return c, nil
}

// Name returns the manifest package name.
func (c *Crate) Name() string { return c.name }

// Path returns the absolute crate directory.
func (c *Crate) Path() string { return c.path }

// OutputPrefix is the artifact file stem cargo uses for library targets:
// the crate name with hyphens replaced by underscores.
func (c *Crate) OutputPrefix() string {
	return strings.ReplaceAll(c.name, "-", "_")
}

// HasLibraryTarget reports whether the crate declares a lib target.
func (c *Crate) HasLibraryTarget() bool { return c.hasLib }

// HasBinaryTarget reports whether the crate declares a bin target.
func (c *Crate) HasBinaryTarget() bool { return c.hasBin }

// LibCrateTypes returns the manifest's [lib] crate-type list, if any.
func (c *Crate) LibCrateTypes() []string { return c.libCrateTypes }

// OutputDir resolves where the nested build writes its target directory.
// Priority: PTXFORGE_TARGET_DIR, then OUT_DIR (build-script context), then
// a stable per-crate directory under the system temp dir. The directory is
// created if missing.
func (c *Crate) OutputDir() (string, error) {
	dir := os.Getenv(TargetDirEnv)
	if dir == "" {
		dir = os.Getenv("OUT_DIR")
	}
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "ptxforge", fmt.Sprintf("%s-%s", c.name, shortHash(c.path)))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errs.Wrap(errs.KindIO, err, "creating output directory %q", dir)
	}
	return dir, nil
}

// shortHash keys the temp output dir on the crate location so two crates
// with the same name cannot collide.
func shortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
