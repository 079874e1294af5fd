package build

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cratekit/ptxforge/src/errs"
)

// Dependencies lists the source files the artifact was built from, read
// from the compiler's .d makefile fragment next to the artifact, plus the
// crate manifest and the workspace lockfile. Intended for forwarding as
// cargo:rerun-if-changed lines so the host rebuilds on source changes.
func (o *BuildOutput) Dependencies() ([]string, error) {
	depPath := strings.TrimSuffix(o.ArtifactPath, filepath.Ext(o.ArtifactPath)) + ".d"
	data, err := os.ReadFile(depPath)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, err, "reading dependency file %q", depPath)
	}

	deps := parseDepFile(string(data))
	if len(deps) == 0 {
		return nil, errs.New(errs.KindInternal, "dependency file %q lists no sources", depPath)
	}

	deps = append(deps, filepath.Join(o.cratePath, "Cargo.toml"))
	if lock, ok := findLockfile(o.cratePath); ok {
		deps = append(deps, lock)
	}
	return deps, nil
}

// parseDepFile extracts prerequisite paths from "target: dep dep ..."
// lines. The colon split starts after any drive letter so Windows paths
// survive.
func parseDepFile(contents string) []string {
	var deps []string
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ": ")
		if idx < 0 {
			continue
		}
		for _, field := range strings.Fields(line[idx+2:]) {
			deps = append(deps, field)
		}
	}
	return deps
}

// findLockfile walks from the crate dir toward the filesystem root; in a
// workspace the lockfile lives above the member crate.
func findLockfile(dir string) (string, bool) {
	for {
		candidate := filepath.Join(dir, "Cargo.lock")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
