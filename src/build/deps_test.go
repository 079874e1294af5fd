package build

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cratekit/ptxforge/src/errs"
)

func TestParseDepFile(t *testing.T) {
	contents := `/out/nvptx64-nvidia-cuda/release/sample.ptx: /crate/src/lib.rs /crate/src/kernels.rs

/out/nvptx64-nvidia-cuda/release/sample.d: /crate/src/lib.rs /crate/src/kernels.rs
`
	got := parseDepFile(contents)
	want := []string{
		"/crate/src/lib.rs", "/crate/src/kernels.rs",
		"/crate/src/lib.rs", "/crate/src/kernels.rs",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseDepFile = %v, want %v", got, want)
	}
}

func TestParseDepFileIgnoresNonRuleLines(t *testing.T) {
	if got := parseDepFile("no rule here\n\n# comment\n"); len(got) != 0 {
		t.Errorf("parseDepFile = %v, want empty", got)
	}
}

func TestFindLockfileWalksUp(t *testing.T) {
	root := t.TempDir()
	member := filepath.Join(root, "crates", "device")
	if err := os.MkdirAll(member, 0o755); err != nil {
		t.Fatal(err)
	}
	lock := filepath.Join(root, "Cargo.lock")
	if err := os.WriteFile(lock, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	got, ok := findLockfile(member)
	if !ok || got != lock {
		t.Errorf("findLockfile = %q, %v; want %q", got, ok, lock)
	}

	if _, ok := findLockfile(t.TempDir()); ok {
		t.Error("found a lockfile where none exists")
	}
}

func TestDependencies(t *testing.T) {
	cratePath := t.TempDir()
	if err := os.WriteFile(filepath.Join(cratePath, "Cargo.toml"), []byte("[package]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cratePath, "Cargo.lock"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	artifact := filepath.Join(outDir, "sample.ptx")
	depFile := filepath.Join(outDir, "sample.d")
	if err := os.WriteFile(depFile, []byte(artifact+": /crate/src/lib.rs\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := &BuildOutput{ArtifactPath: artifact, cratePath: cratePath}
	deps, err := out.Dependencies()
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}

	want := []string{
		"/crate/src/lib.rs",
		filepath.Join(cratePath, "Cargo.toml"),
		filepath.Join(cratePath, "Cargo.lock"),
	}
	if !reflect.DeepEqual(deps, want) {
		t.Errorf("deps = %v, want %v", deps, want)
	}
}

func TestDependenciesMissingDepFile(t *testing.T) {
	out := &BuildOutput{ArtifactPath: filepath.Join(t.TempDir(), "sample.ptx")}
	_, err := out.Dependencies()
	if errs.KindOf(err) != errs.KindIO {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindIO)
	}
}

func TestDependenciesEmptyDepFile(t *testing.T) {
	outDir := t.TempDir()
	artifact := filepath.Join(outDir, "sample.ptx")
	if err := os.WriteFile(filepath.Join(outDir, "sample.d"), []byte("\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := &BuildOutput{ArtifactPath: artifact, cratePath: t.TempDir()}
	if _, err := out.Dependencies(); errs.KindOf(err) != errs.KindInternal {
		t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindInternal)
	}
}
