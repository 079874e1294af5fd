package crate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cratekit/ptxforge/src/errs"
)

func writeCrate(t *testing.T, manifest string, sources ...string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, src := range sources {
		path := filepath.Join(dir, src)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("// test fixture\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestAnalyseTargetDetection(t *testing.T) {
	cases := []struct {
		name     string
		manifest string
		sources  []string
		wantLib  bool
		wantBin  bool
	}{
		{
			name:     "lib by source layout",
			manifest: "[package]\nname = \"sample\"\nversion = \"0.1.0\"\n",
			sources:  []string{"src/lib.rs"},
			wantLib:  true,
		},
		{
			name:     "bin by source layout",
			manifest: "[package]\nname = \"sample\"\nversion = \"0.1.0\"\n",
			sources:  []string{"src/main.rs"},
			wantBin:  true,
		},
		{
			name:     "both targets",
			manifest: "[package]\nname = \"sample\"\nversion = \"0.1.0\"\n",
			sources:  []string{"src/lib.rs", "src/main.rs"},
			wantLib:  true,
			wantBin:  true,
		},
		{
			name: "explicit lib section without src/lib.rs",
			manifest: "[package]\nname = \"sample\"\nversion = \"0.1.0\"\n\n" +
				"[lib]\npath = \"kernel/entry.rs\"\n",
			sources: []string{"kernel/entry.rs"},
			wantLib: true,
		},
		{
			name: "explicit bin section without src/main.rs",
			manifest: "[package]\nname = \"sample\"\nversion = \"0.1.0\"\n\n" +
				"[[bin]]\nname = \"tool\"\npath = \"tools/tool.rs\"\n",
			sources: []string{"tools/tool.rs"},
			wantBin: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeCrate(t, tc.manifest, tc.sources...)
			c, err := Analyse(dir)
			if err != nil {
				t.Fatalf("Analyse: %v", err)
			}
			if c.Name() != "sample" {
				t.Errorf("name = %q", c.Name())
			}
			if c.HasLibraryTarget() != tc.wantLib {
				t.Errorf("HasLibraryTarget = %v, want %v", c.HasLibraryTarget(), tc.wantLib)
			}
			if c.HasBinaryTarget() != tc.wantBin {
				t.Errorf("HasBinaryTarget = %v, want %v", c.HasBinaryTarget(), tc.wantBin)
			}
		})
	}
}

func TestAnalyseLibCrateTypes(t *testing.T) {
	dir := writeCrate(t, "[package]\nname = \"sample\"\nversion = \"0.1.0\"\n\n"+
		"[lib]\ncrate-type = [\"cdylib\", \"rlib\"]\n", "src/lib.rs")

	c, err := Analyse(dir)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	types := c.LibCrateTypes()
	if len(types) != 2 || types[0] != "cdylib" || types[1] != "rlib" {
		t.Errorf("LibCrateTypes = %v", types)
	}
}

func TestAnalyseFailures(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name:  "missing manifest",
			setup: func(t *testing.T) string { return t.TempDir() },
		},
		{
			name: "malformed manifest",
			setup: func(t *testing.T) string {
				return writeCrate(t, "[package\nname =")
			},
		},
		{
			name: "manifest without package name",
			setup: func(t *testing.T) string {
				return writeCrate(t, "[package]\nversion = \"0.1.0\"\n")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Analyse(tc.setup(t))
			if err == nil {
				t.Fatal("Analyse should fail")
			}
			if errs.KindOf(err) != errs.KindIO {
				t.Errorf("kind = %q, want %q", errs.KindOf(err), errs.KindIO)
			}
		})
	}
}

func TestOutputPrefix(t *testing.T) {
	dir := writeCrate(t, "[package]\nname = \"gpu-kernel-set\"\nversion = \"0.1.0\"\n", "src/lib.rs")
	c, err := Analyse(dir)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	if got := c.OutputPrefix(); got != "gpu_kernel_set" {
		t.Errorf("OutputPrefix = %q, want gpu_kernel_set", got)
	}
}

func TestOutputDirPrecedence(t *testing.T) {
	dir := writeCrate(t, "[package]\nname = \"sample\"\nversion = \"0.1.0\"\n", "src/lib.rs")
	c, err := Analyse(dir)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}

	explicit := filepath.Join(t.TempDir(), "explicit")
	t.Setenv(TargetDirEnv, explicit)
	t.Setenv("OUT_DIR", filepath.Join(t.TempDir(), "outdir"))

	got, err := c.OutputDir()
	if err != nil {
		t.Fatalf("OutputDir: %v", err)
	}
	if got != explicit {
		t.Errorf("OutputDir = %q, want the %s override", got, TargetDirEnv)
	}
	if _, err := os.Stat(got); err != nil {
		t.Errorf("OutputDir did not create the directory: %v", err)
	}

	t.Setenv(TargetDirEnv, "")
	got, err = c.OutputDir()
	if err != nil {
		t.Fatalf("OutputDir: %v", err)
	}
	if filepath.Base(filepath.Dir(got)) != "outdir" && !strings.Contains(got, "outdir") {
		t.Errorf("OutputDir = %q, want the OUT_DIR fallback", got)
	}

	t.Setenv("OUT_DIR", "")
	got, err = c.OutputDir()
	if err != nil {
		t.Fatalf("OutputDir: %v", err)
	}
	if !strings.Contains(got, "ptxforge") || !strings.Contains(got, "sample-") {
		t.Errorf("OutputDir = %q, want a per-crate temp directory", got)
	}
}

func TestOutputDirStableAcrossCalls(t *testing.T) {
	dir := writeCrate(t, "[package]\nname = \"sample\"\nversion = \"0.1.0\"\n", "src/lib.rs")
	c, err := Analyse(dir)
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	t.Setenv(TargetDirEnv, "")
	t.Setenv("OUT_DIR", "")

	first, err := c.OutputDir()
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.OutputDir()
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("temp output dir is not stable: %q vs %q", first, second)
	}
}
