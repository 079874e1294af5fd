package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cratekit/ptxforge/src/build"
	"github.com/cratekit/ptxforge/src/report"
)

var (
	bProfile   string
	bCrateType string
	bTarget    string
	bToolchain string
	bCargoArgs []string
	bEmit      string
	bColor     string
	bFreshness bool
)

var buildCmd = &cobra.Command{
	Use:   "build [crate-dir]",
	Short: "Build a crate for the NVPTX target",
	Long: `Build a crate as PTX assembly via cargo.

Runs cargo rustc against the NVPTX target with structured diagnostics,
resolves the produced .ptx artifact, and reports it. Inside a cargo build
script the result is emitted through the cargo: protocol; elsewhere a
human-readable report is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&bProfile, "profile", "", "build profile: debug or release")
	buildCmd.Flags().StringVar(&bCrateType, "crate-type", "", "crate type: bin, lib or auto")
	buildCmd.Flags().StringVar(&bTarget, "target", "", "override target triple")
	buildCmd.Flags().StringVar(&bToolchain, "toolchain", "", "cargo toolchain channel (e.g. nightly)")
	buildCmd.Flags().StringArrayVar(&bCargoArgs, "cargo-arg", nil, "extra argument for the nested cargo invocation (repeatable)")
	buildCmd.Flags().StringVar(&bEmit, "emit", "", "output mode: cargo, report or auto")
	buildCmd.Flags().StringVar(&bColor, "color", "", "colorize output: auto, always or never")
	buildCmd.Flags().BoolVar(&bFreshness, "freshness", false, "skip the build when crate content is unchanged")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	opts, err := buildOptions()
	if err != nil {
		return err
	}

	cargoMode := emitCargo()

	builder, err := build.New(dir, opts)
	if err != nil {
		reportFailure(cargoMode, err)
		return err
	}

	start := time.Now()
	status, err := builder.Build(context.Background())
	elapsed := time.Since(start)
	if err != nil {
		reportFailure(cargoMode, err)
		return err
	}

	if cargoMode {
		emitCargoResult(status)
		return nil
	}

	printHumanResult(builder, status, opts, elapsed)
	return nil
}

// buildOptions merges flags over config values.
func buildOptions() (build.Options, error) {
	var opts build.Options

	profile, err := build.ParseProfile(pick(bProfile, cfg.Profile))
	if err != nil {
		return opts, err
	}
	crateType, err := build.ParseCrateType(pick(bCrateType, cfg.CrateType))
	if err != nil {
		return opts, err
	}

	opts = build.Options{
		Profile:   profile,
		CrateType: crateType,
		Target:    pick(bTarget, cfg.Target),
		Toolchain: pick(bToolchain, cfg.Toolchain),
		CargoArgs: append(append([]string{}, cfg.CargoArgs...), bCargoArgs...),
		Colors:    useColor(),
		Freshness: bFreshness || cfg.Freshness,
	}
	return opts, nil
}

func pick(flag, fromConfig string) string {
	if flag != "" {
		return flag
	}
	return fromConfig
}

func useColor() bool {
	switch pick(bColor, cfg.Colors) {
	case "always":
		return true
	case "never":
		return false
	default:
		return report.UseColor()
	}
}

// emitCargo decides whether results travel the host diagnostic channel.
func emitCargo() bool {
	switch pick(bEmit, cfg.Emit) {
	case "cargo":
		return true
	case "report":
		return false
	default:
		return report.InsideCargo()
	}
}

func reportFailure(cargoMode bool, err error) {
	if cargoMode {
		report.NewCargoAdapter().Error(err)
		return
	}
	report.NewPrinter().PrintError(err)
}

// emitCargoResult forwards a successful build through the cargo: protocol:
// warnings, the artifact path env var, and rerun-if-changed entries.
func emitCargoResult(status *build.BuildStatus) {
	adapter := report.NewCargoAdapter()

	if status.Outcome == build.OutcomeNotNeeded {
		return
	}

	out := status.Output
	for _, d := range out.Diagnostics {
		adapter.Diagnostic(d)
	}

	adapter.RustcEnv(cfg.ArtifactEnv, out.ArtifactPath)

	deps, err := out.Dependencies()
	if err != nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "warning: dependency tracking unavailable: %v\n", err)
		}
		return
	}
	for _, dep := range deps {
		adapter.RerunIfChanged(dep)
	}
}

func printHumanResult(builder *build.Builder, status *build.BuildStatus, opts build.Options, elapsed time.Duration) {
	color := useColor()
	w := os.Stdout

	sec := report.NewSection(w, "Build", elapsed, color)
	sec.Row("%-12s%s", "crate", builder.Crate().Name())
	sec.Row("%-12s%s", "target", pickTarget(opts))
	sec.Row("%-12s%s", "profile", opts.Profile)

	if status.Outcome == build.OutcomeNotNeeded {
		sec.Separator()
		sec.Row("%-12s%s  up to date", "status", report.StatusIcon("skipped", color))
		sec.Close()
		return
	}

	out := status.Output
	sec.Row("%-12s%s", "artifact", out.ArtifactPath)
	sec.Separator()
	sec.Row("%-12s%s  %s", "status", report.StatusIcon("success", color),
		report.SummaryLine(0, out.Warnings(), color))
	sec.Close()

	if len(out.Diagnostics) > 0 {
		report.NewPrinter().Print(out.Diagnostics)
	}
	if out.Degraded > 0 && verbose {
		fmt.Fprintf(os.Stderr, "warning: %d diagnostic line(s) could not be decoded\n", out.Degraded)
	}
}

func pickTarget(opts build.Options) string {
	if opts.Target != "" {
		return opts.Target
	}
	return build.DefaultTarget
}
