// Package executor runs supervised external commands with independent
// stdout/stderr streaming. Both pipes are drained concurrently: a child
// that fills one pipe while the parent reads the other would otherwise
// deadlock, so concurrent drainage is a correctness requirement here,
// not a performance choice.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cratekit/ptxforge/src/errs"
)

// Scanner buffer cap: rustc renders full source snippets into single
// JSON lines, which easily exceed bufio's default.
const maxLineBytes = 4 * 1024 * 1024

// stderrTailLines bounds the captured stderr carried inside errors.
const stderrTailLines = 64

// Tool identifies an executable to run. EnvOverride, when set and present
// in the environment, takes priority over PATH lookup (e.g. CARGO=…).
type Tool struct {
	Name        string
	EnvOverride string
	Hint        string // remediation suggestion when the tool is missing
}

// Path resolves the tool to an executable path.
func (t Tool) Path() (string, error) {
	if t.EnvOverride != "" {
		if p := os.Getenv(t.EnvOverride); p != "" {
			return p, nil
		}
	}
	p, err := exec.LookPath(t.Name)
	if err != nil {
		e := errs.Wrap(errs.KindToolNotFound, err, "%q not found", t.Name)
		e.Command = t.Name
		e.Hint = t.Hint
		return "", e
	}
	return p, nil
}

// Output is the captured result of a finished command.
type Output struct {
	Stdout   []string
	Stderr   []string
	ExitCode int
}

// Runner configures and runs one command. Environment is an explicit
// overlay on top of the parent environment; nothing else leaks in.
type Runner struct {
	tool   Tool
	args   []string
	dir    string
	env    map[string]string
	okExit func(int) bool
}

// New creates a runner for the given tool.
func New(tool Tool) *Runner {
	return &Runner{tool: tool, env: map[string]string{}}
}

// WithArgs sets the argument list.
func (r *Runner) WithArgs(args ...string) *Runner {
	r.args = args
	return r
}

// WithDir sets the working directory.
func (r *Runner) WithDir(dir string) *Runner {
	r.dir = dir
	return r
}

// WithEnv adds one environment variable to the overlay.
func (r *Runner) WithEnv(key, value string) *Runner {
	r.env[key] = value
	return r
}

// WithExitCheck installs a custom success predicate for tools with
// nonstandard exit-code conventions. Default: code == 0.
func (r *Runner) WithExitCheck(ok func(int) bool) *Runner {
	r.okExit = ok
	return r
}

// Run executes the command and captures both streams.
func (r *Runner) Run(ctx context.Context) (*Output, error) {
	return r.RunStream(ctx, nil, nil)
}

// RunStream executes the command, invoking onStdout/onStderr per line as
// the child produces them. Lines within one stream arrive in emission
// order; no interleaving order is guaranteed between the two streams.
// Both streams are fully drained before RunStream returns.
func (r *Runner) RunStream(ctx context.Context, onStdout, onStderr func(string)) (*Output, error) {
	path, err := r.tool.Path()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, r.args...)
	cmd.Dir = r.dir
	cmd.Env = os.Environ()
	for _, k := range sortedKeys(r.env) {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, r.env[k]))
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, err, "opening stdout pipe for %q", r.tool.Name)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, err, "opening stderr pipe for %q", r.tool.Name)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			e := errs.Wrap(errs.KindToolNotFound, err, "%q could not be started", r.tool.Name)
			e.Command = r.tool.Name
			e.Hint = r.tool.Hint
			return nil, e
		}
		return nil, errs.Wrap(errs.KindIO, err, "starting %q", r.tool.Name)
	}

	out := &Output{}
	var g errgroup.Group
	g.Go(func() error {
		return scanLines(stdoutPipe, func(line string) {
			out.Stdout = append(out.Stdout, line)
			if onStdout != nil {
				onStdout(line)
			}
		})
	})
	g.Go(func() error {
		return scanLines(stderrPipe, func(line string) {
			out.Stderr = append(out.Stderr, line)
			if onStderr != nil {
				onStderr(line)
			}
		})
	})
	scanErr := g.Wait()

	waitErr := cmd.Wait()
	out.ExitCode = exitCode(waitErr)

	if scanErr != nil {
		return out, errs.Wrap(errs.KindIO, scanErr, "reading output of %q", r.tool.Name)
	}

	if ctx.Err() != nil {
		e := errs.Wrap(errs.KindTimedOut, ctx.Err(), "%q was terminated", r.tool.Name)
		e.Command = r.tool.Name
		return out, e
	}

	ok := r.okExit
	if ok == nil {
		ok = func(code int) bool { return code == 0 }
	}
	if !ok(out.ExitCode) {
		e := errs.New(errs.KindInvocationFailed, "build command failed")
		e.Command = r.tool.Name
		e.ExitCode = out.ExitCode
		e.Stderr = tail(out.Stderr, stderrTailLines)
		e.Err = waitErr
		return out, e
	}

	return out, nil
}

func scanLines(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		fn(sc.Text())
	}
	return sc.Err()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

// Deterministic env assembly keeps command construction reproducible.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
