// Package buildozer wraps the buildozer and bazel commands used by the
// removable-dependency verification loop. Both binaries are expected on
// PATH; everything here is thin process glue around them.
package buildozer

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// Runner executes buildozer and bazel inside one workspace.
type Runner struct {
	Workspace string
	Log       *log.Logger
}

// NewRunner creates a Runner. A nil logger falls back to the package
// default.
func NewRunner(workspace string, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Workspace: workspace, Log: logger}
}

// Deps returns the declared dependency labels of a target via
// `buildozer 'print deps' <target>`.
func (r *Runner) Deps(ctx context.Context, target string) ([]string, error) {
	out, err := r.buildozer(ctx, "print deps", target)
	if err != nil {
		return nil, err
	}

	var deps []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		for _, field := range strings.Fields(scanner.Text()) {
			dep := strings.Trim(field, "[]")
			if dep != "" {
				deps = append(deps, dep)
			}
		}
	}
	return deps, scanner.Err()
}

// RemoveDep removes dep from the target's deps attribute.
func (r *Runner) RemoveDep(ctx context.Context, target, dep string) error {
	_, err := r.buildozer(ctx, fmt.Sprintf("remove deps %s", dep), target)
	return err
}

// AddDep adds dep back to the target's deps attribute.
func (r *Runner) AddDep(ctx context.Context, target, dep string) error {
	_, err := r.buildozer(ctx, fmt.Sprintf("add deps %s", dep), target)
	return err
}

// TestPassesWithoutDep removes dep from target, runs every test target, and
// re-adds the dep regardless of the outcome. It reports whether all tests
// passed without the dependency.
func (r *Runner) TestPassesWithoutDep(ctx context.Context, target, dep string, testTargets []string) (bool, error) {
	if err := r.RemoveDep(ctx, target, dep); err != nil {
		return false, err
	}
	// The dep must come back even when a test run errors out.
	defer func() {
		if err := r.AddDep(context.WithoutCancel(ctx), target, dep); err != nil {
			r.Log.Error("re-adding dependency failed", "target", target, "dep", dep, "err", err)
		}
	}()

	passed := true
	for _, test := range testTargets {
		r.Log.Info("running bazel test", "target", test)
		cmd := exec.CommandContext(ctx, "bazel", "test", test)
		cmd.Dir = r.Workspace
		if out, err := cmd.CombinedOutput(); err != nil {
			passed = false
			r.Log.Warn("bazel test failed without dependency",
				"test", test, "dep", dep, "output", lastLine(out))
		}
	}
	return passed, nil
}

func (r *Runner) buildozer(ctx context.Context, command, target string) (string, error) {
	r.Log.Debug("executing buildozer", "command", command, "target", target)
	cmd := exec.CommandContext(ctx, "buildozer", command, target)
	cmd.Dir = r.Workspace

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("buildozer %q on %s: %w", command, target, err)
	}
	return string(out), nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
