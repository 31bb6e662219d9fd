package worker

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"undercity/internal/orcherrors"
)

// CheckResult is the outcome of one detected verification command.
type CheckResult struct {
	Kind   orcherrors.VerifyKind
	Passed bool
	Output string
}

// VerifyReport is the structured result of running every detected
// verification command in a worktree.
type VerifyReport struct {
	Checks []CheckResult
}

// Passed reports whether every detected check passed. A report with no
// detected checks trivially passes — an empty worktree has nothing to
// verify.
func (r *VerifyReport) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// FirstFailure returns the first failing check, or nil if none failed.
func (r *VerifyReport) FirstFailure() *CheckResult {
	for i := range r.Checks {
		if !r.Checks[i].Passed {
			return &r.Checks[i]
		}
	}
	return nil
}

// step is one candidate verification command, run only if its detector
// reports the project uses that toolchain.
type step struct {
	kind    orcherrors.VerifyKind
	detect  func(dir string) bool
	command func(dir string) []string
}

var steps = []step{
	{
		kind:    orcherrors.VerifyTypecheck,
		detect:  hasGoMod,
		command: func(dir string) []string { return []string{"go", "vet", "./..."} },
	},
	{
		kind:    orcherrors.VerifyBuild,
		detect:  hasGoMod,
		command: func(dir string) []string { return []string{"go", "build", "./..."} },
	},
	{
		kind:    orcherrors.VerifyTest,
		detect:  hasGoMod,
		command: func(dir string) []string { return []string{"go", "test", "./..."} },
	},
	{
		kind:    orcherrors.VerifyLint,
		detect:  hasGolangciConfig,
		command: func(dir string) []string { return []string{"golangci-lint", "run", "./..."} },
	},
	{
		kind:    orcherrors.VerifyTypecheck,
		detect:  func(dir string) bool { return hasPackageJSONScript(dir, "typecheck") },
		command: func(dir string) []string { return []string{"npm", "run", "typecheck"} },
	},
	{
		kind:    orcherrors.VerifyLint,
		detect:  func(dir string) bool { return hasPackageJSONScript(dir, "lint") },
		command: func(dir string) []string { return []string{"npm", "run", "lint"} },
	},
	{
		kind:    orcherrors.VerifyTest,
		detect:  func(dir string) bool { return hasPackageJSONScript(dir, "test") },
		command: func(dir string) []string { return []string{"npm", "run", "test"} },
	},
	{
		kind:    orcherrors.VerifyBuild,
		detect:  func(dir string) bool { return hasPackageJSONScript(dir, "build") },
		command: func(dir string) []string { return []string{"npm", "run", "build"} },
	},
}

// DetectAndRun runs every verification command this worktree's project
// markers indicate it supports. A failing command does not stop the ones
// after it, so the report names every failing check, not just the earliest.
func DetectAndRun(ctx context.Context, dir string, timeout time.Duration) *VerifyReport {
	report := &VerifyReport{}
	for _, st := range steps {
		if !st.detect(dir) {
			continue
		}
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		output, err := runCommand(runCtx, dir, st.command(dir))
		cancel()
		report.Checks = append(report.Checks, CheckResult{
			Kind:   st.kind,
			Passed: err == nil,
			Output: output,
		})
	}
	return report
}

func runCommand(ctx context.Context, dir string, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func hasGoMod(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "go.mod"))
	return err == nil
}

func hasGolangciConfig(dir string) bool {
	for _, name := range []string{".golangci.yml", ".golangci.yaml", ".golangci.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

func hasPackageJSONScript(dir, script string) bool {
	raw, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return false
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return false
	}
	_, ok := pkg.Scripts[script]
	return ok
}

// summarizeFailures renders every failing check's output for a fix prompt.
func summarizeFailures(r *VerifyReport) string {
	var b strings.Builder
	for _, c := range r.Checks {
		if c.Passed {
			continue
		}
		b.WriteString(string(c.Kind))
		b.WriteString(":\n")
		b.WriteString(c.Output)
		b.WriteString("\n\n")
	}
	return b.String()
}
