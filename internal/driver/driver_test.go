package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snafu-upgrade/internal/cargo"
)

// scriptedChecker replays canned cargo output, one entry per invocation.
type scriptedChecker struct {
	t      *testing.T
	calls  int
	script func(call int, dir string) (*cargo.CheckResult, error)
}

func (c *scriptedChecker) Check(_ context.Context, dir string, _ []string) (*cargo.CheckResult, error) {
	c.calls++
	return c.script(c.calls, dir)
}

func ndjson(lines ...string) *cargo.CheckResult {
	return &cargo.CheckResult{Stdout: []byte(strings.Join(lines, "\n"))}
}

func errorMessage(code, file string, byteStart, byteEnd, line, col int) string {
	return fmt.Sprintf(`{"reason":"compiler-message","message":{"code":{"code":%q},"level":"error","message":"cannot find value","spans":[{"file_name":%q,"byte_start":%d,"byte_end":%d,"line_start":%d,"column_start":%d,"is_primary":true}]}}`,
		code, file, byteStart, byteEnd, line, col)
}

func errorOver(t *testing.T, dir, relPath, ident string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(dir, relPath))
	if err != nil {
		t.Fatalf("failed to read %s: %v", relPath, err)
	}
	start := strings.Index(string(content), ident)
	if start < 0 {
		t.Fatalf("%s does not contain %q", relPath, ident)
	}
	return errorMessage("E0425", relPath, start, start+len(ident), 1, start+1)
}

const (
	finishedOK     = `{"reason":"build-finished","success":true}`
	finishedFailed = `{"reason":"build-finished","success":false}`
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create dirs: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func readBack(t *testing.T, dir, relPath string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(dir, relPath))
	if err != nil {
		t.Fatalf("failed to read back %s: %v", relPath, err)
	}
	return string(content)
}

func TestRunConvergesImmediatelyOnCleanProject(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/main.rs": "fn main() {}\n"})
	checker := &scriptedChecker{t: t, script: func(call int, _ string) (*cargo.CheckResult, error) {
		return ndjson(finishedOK), nil
	}}

	res, err := Run(context.Background(), checker, Options{Directory: dir})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Outcome != OutcomeConverged {
		t.Fatalf("expected converged, got %s", res.Outcome)
	}
	if checker.calls != 1 {
		t.Fatalf("expected a single check, got %d", checker.calls)
	}
	if len(res.Iterations) != 1 || res.Iterations[0].FixesApplied != 0 {
		t.Fatalf("expected one iteration with zero fixes, got %+v", res.Iterations)
	}
}

func TestRunFixesSingleDiagnosticAndConverges(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"src/main.rs": "fn main() {\n    EnumVariant1.fail()\n}\n",
	})
	checker := &scriptedChecker{t: t, script: func(call int, d string) (*cargo.CheckResult, error) {
		if call == 1 {
			return ndjson(errorOver(t, d, "src/main.rs", "EnumVariant1"), finishedFailed), nil
		}
		return ndjson(finishedOK), nil
	}}

	res, err := Run(context.Background(), checker, Options{Directory: dir, Suffix: "Snafu"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Outcome != OutcomeConverged {
		t.Fatalf("expected converged, got %s", res.Outcome)
	}
	if checker.calls != 2 {
		t.Fatalf("expected two checks, got %d", checker.calls)
	}

	got := readBack(t, dir, "src/main.rs")
	want := "fn main() {\n    EnumVariant1Snafu.fail()\n}\n"
	if got != want {
		t.Fatalf("file not rewritten as expected:\nwant %q\ngot  %q", want, got)
	}
	if len(res.Changed) != 1 || res.Changed[0].EditCount != 1 {
		t.Fatalf("expected exactly one file with one edit, got %+v", res.Changed)
	}
}

func TestRunStructSelectorOneFileOneLine(t *testing.T) {
	original := "fn broken() -> Result<(), Error> {\n    StructError { name: \"x\" }.fail()\n}\n"
	dir := writeProject(t, map[string]string{
		"src/lib.rs":   original,
		"src/other.rs": "fn untouched() {}\n",
	})
	checker := &scriptedChecker{t: t, script: func(call int, d string) (*cargo.CheckResult, error) {
		if call == 1 {
			return ndjson(errorOver(t, d, "src/lib.rs", "StructError"), finishedFailed), nil
		}
		return ndjson(finishedOK), nil
	}}

	res, err := Run(context.Background(), checker, Options{Directory: dir})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Outcome != OutcomeConverged {
		t.Fatalf("expected converged, got %s", res.Outcome)
	}

	got := readBack(t, dir, "src/lib.rs")
	want := strings.Replace(original, "StructError", "StructSnafu", 1)
	if got != want {
		t.Fatalf("expected StructSnafu rewrite:\nwant %q\ngot  %q", want, got)
	}
	if other := readBack(t, dir, "src/other.rs"); other != "fn untouched() {}\n" {
		t.Fatalf("unrelated file was modified: %q", other)
	}
	if len(res.Changed) != 1 {
		t.Fatalf("expected exactly one changed file, got %+v", res.Changed)
	}
}

func TestRunDryRunLeavesFilesUntouched(t *testing.T) {
	files := map[string]string{
		"src/a.rs": "First.fail()\n",
		"src/b.rs": "SecondError.fail()\nThirdContext.fail()\n",
	}
	dir := writeProject(t, files)
	checker := &scriptedChecker{t: t, script: func(call int, d string) (*cargo.CheckResult, error) {
		return ndjson(
			errorOver(t, d, "src/a.rs", "First"),
			errorOver(t, d, "src/b.rs", "SecondError"),
			errorOver(t, d, "src/b.rs", "ThirdContext"),
			finishedFailed,
		), nil
	}}

	res, err := Run(context.Background(), checker, Options{Directory: dir, DryRun: true})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Outcome != OutcomeConverged {
		t.Fatalf("expected converged dry run, got %s", res.Outcome)
	}
	if checker.calls != 1 {
		t.Fatalf("dry run must not re-check, got %d calls", checker.calls)
	}
	if len(res.Proposed) != 3 {
		t.Fatalf("expected 3 proposals, got %d: %+v", len(res.Proposed), res.Proposed)
	}

	for name, content := range files {
		if got := readBack(t, dir, name); got != content {
			t.Fatalf("dry run modified %s:\nwant %q\ngot  %q", name, content, got)
		}
	}
}

func TestRunStalledEchoesRemainingDiagnostics(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/main.rs": "let x: u8 = 5000;\n"})
	checker := &scriptedChecker{t: t, script: func(call int, _ string) (*cargo.CheckResult, error) {
		return ndjson(
			`{"reason":"compiler-message","message":{"code":{"code":"E0308"},"level":"error","message":"mismatched types","spans":[{"file_name":"src/main.rs","byte_start":12,"byte_end":16,"line_start":1,"column_start":13,"is_primary":true}]}}`,
			finishedFailed,
		), nil
	}}

	res, err := Run(context.Background(), checker, Options{Directory: dir})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Outcome != OutcomeStalled {
		t.Fatalf("expected stalled, got %s", res.Outcome)
	}
	if len(res.Remaining) != 1 {
		t.Fatalf("expected 1 remaining diagnostic, got %+v", res.Remaining)
	}
	if res.Remaining[0].Message != "mismatched types" || res.Remaining[0].Code != "E0308" {
		t.Fatalf("remaining diagnostic not echoed verbatim: %+v", res.Remaining[0])
	}
	if checker.calls != 1 {
		t.Fatalf("stalled run must stop after the first unproductive iteration, got %d calls", checker.calls)
	}
}

func TestRunNeverIssuesSameSpanTwice(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/main.rs": "Foo.fail()\n"})

	// The checker keeps reporting the same span even after the patch, as
	// if the fix never took effect.
	checker := &scriptedChecker{t: t, script: func(call int, _ string) (*cargo.CheckResult, error) {
		return ndjson(errorMessage("E0425", "src/main.rs", 0, 3, 1, 1), finishedFailed), nil
	}}

	res, err := Run(context.Background(), checker, Options{Directory: dir, MaxIterations: 10})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Outcome != OutcomeStalled {
		t.Fatalf("expected stalled, got %s", res.Outcome)
	}
	if checker.calls > 2 {
		t.Fatalf("driver retried the same span %d times", checker.calls)
	}

	// The span was patched exactly once.
	got := readBack(t, dir, "src/main.rs")
	if strings.Count(got, "Snafu") != 1 {
		t.Fatalf("expected exactly one suffix application, got %q", got)
	}
}

func TestRunExhaustsIterationBudget(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/main.rs": "Aaa Bbb Ccc Ddd\n"})
	idents := []string{"Aaa", "Bbb", "Ccc", "Ddd"}

	checker := &scriptedChecker{t: t, script: func(call int, d string) (*cargo.CheckResult, error) {
		// One new identifier per iteration: forward progress every time,
		// but never done within the budget.
		return ndjson(errorOver(t, d, "src/main.rs", idents[(call-1)%len(idents)]), finishedFailed), nil
	}}

	res, err := Run(context.Background(), checker, Options{Directory: dir, MaxIterations: 2})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Outcome != OutcomeExhausted {
		t.Fatalf("expected exhausted, got %s", res.Outcome)
	}
	if checker.calls != 2 {
		t.Fatalf("expected exactly 2 checks, got %d", checker.calls)
	}
}

func TestRunCompilerUnavailable(t *testing.T) {
	dir := writeProject(t, nil)
	checker := &scriptedChecker{t: t, script: func(call int, _ string) (*cargo.CheckResult, error) {
		return nil, fmt.Errorf("%w: exec: \"cargo\": executable file not found", cargo.ErrCompilerUnavailable)
	}}

	res, err := Run(context.Background(), checker, Options{Directory: dir})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if res.Outcome != OutcomeCompilerUnavailable {
		t.Fatalf("expected compiler unavailable, got %s", res.Outcome)
	}
}

func TestRunMalformedOutputAborts(t *testing.T) {
	dir := writeProject(t, nil)
	checker := &scriptedChecker{t: t, script: func(call int, _ string) (*cargo.CheckResult, error) {
		return &cargo.CheckResult{Stdout: []byte("error: not json at all")}, nil
	}}

	res, err := Run(context.Background(), checker, Options{Directory: dir})
	if !errors.Is(err, cargo.ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
	if res.Outcome != OutcomeAborted {
		t.Fatalf("expected aborted, got %s", res.Outcome)
	}
}

func TestRunCancelledContextAborts(t *testing.T) {
	dir := writeProject(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker := &scriptedChecker{t: t, script: func(call int, _ string) (*cargo.CheckResult, error) {
		t.Fatalf("checker must not run after cancellation")
		return nil, nil
	}}

	res, err := Run(ctx, checker, Options{Directory: dir})
	if err == nil {
		t.Fatalf("expected a cancellation error")
	}
	if res.Outcome != OutcomeAborted {
		t.Fatalf("expected aborted, got %s", res.Outcome)
	}
}

func TestRunRecordsIterationResults(t *testing.T) {
	dir := writeProject(t, map[string]string{"src/main.rs": "Foo.fail()\n"})
	checker := &scriptedChecker{t: t, script: func(call int, d string) (*cargo.CheckResult, error) {
		if call == 1 {
			return ndjson(errorOver(t, d, "src/main.rs", "Foo"), finishedFailed), nil
		}
		return ndjson(finishedOK), nil
	}}

	res, err := Run(context.Background(), checker, Options{Directory: dir})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(res.Iterations) != 2 {
		t.Fatalf("expected 2 iteration results, got %+v", res.Iterations)
	}
	first, second := res.Iterations[0], res.Iterations[1]
	if first.CompiledOK || first.DiagnosticsSeen != 1 || first.FixesApplied != 1 {
		t.Fatalf("unexpected first iteration %+v", first)
	}
	if !second.CompiledOK || second.FixesApplied != 0 {
		t.Fatalf("unexpected second iteration %+v", second)
	}
}
