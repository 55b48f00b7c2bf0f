// Package driver runs the fix-point loop: check, extract, propose,
// patch, repeat, until the project converges or no progress can be made.
package driver

import (
	"context"
	"errors"
	"fmt"

	"snafu-upgrade/internal/cargo"
	"snafu-upgrade/internal/diag"
	"snafu-upgrade/internal/observ"
	"snafu-upgrade/internal/patch"
	"snafu-upgrade/internal/rule"
	"snafu-upgrade/internal/source"
)

// DefaultMaxIterations caps the loop; the termination argument bounds
// useful iterations by the number of distinct offending identifiers, and
// real migrations settle within a handful.
const DefaultMaxIterations = 5

// PhaseStatus reports whether a phase started or finished.
type PhaseStatus int

const (
	// PhaseStart indicates a driver phase has begun.
	PhaseStart PhaseStatus = iota
	PhaseEnd
)

// PhaseEvent describes a phase boundary within one iteration.
type PhaseEvent struct {
	Iteration int
	Name      string // "check", "extract", "patch"
	Status    PhaseStatus
	Detail    string
}

// PhaseObserver receives phase events emitted during Run.
type PhaseObserver func(PhaseEvent)

// Options configures a run. Directory is the only tree the patcher may
// modify; it is threaded through explicitly so sequential runs from one
// process never interfere.
type Options struct {
	Directory      string
	Suffix         string
	DryRun         bool
	ExtraCheckArgs []string
	MaxIterations  int
	Observer       PhaseObserver
	Timer          *observ.Timer
	Logf           func(format string, args ...any)
}

// IterationResult summarises one loop iteration.
type IterationResult struct {
	CompiledOK      bool
	DiagnosticsSeen int
	FixesApplied    int
}

// Proposal is one would-be edit, reported instead of applied in dry-run.
type Proposal struct {
	Path    string
	Line    uint32
	Col     uint32
	OldText string
	NewText string
}

// RemainingDiagnostic is a diagnostic the rule could not act on, echoed
// verbatim in the stalled report so it can be handled by hand.
type RemainingDiagnostic struct {
	Path    string
	Line    uint32
	Col     uint32
	Code    string
	Message string
}

// RunResult is the terminal state of a run plus everything the CLI needs
// to report it.
type RunResult struct {
	Outcome    Outcome
	Iterations []IterationResult
	Proposed   []Proposal
	Remaining  []RemainingDiagnostic
	Changed    []patch.FileChange
	Warnings   []string
}

type fixKey struct {
	path  string
	start uint32
	end   uint32
}

// Run executes the fix-point loop with the given checker. The loop is
// strictly sequential: every iteration's diagnostics depend on the
// previous iteration's patches.
func Run(ctx context.Context, checker cargo.Checker, opts Options) (*RunResult, error) {
	if opts.Directory == "" {
		return nil, fmt.Errorf("driver: no project directory")
	}
	if opts.Suffix == "" {
		opts.Suffix = rule.DefaultSuffix
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	observe := opts.Observer
	if observe == nil {
		observe = func(PhaseEvent) {}
	}

	result := &RunResult{Outcome: OutcomeAborted}
	applied := make(map[fixKey]bool)
	var lastDigest [32]byte
	haveLastDigest := false

	for iter := 1; ; iter++ {
		if iter > opts.MaxIterations {
			logf("could not converge on a resolution in %d attempts", opts.MaxIterations)
			result.Outcome = OutcomeExhausted
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			result.Outcome = OutcomeAborted
			return result, fmt.Errorf("driver: %w", err)
		}

		checkRes, err := runCheck(ctx, checker, opts, observe, iter)
		if err != nil {
			if errors.Is(err, cargo.ErrCompilerUnavailable) {
				result.Outcome = OutcomeCompilerUnavailable
			}
			return result, err
		}

		fs := source.NewFileSetWithBase(opts.Directory)
		ext, err := runExtract(checkRes, fs, opts, observe, iter)
		if err != nil {
			return result, err
		}
		logf("iteration %d: check ok=%v, %d relevant diagnostic(s)", iter, ext.Succeeded, ext.Bag.Len())

		if ext.Succeeded && ext.Bag.Len() == 0 {
			result.Iterations = append(result.Iterations, IterationResult{CompiledOK: true})
			result.Outcome = OutcomeConverged
			return result, nil
		}

		fixes, proposals, dropped := proposeFixes(fs, ext.Bag, opts.Suffix, applied)
		if dropped > 0 {
			logf("iteration %d: dropped %d fix(es) already issued this run", iter, dropped)
		}

		iterRes := IterationResult{
			CompiledOK:      ext.Succeeded,
			DiagnosticsSeen: ext.Bag.Len(),
		}

		if len(fixes) == 0 {
			result.Iterations = append(result.Iterations, iterRes)
			if ext.Succeeded {
				// Whatever was reported is not ours to fix; the build
				// is clean, so the migration is done.
				result.Outcome = OutcomeConverged
				return result, nil
			}
			result.Remaining = collectRemaining(ext.Bag)
			result.Outcome = OutcomeStalled
			return result, nil
		}

		digest, err := snapshotDigest(fixes)
		if err != nil {
			return result, err
		}
		if haveLastDigest && digest == lastDigest {
			logf("iteration %d: identical fix set to previous iteration, no progress", iter)
			result.Iterations = append(result.Iterations, iterRes)
			result.Remaining = collectRemaining(ext.Bag)
			result.Outcome = OutcomeStalled
			return result, nil
		}
		lastDigest = digest
		haveLastDigest = true

		if opts.DryRun {
			// Single simulated pass: nothing was mutated, so re-checking
			// would only reproduce the same diagnostics.
			result.Iterations = append(result.Iterations, iterRes)
			result.Proposed = proposals
			result.Outcome = OutcomeConverged
			return result, nil
		}

		applyRes, err := runPatch(fs, fixes, opts, observe, iter)
		if applyRes != nil {
			for _, skip := range applyRes.Skipped {
				result.Warnings = append(result.Warnings, skip.Reason)
			}
		}
		if err != nil {
			if errors.Is(err, patch.ErrSpanOutOfRange) {
				// Stale spans: something shifted under us. Re-extract
				// against current content instead of giving up.
				logf("iteration %d: stale spans detected, re-extracting", iter)
				result.Iterations = append(result.Iterations, iterRes)
				continue
			}
			result.Outcome = OutcomeAborted
			return result, err
		}

		for _, f := range fixes {
			applied[fixKey{f.Path, f.Edit.Span.Start, f.Edit.Span.End}] = true
		}
		iterRes.FixesApplied = applyRes.EditsTotal
		result.Iterations = append(result.Iterations, iterRes)
		result.Changed = mergeChanges(result.Changed, applyRes.FileChanges)
		logf("iteration %d: applied %d fix(es) across %d file(s)", iter, applyRes.EditsTotal, len(applyRes.FileChanges))
	}
}

func runCheck(ctx context.Context, checker cargo.Checker, opts Options, observe PhaseObserver, iter int) (*cargo.CheckResult, error) {
	observe(PhaseEvent{Iteration: iter, Name: "check", Status: PhaseStart})
	var tidx int
	if opts.Timer != nil {
		tidx = opts.Timer.Begin(fmt.Sprintf("check #%d", iter))
	}
	res, err := checker.Check(ctx, opts.Directory, opts.ExtraCheckArgs)
	if opts.Timer != nil {
		opts.Timer.End(tidx, "")
	}
	observe(PhaseEvent{Iteration: iter, Name: "check", Status: PhaseEnd})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func runExtract(checkRes *cargo.CheckResult, fs *source.FileSet, opts Options, observe PhaseObserver, iter int) (*cargo.Extraction, error) {
	observe(PhaseEvent{Iteration: iter, Name: "extract", Status: PhaseStart})
	var tidx int
	if opts.Timer != nil {
		tidx = opts.Timer.Begin(fmt.Sprintf("extract #%d", iter))
	}
	ext, err := cargo.Extract(checkRes.Stdout, fs)
	var note string
	if ext != nil {
		note = fmt.Sprintf("%d diagnostic(s)", ext.Bag.Len())
	}
	if opts.Timer != nil {
		opts.Timer.End(tidx, note)
	}
	observe(PhaseEvent{Iteration: iter, Name: "extract", Status: PhaseEnd, Detail: note})
	if err != nil {
		return nil, err
	}
	ext.Bag.Dedup()
	ext.Bag.Sort()
	return ext, nil
}

func runPatch(fs *source.FileSet, fixes []diag.Fix, opts Options, observe PhaseObserver, iter int) (*patch.Result, error) {
	detail := fmt.Sprintf("%d fix(es)", len(fixes))
	observe(PhaseEvent{Iteration: iter, Name: "patch", Status: PhaseStart, Detail: detail})
	var tidx int
	if opts.Timer != nil {
		tidx = opts.Timer.Begin(fmt.Sprintf("patch #%d", iter))
	}
	res, err := patch.Apply(fs, fixes, opts.Directory)
	if opts.Timer != nil {
		opts.Timer.End(tidx, detail)
	}
	observe(PhaseEvent{Iteration: iter, Name: "patch", Status: PhaseEnd, Detail: detail})
	return res, err
}

// proposeFixes runs the rename rule over the deduplicated bag. Fixes for
// a (file, span) already applied earlier in this run are dropped: issuing
// the same span twice would corrupt content that has since shifted.
func proposeFixes(fs *source.FileSet, bag *diag.Bag, suffix string, applied map[fixKey]bool) ([]diag.Fix, []Proposal, int) {
	fixes := make([]diag.Fix, 0, bag.Len())
	proposals := make([]Proposal, 0, bag.Len())
	dropped := 0

	seen := make(map[fixKey]bool, bag.Len())
	for _, d := range bag.Items() {
		f := rule.Propose(fs, d, suffix)
		if f == nil {
			continue
		}
		key := fixKey{f.Path, f.Edit.Span.Start, f.Edit.Span.End}
		if applied[key] {
			dropped++
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		fixes = append(fixes, *f)
		proposals = append(proposals, Proposal{
			Path:    f.Path,
			Line:    d.Line,
			Col:     d.Col,
			OldText: f.Edit.OldText,
			NewText: f.Edit.NewText,
		})
	}
	return fixes, proposals, dropped
}

func collectRemaining(bag *diag.Bag) []RemainingDiagnostic {
	out := make([]RemainingDiagnostic, 0, bag.Len())
	for _, d := range bag.Items() {
		out = append(out, RemainingDiagnostic{
			Path:    d.Path,
			Line:    d.Line,
			Col:     d.Col,
			Code:    d.Code,
			Message: d.Message,
		})
	}
	return out
}

func mergeChanges(acc, more []patch.FileChange) []patch.FileChange {
	idx := make(map[string]int, len(acc))
	for i, c := range acc {
		idx[c.Path] = i
	}
	for _, c := range more {
		if i, ok := idx[c.Path]; ok {
			acc[i].EditCount += c.EditCount
			continue
		}
		idx[c.Path] = len(acc)
		acc = append(acc, c)
	}
	return acc
}
