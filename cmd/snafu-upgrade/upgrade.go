package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"snafu-upgrade/internal/cargo"
	"snafu-upgrade/internal/driver"
	"snafu-upgrade/internal/observ"
	"snafu-upgrade/internal/project"
	"snafu-upgrade/internal/report"
	"snafu-upgrade/internal/ui"
)

var warnColor = color.New(color.FgYellow)

type upgradeFlags struct {
	dryRun        bool
	extraArgs     []string
	suffix        string
	directory     string
	maxIterations int
	verbose       bool
	quiet         bool
	timings       bool
	colorOn       bool
}

func readFlags(cmd *cobra.Command) (*upgradeFlags, error) {
	f := &upgradeFlags{}
	var err error
	if f.dryRun, err = cmd.Flags().GetBool("dry-run"); err != nil {
		return nil, err
	}
	if f.extraArgs, err = cmd.Flags().GetStringArray("extra-check-arg"); err != nil {
		return nil, err
	}
	if f.suffix, err = cmd.Flags().GetString("suffix"); err != nil {
		return nil, err
	}
	if f.directory, err = cmd.Flags().GetString("directory"); err != nil {
		return nil, err
	}
	if f.maxIterations, err = cmd.Flags().GetInt("max-iterations"); err != nil {
		return nil, err
	}
	if f.verbose, err = cmd.Flags().GetBool("verbose"); err != nil {
		return nil, err
	}
	if f.quiet, err = cmd.Root().PersistentFlags().GetBool("quiet"); err != nil {
		return nil, err
	}
	if f.timings, err = cmd.Root().PersistentFlags().GetBool("timings"); err != nil {
		return nil, err
	}

	colorMode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return nil, err
	}
	switch colorMode {
	case "on":
		f.colorOn = true
		color.NoColor = false
	case "off":
		f.colorOn = false
		color.NoColor = true
	case "auto":
		f.colorOn = isTerminal(os.Stdout)
	default:
		return nil, fmt.Errorf("unsupported color mode %q (must be auto, on, or off)", colorMode)
	}
	return f, nil
}

func runUpgrade(cmd *cobra.Command, _ []string) error {
	flags, err := readFlags(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	dir, err := resolveDirectory(ctx, flags.directory)
	if err != nil {
		return err
	}
	warnIfNoSnafuDependency(dir, flags.quiet)

	var timer *observ.Timer
	if flags.timings {
		timer = observ.NewTimer()
	}

	opts := driver.Options{
		Directory:      dir,
		Suffix:         flags.suffix,
		DryRun:         flags.dryRun,
		ExtraCheckArgs: flags.extraArgs,
		MaxIterations:  flags.maxIterations,
		Timer:          timer,
	}
	if flags.verbose {
		opts.Logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	if !flags.quiet {
		fmt.Fprintln(os.Stderr, "Performing initial check build; this may take a while")
	}

	checker := &cargo.Client{}
	res, runErr := runWithProgress(ctx, checker, opts, flags)

	if timer != nil {
		fmt.Fprint(os.Stderr, timer.Summary())
	}

	renderer := report.NewRenderer(flags.colorOn)
	if res != nil {
		renderer.Warnings(os.Stderr, res.Warnings)
	}

	if runErr != nil {
		if res != nil && res.Outcome == driver.OutcomeCompilerUnavailable {
			return fmt.Errorf("cargo is required but could not be run: %w", runErr)
		}
		return runErr
	}

	return renderOutcome(renderer, res, flags)
}

// runWithProgress runs the driver, with a live progress view when the
// run is interactive and nothing else wants the terminal.
func runWithProgress(ctx context.Context, checker cargo.Checker, opts driver.Options, flags *upgradeFlags) (*driver.RunResult, error) {
	interactive := isTerminal(os.Stderr) && !flags.quiet && !flags.verbose && opts.Timer == nil
	if !interactive {
		return driver.Run(ctx, checker, opts)
	}

	events := make(chan driver.PhaseEvent, 64)
	opts.Observer = func(ev driver.PhaseEvent) {
		select {
		case events <- ev:
		default:
			// Progress display is best-effort; never block the driver.
		}
	}

	var res *driver.RunResult
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(events)
		res, runErr = driver.Run(ctx, checker, opts)
	}()

	title := "upgrading SNAFU context selectors"
	if flags.dryRun {
		title += " (dry run)"
	}
	prog := tea.NewProgram(ui.NewProgressModel(title, events), tea.WithOutput(os.Stderr))
	if _, err := prog.Run(); err != nil {
		// Fall back to silent completion; the run itself is what matters.
		fmt.Fprintf(os.Stderr, "progress display failed: %v\n", err)
	}
	<-done
	return res, runErr
}

func renderOutcome(renderer *report.Renderer, res *driver.RunResult, flags *upgradeFlags) error {
	switch res.Outcome {
	case driver.OutcomeConverged:
		if flags.dryRun {
			renderer.Proposals(os.Stdout, res.Proposed)
			return nil
		}
		renderer.Changes(os.Stdout, res.Changed)
		if !flags.quiet {
			if total := totalFixes(res); total > 0 {
				fmt.Fprintf(os.Stdout, "Converged after %d iteration(s), %d fix(es) applied.\n", len(res.Iterations), total)
			} else {
				fmt.Fprintln(os.Stdout, "Nothing to do; project already compiles.")
			}
		}
		return nil

	case driver.OutcomeStalled:
		renderer.Changes(os.Stdout, res.Changed)
		renderer.Remaining(os.Stdout, res.Remaining)
		return errors.New("could not make further progress")

	case driver.OutcomeExhausted:
		renderer.Changes(os.Stdout, res.Changed)
		return fmt.Errorf("could not converge on a resolution in %d attempts", flags.maxIterations)

	default:
		return fmt.Errorf("run ended in state %s", res.Outcome)
	}
}

func totalFixes(res *driver.RunResult) int {
	total := 0
	for _, it := range res.Iterations {
		total += it.FixesApplied
	}
	return total
}

// resolveDirectory picks the tree the patcher may touch: the explicit
// flag, else the cargo workspace root, else the nearest Cargo.toml.
func resolveDirectory(ctx context.Context, flag string) (string, error) {
	if flag != "" {
		abs, err := filepath.Abs(flag)
		if err != nil {
			return "", fmt.Errorf("resolve --directory: %w", err)
		}
		return abs, nil
	}

	root, err := cargo.WorkspaceRoot(ctx, ".")
	if err == nil {
		return root, nil
	}
	if errors.Is(err, cargo.ErrCompilerUnavailable) {
		return "", fmt.Errorf("cargo is required but could not be run: %w", err)
	}

	found, ok, findErr := project.FindProjectRoot(".")
	if findErr == nil && ok {
		return found, nil
	}
	return "", fmt.Errorf("could not determine project root: %w", err)
}

func warnIfNoSnafuDependency(dir string, quiet bool) {
	if quiet {
		return
	}
	manifestPath, ok, err := project.FindCargoToml(dir)
	if err != nil || !ok {
		return
	}
	manifest, err := project.LoadManifest(manifestPath)
	if err != nil {
		warnColor.Fprintf(os.Stderr, "warning: could not read %s: %v\n", manifestPath, err)
		return
	}
	if !manifest.HasDependency("snafu") {
		warnColor.Fprintf(os.Stderr, "warning: %s does not declare a snafu dependency; nothing may need upgrading\n", manifestPath)
	}
}
