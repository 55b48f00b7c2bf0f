package cargo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"golang.org/x/sync/errgroup"
)

// CheckResult carries one cargo check invocation's combined output.
type CheckResult struct {
	Stdout []byte // NDJSON diagnostic stream
	Stderr []byte // human-readable progress, kept for verbose logging
}

// Checker runs a build check against a project directory. The production
// implementation shells out to cargo; tests substitute their own.
type Checker interface {
	Check(ctx context.Context, dir string, extraArgs []string) (*CheckResult, error)
}

// Client is the cargo-backed Checker.
type Client struct {
	// Bin overrides the cargo executable name; empty means "cargo".
	Bin string
}

func (c *Client) bin() string {
	if c.Bin != "" {
		return c.Bin
	}
	return "cargo"
}

// Check runs `cargo check --message-format json` in dir, forwarding
// extraArgs verbatim before the message-format flag. A failing check is
// not an error here: compile errors are the expected input. Only a
// failure to run cargo at all is reported.
func (c *Client) Check(ctx context.Context, dir string, extraArgs []string) (*CheckResult, error) {
	args := make([]string, 0, 3+len(extraArgs))
	args = append(args, "check")
	args = append(args, extraArgs...)
	args = append(args, "--message-format", "json")

	// #nosec G204 -- extra args are opaque passthrough by contract
	cmd := exec.CommandContext(ctx, c.bin(), args...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cargo check: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("cargo check: %w", err)
	}

	if err := cmd.Start(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%w: %v", ErrCompilerUnavailable, err)
		}
		return nil, fmt.Errorf("cargo check: %w", err)
	}

	var outBuf, errBuf bytes.Buffer
	g := new(errgroup.Group)
	g.Go(func() error {
		_, copyErr := outBuf.ReadFrom(stdout)
		return copyErr
	})
	g.Go(func() error {
		_, copyErr := errBuf.ReadFrom(stderr)
		return copyErr
	})
	if err := g.Wait(); err != nil {
		_ = cmd.Wait()
		return nil, fmt.Errorf("cargo check: reading output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("cargo check: %w", err)
		}
		// Nonzero exit is the normal "project has errors" case; the
		// build-finished message in the stream carries the real flag.
	}

	return &CheckResult{Stdout: outBuf.Bytes(), Stderr: errBuf.Bytes()}, nil
}
