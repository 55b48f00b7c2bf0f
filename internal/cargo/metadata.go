package cargo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

type metadata struct {
	WorkspaceRoot string `json:"workspace_root"`
}

// WorkspaceRoot asks cargo for the workspace root of the project at dir.
func WorkspaceRoot(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "cargo", "metadata", "--format-version", "1", "--no-deps")
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("%w: %v", ErrCompilerUnavailable, err)
		}
		return "", fmt.Errorf("cargo metadata: %w", err)
	}

	var meta metadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return "", fmt.Errorf("%w: cargo metadata: %v", ErrMalformedOutput, err)
	}
	if meta.WorkspaceRoot == "" {
		return "", fmt.Errorf("%w: cargo metadata reported no workspace root", ErrMalformedOutput)
	}
	return meta.WorkspaceRoot, nil
}
