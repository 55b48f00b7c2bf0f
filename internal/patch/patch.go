// Package patch applies proposed fixes to the project tree. Writes are
// atomic and strictly confined to the project root.
package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"fortio.org/safecast"

	"snafu-upgrade/internal/diag"
	"snafu-upgrade/internal/source"
)

var (
	// ErrSpanOutOfRange means a fix's span no longer fits the file. It
	// signals stale spans: the caller should re-extract diagnostics, not
	// abort the run.
	ErrSpanOutOfRange = errors.New("fix span out of range")

	// ErrOutOfScope marks a fix whose target lies outside the project
	// root. Such fixes are skipped with a warning, never applied.
	ErrOutOfScope = errors.New("fix target outside project root")
)

// FileChange summarises modifications performed on one file.
type FileChange struct {
	Path      string
	EditCount int
}

// SkippedFix records a fix that was rejected before staging.
type SkippedFix struct {
	Path   string
	Reason string
}

// Result aggregates applied changes and skipped fixes of one pass.
type Result struct {
	FileChanges []FileChange
	Skipped     []SkippedFix
	EditsTotal  int
}

// Apply rewrites the files named by fixes. All edits for one file are
// applied to an in-memory copy in descending span order, so earlier
// spans keep their offsets, then the file is replaced atomically.
// Content from fs must reflect the same compiler invocation the fixes
// were derived from; Apply verifies OldText and current bounds and
// returns ErrSpanOutOfRange when they no longer match.
func Apply(fs *source.FileSet, fixes []diag.Fix, root string) (*Result, error) {
	result := &Result{
		FileChanges: make([]FileChange, 0),
		Skipped:     make([]SkippedFix, 0),
	}
	if fs == nil {
		return result, fmt.Errorf("patch: FileSet is nil")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return result, fmt.Errorf("patch: resolve root: %w", err)
	}

	buckets := make(map[source.FileID][]diag.TextEdit)
	order := make([]source.FileID, 0)
	for _, fix := range fixes {
		file := fs.Get(fix.Edit.Span.File)
		if file == nil {
			return result, fmt.Errorf("patch: %w: unknown file for %s", ErrSpanOutOfRange, fix.Path)
		}
		if !withinRoot(absRoot, file.Path) {
			result.Skipped = append(result.Skipped, SkippedFix{
				Path:   fix.Path,
				Reason: fmt.Sprintf("%v: %s is not within %s", ErrOutOfScope, file.Path, absRoot),
			})
			continue
		}
		if _, ok := buckets[fix.Edit.Span.File]; !ok {
			order = append(order, fix.Edit.Span.File)
		}
		buckets[fix.Edit.Span.File] = append(buckets[fix.Edit.Span.File], fix.Edit)
	}

	for _, fileID := range order {
		file := fs.Get(fileID)
		edits := buckets[fileID]

		patched, err := applyToContent(file.Content, edits)
		if err != nil {
			return result, fmt.Errorf("patch %s: %w", file.Path, err)
		}

		if err := writeAtomic(file.Path, patched); err != nil {
			return result, err
		}

		result.FileChanges = append(result.FileChanges, FileChange{
			Path:      file.Path,
			EditCount: len(edits),
		})
		result.EditsTotal += len(edits)
	}

	sort.SliceStable(result.FileChanges, func(i, j int) bool {
		return result.FileChanges[i].Path < result.FileChanges[j].Path
	})

	return result, nil
}

// applyToContent returns content with every edit applied, leaving all
// untouched bytes intact: each edit yields exactly
// content[:start] + NewText + content[end:].
func applyToContent(content []byte, edits []diag.TextEdit) ([]byte, error) {
	sorted := append([]diag.TextEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Span.Start == sorted[j].Span.Start {
			return sorted[i].Span.End > sorted[j].Span.End
		}
		return sorted[i].Span.Start > sorted[j].Span.Start
	})

	working := append([]byte(nil), content...)
	var prevStart uint32
	for i, edit := range sorted {
		lenWorking, err := safecast.Conv[uint32](len(working))
		if err != nil {
			return nil, fmt.Errorf("%w: content too large", ErrSpanOutOfRange)
		}
		start, end := edit.Span.Start, edit.Span.End
		if start > end || end > lenWorking {
			return nil, fmt.Errorf("%w: [%d,%d) exceeds %d bytes", ErrSpanOutOfRange, start, end, lenWorking)
		}
		if i > 0 && end > prevStart {
			return nil, fmt.Errorf("%w: overlapping edit [%d,%d)", ErrSpanOutOfRange, start, end)
		}
		if edit.OldText != "" && string(working[start:end]) != edit.OldText {
			return nil, fmt.Errorf("%w: content at [%d,%d) changed since extraction", ErrSpanOutOfRange, start, end)
		}
		suffix := append([]byte(nil), working[end:]...)
		working = append(append(working[:start], []byte(edit.NewText)...), suffix...)
		prevStart = start
	}
	return working, nil
}

// writeAtomic replaces path via a temp file in the same directory so an
// interrupt can never leave a half-written file behind.
func writeAtomic(path string, content []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	} else {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snafu-upgrade-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func withinRoot(absRoot, path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil {
		return false
	}
	if rel == "." || rel == "" {
		return true
	}
	return rel != ".." && !isParentEscape(rel)
}

func isParentEscape(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
