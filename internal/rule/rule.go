// Package rule decides whether a single diagnostic is the known
// "old-style context selector" error and, if so, what to rename it to.
package rule

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"snafu-upgrade/internal/diag"
	"snafu-upgrade/internal/source"
)

// DefaultSuffix is the context selector suffix of the new convention.
const DefaultSuffix = "Snafu"

// relevantCodes are the rustc error codes an old-style selector name
// triggers: unresolved type, variant, value, or import. Diagnostics with
// any other code are someone else's problem and yield no fix.
var relevantCodes = map[string]bool{
	"E0412": true,
	"E0422": true,
	"E0423": true,
	"E0425": true,
	"E0432": true,
	"E0574": true,
}

// Propose maps a diagnostic to the fix that renames its offending
// identifier, or nil when the diagnostic is not actionable. Nil is the
// expected answer for unrelated diagnostics, spans that cannot be
// resolved against current file content, and selectors already renamed.
func Propose(fs *source.FileSet, d diag.Diagnostic, suffix string) *diag.Fix {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	if !relevantCodes[d.Code] {
		return nil
	}
	if d.Primary.Empty() {
		return nil
	}

	raw, ok := fs.Slice(d.Primary)
	if !ok {
		// Unresolvable span (macro expansion pointing past current
		// content, unreadable file). Never guess a location.
		return nil
	}

	// rustc normalizes identifiers to NFC before reporting them; compare
	// the on-disk bytes the same way.
	text := norm.NFC.String(string(raw))
	if !isIdentifier(text) {
		return nil
	}
	if strings.HasSuffix(text, suffix) {
		return nil
	}

	base := strings.TrimSuffix(text, "Error")
	base = strings.TrimSuffix(base, "Context")
	if base == "" {
		return nil
	}

	replacement := base + suffix
	if replacement == text {
		return nil
	}

	return &diag.Fix{
		Path: d.Path,
		Edit: diag.TextEdit{
			Span:    d.Primary,
			OldText: string(raw),
			NewText: replacement,
		},
	}
}

// isIdentifier reports whether text looks like a plausible identifier:
// letters, digits, or underscores, not starting with a digit. Paths like
// `module::Variant` reported for import errors qualify segment-wise, so
// `::` is allowed in the middle.
func isIdentifier(text string) bool {
	if text == "" {
		return false
	}
	runes := []rune(text)
	if unicode.IsDigit(runes[0]) {
		return false
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == ':' && i+1 < len(runes) && runes[i+1] == ':' && i > 0 && i+2 < len(runes) {
			i++
			continue
		}
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
