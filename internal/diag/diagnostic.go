package diag

import (
	"snafu-upgrade/internal/source"
)

// TextEdit replaces the bytes covered by Span with NewText. OldText holds
// the bytes the span covered when the edit was proposed; appliers verify
// it so a stale span can never silently corrupt a file.
type TextEdit struct {
	Span    source.Span
	OldText string
	NewText string
}

// Fix is a single proposed rewrite, derived from one diagnostic and
// consumed exactly once.
type Fix struct {
	Path string // path as reported by the compiler
	Edit TextEdit
}

// Diagnostic is one structured compiler message. Instances are produced
// fresh for every compiler invocation and discarded after the rename
// rule has seen them.
type Diagnostic struct {
	Severity Severity
	Code     string // compiler error code, e.g. "E0422"
	Message  string
	Path     string // file path exactly as the compiler reported it
	Primary  source.Span
	Line     uint32 // 1-based, as reported
	Col      uint32 // 1-based, as reported
}
