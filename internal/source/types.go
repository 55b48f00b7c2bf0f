package source

type (
	// FileID uniquely identifies a source file within a FileSet.
	FileID uint32
	// FileFlags encodes metadata about a source file.
	FileFlags uint8
)

const (
	// FileVirtual indicates the file was added from memory (tests, stdin)
	// rather than read from disk.
	FileVirtual FileFlags = 1 << iota
)

// File captures metadata and content for a single source file.
// Content is kept exactly as read: compiler byte offsets refer to the
// on-disk bytes, so no normalization is ever applied.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32
	Flags   FileFlags
}

// LineCol represents a human-readable position in a source file.
type LineCol struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based
}
