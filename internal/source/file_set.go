package source

import (
	"fmt"
	"os"
	"path/filepath"

	"fortio.org/safecast"
)

// FileSet manages the files touched by one extraction pass. A fresh
// FileSet is built for every compiler invocation so spans from different
// invocations can never be mixed.
type FileSet struct {
	files   []File
	index   map[string]FileID // normalized path -> id
	baseDir string
}

// NewFileSet creates a new empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{
		files: make([]File, 0),
		index: make(map[string]FileID),
	}
}

// NewFileSetWithBase creates a FileSet anchored at baseDir; relative
// paths in Load are resolved against it.
func NewFileSetWithBase(baseDir string) *FileSet {
	fs := NewFileSet()
	fs.baseDir = baseDir
	return fs
}

// BaseDir returns the directory relative paths resolve against.
func (fileSet *FileSet) BaseDir() string {
	if fileSet.baseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			return wd
		}
	}
	return fileSet.baseDir
}

// Add stores file content verbatim, computes the line index, and returns
// a new FileID. A later Add for the same path wins in the index.
func (fileSet *FileSet) Add(path string, content []byte, flags FileFlags) FileID {
	lenFiles, err := safecast.Conv[uint32](len(fileSet.files))
	if err != nil {
		panic(fmt.Errorf("file count overflow: %w", err))
	}
	id := FileID(lenFiles)
	normalizedPath := normalizePath(path)
	fileSet.files = append(fileSet.files, File{
		ID:      id,
		Path:    normalizedPath,
		Content: content,
		LineIdx: buildLineIndex(content),
		Flags:   flags,
	})
	fileSet.index[normalizedPath] = id
	return id
}

// Load reads a file from disk byte-for-byte and adds it. Relative paths
// are resolved against the base directory. If the path was already
// loaded, the existing FileID is returned without re-reading.
func (fileSet *FileSet) Load(path string) (FileID, error) {
	resolved := path
	if !filepath.IsAbs(resolved) && fileSet.baseDir != "" {
		resolved = filepath.Join(fileSet.baseDir, resolved)
	}
	if id, ok := fileSet.index[normalizePath(resolved)]; ok {
		return id, nil
	}
	// #nosec G304 -- path comes from compiler diagnostics
	content, err := os.ReadFile(resolved)
	if err != nil {
		return 0, err
	}
	return fileSet.Add(resolved, content, 0), nil
}

// AddVirtual adds an in-memory file (tests, stdin).
func (fileSet *FileSet) AddVirtual(name string, content []byte) FileID {
	return fileSet.Add(name, content, FileVirtual)
}

// Get returns the file metadata for the given ID.
func (fileSet *FileSet) Get(id FileID) *File {
	if int(id) >= len(fileSet.files) {
		return nil
	}
	return &fileSet.files[id]
}

// GetByPath returns the file for a path, if it was loaded.
func (fileSet *FileSet) GetByPath(path string) (*File, bool) {
	if id, ok := fileSet.index[normalizePath(path)]; ok {
		return &fileSet.files[id], true
	}
	return nil, false
}

// Len reports how many files the set holds.
func (fileSet *FileSet) Len() int {
	return len(fileSet.files)
}

// Resolve converts a span into line and column positions.
func (fileSet *FileSet) Resolve(span Span) (start, end LineCol) {
	f := fileSet.files[span.File]
	return toLineCol(f.LineIdx, span.Start), toLineCol(f.LineIdx, span.End)
}

// Slice returns the bytes covered by the span, or false when the span
// does not fit the file's current content.
func (fileSet *FileSet) Slice(span Span) ([]byte, bool) {
	f := fileSet.Get(span.File)
	if f == nil {
		return nil, false
	}
	lenContent, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		return nil, false
	}
	if span.Start > span.End || span.End > lenContent {
		return nil, false
	}
	return f.Content[span.Start:span.End], true
}

// RelativePath rewrites path relative to baseDir when it lies inside it,
// falling back to the normalized absolute path otherwise.
func RelativePath(path, baseDir string) (string, error) {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return normalizePath(path), nil
	}
	if rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return normalizePath(path), nil
	}
	return normalizePath(rel), nil
}
