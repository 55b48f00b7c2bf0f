package driver

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"snafu-upgrade/internal/diag"
)

// snapshotEdit is the stable wire form of one proposed fix, used only to
// compare consecutive iterations. Nothing is ever written to disk.
type snapshotEdit struct {
	Path    string `msgpack:"path"`
	Start   uint32 `msgpack:"start"`
	End     uint32 `msgpack:"end"`
	NewText string `msgpack:"new"`
}

// snapshotDigest encodes the fix set canonically and hashes it. Two
// iterations proposing byte-identical fix sets mean the previous patch
// pass changed nothing the compiler can see: no progress.
func snapshotDigest(fixes []diag.Fix) ([32]byte, error) {
	edits := make([]snapshotEdit, 0, len(fixes))
	for _, f := range fixes {
		edits = append(edits, snapshotEdit{
			Path:    f.Path,
			Start:   f.Edit.Span.Start,
			End:     f.Edit.Span.End,
			NewText: f.Edit.NewText,
		})
	}
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].Path != edits[j].Path {
			return edits[i].Path < edits[j].Path
		}
		if edits[i].Start != edits[j].Start {
			return edits[i].Start < edits[j].Start
		}
		return edits[i].End < edits[j].End
	})

	encoded, err := msgpack.Marshal(edits)
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode fix snapshot: %w", err)
	}
	return sha256.Sum256(encoded), nil
}
