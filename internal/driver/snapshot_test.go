package driver

import (
	"testing"

	"snafu-upgrade/internal/diag"
	"snafu-upgrade/internal/source"
)

func fix(path string, start, end uint32, newText string) diag.Fix {
	return diag.Fix{
		Path: path,
		Edit: diag.TextEdit{
			Span:    source.Span{Start: start, End: end},
			NewText: newText,
		},
	}
}

func TestSnapshotDigestIsOrderIndependent(t *testing.T) {
	a := []diag.Fix{
		fix("src/a.rs", 0, 3, "FooSnafu"),
		fix("src/b.rs", 10, 13, "BarSnafu"),
	}
	b := []diag.Fix{
		fix("src/b.rs", 10, 13, "BarSnafu"),
		fix("src/a.rs", 0, 3, "FooSnafu"),
	}

	da, err := snapshotDigest(a)
	if err != nil {
		t.Fatalf("snapshotDigest returned error: %v", err)
	}
	db, err := snapshotDigest(b)
	if err != nil {
		t.Fatalf("snapshotDigest returned error: %v", err)
	}
	if da != db {
		t.Fatalf("expected identical digests for reordered fix sets")
	}
}

func TestSnapshotDigestDetectsChange(t *testing.T) {
	a := []diag.Fix{fix("src/a.rs", 0, 3, "FooSnafu")}
	b := []diag.Fix{fix("src/a.rs", 0, 3, "FooCtx")}

	da, _ := snapshotDigest(a)
	db, _ := snapshotDigest(b)
	if da == db {
		t.Fatalf("expected different digests for different replacements")
	}

	c := []diag.Fix{fix("src/a.rs", 4, 7, "FooSnafu")}
	dc, _ := snapshotDigest(c)
	if da == dc {
		t.Fatalf("expected different digests for different spans")
	}
}

func TestSnapshotDigestEmpty(t *testing.T) {
	d1, err := snapshotDigest(nil)
	if err != nil {
		t.Fatalf("snapshotDigest returned error: %v", err)
	}
	d2, _ := snapshotDigest([]diag.Fix{})
	if d1 != d2 {
		t.Fatalf("expected stable digest for empty fix sets")
	}
}
