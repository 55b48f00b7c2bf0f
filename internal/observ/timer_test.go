package observ

import (
	"strings"
	"testing"
)

func TestTimerSummaryListsPhases(t *testing.T) {
	timer := NewTimer()
	idx := timer.Begin("check #1")
	timer.End(idx, "3 diagnostic(s)")
	idx = timer.Begin("patch #1")
	timer.End(idx, "")

	if len(timer.Phases()) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(timer.Phases()))
	}

	out := timer.Summary()
	if !strings.Contains(out, "check #1") || !strings.Contains(out, "patch #1") {
		t.Fatalf("summary missing phases:\n%s", out)
	}
	if !strings.Contains(out, "3 diagnostic(s)") {
		t.Fatalf("summary missing note:\n%s", out)
	}
	if !strings.Contains(out, "total") {
		t.Fatalf("summary missing total:\n%s", out)
	}
}

func TestTimerEndIgnoresBadIndex(t *testing.T) {
	timer := NewTimer()
	timer.End(3, "out of range")
	if len(timer.Phases()) != 0 {
		t.Fatalf("expected no phases recorded")
	}
}
