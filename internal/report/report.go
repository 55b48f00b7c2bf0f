// Package report renders run results: dry-run proposals, applied file
// changes, and the diagnostics left over after a stalled run.
package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"snafu-upgrade/internal/driver"
	"snafu-upgrade/internal/patch"
)

// Renderer writes human-readable summaries. Color is applied only when
// enabled; the plain output is stable for piping.
type Renderer struct {
	Color bool

	headerStyle lipgloss.Style
	oldStyle    lipgloss.Style
	newStyle    lipgloss.Style
	warnStyle   lipgloss.Style
}

// NewRenderer builds a Renderer with the default styles.
func NewRenderer(color bool) *Renderer {
	return &Renderer{
		Color:       color,
		headerStyle: lipgloss.NewStyle().Bold(true),
		oldStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		newStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		warnStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

func (r *Renderer) styled(style lipgloss.Style, s string) string {
	if !r.Color {
		return s
	}
	return style.Render(s)
}

// Proposals renders the dry-run summary: one line per would-be edit,
// location column padded for alignment. Files stay untouched; this is
// the whole deliverable of a dry run.
func (r *Renderer) Proposals(w io.Writer, proposals []driver.Proposal) {
	if len(proposals) == 0 {
		fmt.Fprintln(w, "No changes to make.")
		return
	}

	fmt.Fprintln(w, r.styled(r.headerStyle, fmt.Sprintf("Would make %d change(s):", len(proposals))))

	locWidth := 0
	locs := make([]string, len(proposals))
	for i, p := range proposals {
		locs[i] = fmt.Sprintf("%s:%d:%d", p.Path, p.Line, p.Col)
		if w := runewidth.StringWidth(locs[i]); w > locWidth {
			locWidth = w
		}
	}
	for i, p := range proposals {
		fmt.Fprintf(w, "  %s  %s -> %s\n",
			runewidth.FillRight(locs[i], locWidth),
			r.styled(r.oldStyle, p.OldText),
			r.styled(r.newStyle, p.NewText),
		)
	}
}

// Changes renders the files actually modified by a run.
func (r *Renderer) Changes(w io.Writer, changes []patch.FileChange) {
	if len(changes) == 0 {
		return
	}
	fmt.Fprintln(w, r.styled(r.headerStyle, "Updated files:"))
	for _, c := range changes {
		fmt.Fprintf(w, "  %s (%d edits)\n", c.Path, c.EditCount)
	}
}

// Remaining echoes the diagnostics no fix matched, verbatim, so they can
// be handled by hand.
func (r *Renderer) Remaining(w io.Writer, remaining []driver.RemainingDiagnostic) {
	if len(remaining) == 0 {
		return
	}
	fmt.Fprintln(w, r.styled(r.headerStyle, "Could not make further progress; remaining diagnostics:"))
	for _, d := range remaining {
		loc := fmt.Sprintf("%s:%d:%d", d.Path, d.Line, d.Col)
		fmt.Fprintf(w, "  %s: %s %s\n", loc, r.styled(r.oldStyle, "error["+d.Code+"]:"), d.Message)
	}
}

// Warnings renders non-fatal skips (out-of-scope fixes).
func (r *Renderer) Warnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "%s %s\n", r.styled(r.warnStyle, "warning:"), msg)
	}
}
