package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"snafu-upgrade/internal/driver"
)

type progressModel struct {
	title   string
	events  <-chan driver.PhaseEvent
	spinner spinner.Model
	history []string
	current string
	width   int
	done    bool
}

type eventMsg driver.PhaseEvent
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders driver phase
// events while cargo runs. The model quits when the channel closes.
func NewProgressModel(title string, events <-chan driver.PhaseEvent) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		history: make([]string, 0, 8),
		width:   80,
	}
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.applyEvent(driver.PhaseEvent(msg))
		return m, m.listenForEvent()
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

func (m *progressModel) applyEvent(ev driver.PhaseEvent) {
	label := phaseLabel(ev)
	switch ev.Status {
	case driver.PhaseStart:
		m.current = label
	case driver.PhaseEnd:
		m.history = append(m.history, label)
		m.current = ""
	}
}

func phaseLabel(ev driver.PhaseEvent) string {
	var verb string
	switch ev.Name {
	case "check":
		verb = "checking project"
	case "extract":
		verb = "reading diagnostics"
	case "patch":
		verb = "applying fixes"
	default:
		verb = ev.Name
	}
	label := fmt.Sprintf("iteration %d: %s", ev.Iteration, verb)
	if ev.Detail != "" {
		label += " (" + ev.Detail + ")"
	}
	return label
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	doneStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	header := m.title
	if m.done {
		header = "done: " + header
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n")

	// Keep the view small: last few completed phases plus the live one.
	const keep = 4
	start := 0
	if len(m.history) > keep {
		start = len(m.history) - keep
	}
	for _, line := range m.history[start:] {
		b.WriteString(doneStyle.Render("  " + truncate(line, m.width-2)))
		b.WriteString("\n")
	}
	if m.current != "" && !m.done {
		b.WriteString("  " + truncate(m.current, m.width-2))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
