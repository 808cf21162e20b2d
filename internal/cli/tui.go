package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	listDimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	listClaimedStyle = lipgloss.NewStyle().Foreground(colorGreen)
	listHeaderStyle  = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	listCursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
)

// =============================================================================
// watchModel - live view of a mirrored tree
// =============================================================================

type (
	changedMsg struct{}
	closedMsg  struct{}
	tickMsg    time.Time
	summaryMsg struct {
		summary treeSummary
		err     error
	}
)

// watchModel is the bubbletea model behind 'watch'. It recomputes the
// summary whenever the store reports a change and polls once a second for
// new messages, which the store does not signal.
type watchModel struct {
	w       *watcher
	changes <-chan struct{}
	stop    func()

	summary  treeSummary
	err      error
	updated  time.Time
	closed   bool
	cursor   int
	offset   int
	height   int
	messages int
}

func newWatchModel(w *watcher) *watchModel {
	changes, stop := w.sess.Store().Watch()
	return &watchModel{w: w, changes: changes, stop: stop, height: 15}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), waitForChange(m.changes), tick())
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return closedMsg{}
		}
		return changedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *watchModel) refresh() tea.Cmd {
	return func() tea.Msg {
		s, err := m.w.summarize()
		return summaryMsg{summary: s, err: err}
	}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.stop()
			return m, tea.Quit
		case "up", "k":
			m.move(-1)
		case "down", "j":
			m.move(1)
		case "r":
			return m, m.refresh()
		}
	case tea.WindowSizeMsg:
		m.height = max(msg.Height-12, 5)
		m.move(0)
	case changedMsg:
		return m, tea.Batch(m.refresh(), waitForChange(m.changes))
	case closedMsg:
		m.closed = true
	case tickMsg:
		if conv := m.w.sess.Conversation(); conv != nil && conv.Len() != m.summary.Messages {
			return m, tea.Batch(m.refresh(), tick())
		}
		return m, tick()
	case summaryMsg:
		m.summary, m.err = msg.summary, msg.err
		m.updated = time.Now()
		m.move(0)
	}
	return m, nil
}

// move shifts the cursor by delta and keeps it inside the visible window.
func (m *watchModel) move(delta int) {
	n := len(m.summary.Persons)
	m.cursor = min(max(m.cursor+delta, 0), max(n-1, 0))
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
}

func (m *watchModel) View() string {
	var b strings.Builder
	s := m.summary

	title := s.GraphID
	if s.Name != "" {
		title = s.Name + " " + listDimStyle.Render("("+s.GraphID+")")
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  r redraw  q quit"))
	b.WriteString("\n\n")

	stats := []string{
		plural(len(s.Persons), "person"),
		plural(s.Edges, "edge"),
		plural(s.Hubs, "family"),
	}
	if s.Messages > 0 {
		stats = append(stats, plural(s.Messages, "message"))
	}
	b.WriteString("  " + StyleDim.Render(strings.Join(stats, " · ")))
	if s.Pending > 0 {
		b.WriteString(StyleDim.Render(" · ") + StyleWarning.Render(fmt.Sprintf("%d pending", s.Pending)))
	}
	if s.Unplaced > 0 {
		b.WriteString(StyleDim.Render(" · ") + StyleWarning.Render(fmt.Sprintf("%d unplaced", s.Unplaced)))
	}
	b.WriteString("\n\n")

	b.WriteString(m.personTable())
	b.WriteString("\n")

	status := fmt.Sprintf("revision %d", s.Revision)
	if !m.updated.IsZero() {
		status += " · updated " + m.updated.Format("15:04:05")
	}
	if m.w.output != "" {
		status += " · writing " + m.w.output
	}
	b.WriteString(listDimStyle.Render("  " + status))
	if m.closed {
		b.WriteString("\n" + StyleWarning.Render("  session closed"))
	}
	if m.err != nil {
		b.WriteString("\n" + styleIconError.Render(iconError+" "+m.err.Error()))
	}
	return b.String()
}

func (m *watchModel) personTable() string {
	persons := m.summary.Persons
	end := min(m.offset+m.height, len(persons))

	rows := make([][]string, 0, end-m.offset)
	for i := m.offset; i < end; i++ {
		p := persons[i]
		cursor := "  "
		if i == m.cursor {
			cursor = "▸ "
		}
		gen := "—"
		if g, ok := m.summary.Generations[p.ID]; ok {
			gen = fmt.Sprint(g)
		}
		lived := strings.TrimSpace(p.BirthDate + " – " + p.DeathDate)
		if p.BirthDate == "" && p.DeathDate == "" {
			lived = "—"
		}
		placed := "✓"
		if p.Position == nil {
			placed = ""
		}
		rows = append(rows, []string{cursor, p.DisplayName(), gen, lived, placed})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Person", "Gen", "Lived", "Placed").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return listHeaderStyle
			}
			idx := m.offset + row
			if idx >= len(persons) {
				return lipgloss.NewStyle()
			}
			switch {
			case idx == m.cursor:
				return listCursorStyle
			case persons[idx].Claimed():
				return listClaimedStyle
			default:
				return lipgloss.NewStyle()
			}
		})

	out := t.Render()
	if len(persons) > 0 {
		out += "\n" + listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.cursor+1, len(persons)))
	}
	return out
}
