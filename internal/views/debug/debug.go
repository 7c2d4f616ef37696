// Package debug provides a scrollable overlay of session events, command
// results and log lines. Repeats of the same line collapse into one entry
// and the list can be narrowed to one class of entries.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/dvangennip/web-remote-for-OBS/internal/theme"
)

const maxEntries = 200

// Kind classifies an entry.
type Kind string

const (
	KindSession Kind = "obs" // connection state and drops
	KindEvent   Kind = "evt"
	KindCommand Kind = "cmd" // accepted requests
	KindError   Kind = "err" // rejected requests and failed connects
	KindLog     Kind = "log" // forwarded warnings
)

// Filter narrows the overlay to a class of entries.
type Filter int

const (
	FilterAll Filter = iota
	FilterSession
	FilterCommands
	FilterProblems
	filterCount
)

func (f Filter) String() string {
	switch f {
	case FilterSession:
		return "session"
	case FilterCommands:
		return "commands"
	case FilterProblems:
		return "problems"
	}
	return "all"
}

// Shows reports whether entries of kind k pass the filter.
func (f Filter) Shows(k Kind) bool {
	switch f {
	case FilterSession:
		return k == KindSession || k == KindEvent
	case FilterCommands:
		return k == KindCommand || k == KindError
	case FilterProblems:
		return k == KindError || k == KindLog
	}
	return true
}

// Entry is one line of the log. Count is above 1 when the same line
// arrived several times in a row.
type Entry struct {
	First   time.Time
	Last    time.Time
	Kind    Kind
	Message string
	Count   int
}

// Model holds the debug log.
type Model struct {
	entries []Entry
	filter  Filter
	offset  int // lines scrolled up from the bottom
	now     func() time.Time
}

// New creates an empty debug log.
func New() Model {
	return Model{now: time.Now}
}

// Add records a line. A line equal to the previous one bumps its count.
func (m *Model) Add(kind Kind, message string) {
	t := m.clock()
	if n := len(m.entries); n > 0 {
		last := &m.entries[n-1]
		if last.Kind == kind && last.Message == message {
			last.Count++
			last.Last = t
			return
		}
	}
	m.entries = append(m.entries, Entry{First: t, Last: t, Kind: kind, Message: message, Count: 1})
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
	m.offset = 0
}

func (m *Model) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

// Entries returns the entries passing the current filter, oldest first.
func (m Model) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if m.filter.Shows(e.Kind) {
			out = append(out, e)
		}
	}
	return out
}

// Filter returns the active filter.
func (m Model) Filter() Filter { return m.filter }

// CycleFilter moves to the next filter and back to the newest entry.
func (m *Model) CycleFilter() {
	m.filter = (m.filter + 1) % filterCount
	m.offset = 0
}

// Offset is how many entries the view is scrolled up.
func (m Model) Offset() int { return m.offset }

// Problems counts error and warning occurrences, repeats included.
func (m Model) Problems() int {
	n := 0
	for _, e := range m.entries {
		if FilterProblems.Shows(e.Kind) {
			n += e.Count
		}
	}
	return n
}

// ScrollUp moves towards older entries.
func (m *Model) ScrollUp(n int) {
	m.offset = min(m.offset+n, max(len(m.Entries())-1, 0))
}

// ScrollDown moves towards newer entries.
func (m *Model) ScrollDown(n int) {
	m.offset = max(m.offset-n, 0)
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visibleLines := max(height-6, 3)

	title := theme.StyleHeader.Render(" DEBUG LOG ")
	summary := theme.StyleDimmed.Render(fmt.Sprintf("  showing %s", m.filter))
	if p := m.Problems(); p > 0 {
		summary += "  " + lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(fmt.Sprintf("%d problems", p))
	}
	header := title + summary

	entries := m.Entries()
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  tab:filter  esc:close  %d entries", len(entries)))

	if len(entries) == 0 {
		body := theme.StyleDimmed.Render("  Nothing recorded yet.")
		if len(m.entries) > 0 {
			body = theme.StyleDimmed.Render("  No " + m.filter.String() + " entries.")
		}
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", help))
	}

	end := max(len(entries)-m.offset, 0)
	start := max(end-visibleLines, 0)

	// timestamp, kind column and their separators
	msgW := max(innerW-4-12-1-4-1, 10)
	lines := make([]string, 0, end-start)
	for _, e := range entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Last.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(4).Render(string(e.Kind))
		msg := e.Message
		repeat := ""
		if e.Count > 1 {
			repeat = fmt.Sprintf(" ×%d", e.Count)
		}
		msg = ansi.Truncate(msg, msgW-ansi.StringWidth(repeat), "…")
		lines = append(lines, ts+" "+kind+" "+msg+theme.StyleDimmed.Render(repeat))
	}

	body := strings.Join(lines, "\n")
	more := ""
	if m.offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.offset))
	}
	return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, header, body, more, help))
}

func kindColor(kind Kind) lipgloss.Color {
	switch kind {
	case KindSession:
		return theme.ColorAccent
	case KindEvent:
		return theme.ColorPreview
	case KindCommand:
		return theme.ColorTransition
	case KindError:
		return theme.ColorDanger
	case KindLog:
		return theme.ColorWarning
	}
	return theme.ColorDimmed
}
