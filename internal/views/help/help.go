// Package help renders the keyboard reference as markdown in a scrollable
// overlay.
package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/dvangennip/web-remote-for-OBS/internal/theme"
)

// Section is a titled group of key descriptions.
type Section struct {
	Title string
	Keys  [][2]string // key, description
}

// Model holds the rendered help text.
type Model struct {
	markdown string
	viewport viewport.Model
	width    int
}

// New builds the help overlay from key sections.
func New(sections []Section) Model {
	return Model{markdown: Markdown(sections), viewport: viewport.New(60, 20)}
}

// Markdown renders the sections as a markdown document.
func Markdown(sections []Section) string {
	var b strings.Builder
	b.WriteString("# Keyboard shortcuts\n\n")
	for _, s := range sections {
		b.WriteString("## " + s.Title + "\n\n")
		b.WriteString("| Key | Action |\n|---|---|\n")
		for _, k := range s.Keys {
			b.WriteString("| `" + k[0] + "` | " + k[1] + " |\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// SetSize re-renders the markdown for the available space. Rendering only
// happens when the width changes.
func (m *Model) SetSize(width, height int) {
	innerW := max(width-4, 20)
	m.viewport.Width = innerW
	m.viewport.Height = max(height-4, 5)
	if innerW == m.width {
		return
	}
	m.width = innerW
	m.viewport.SetContent(render(m.markdown, innerW))
}

func render(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Update scrolls the viewport.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the overlay.
func (m Model) View() string {
	footer := theme.StyleDimmed.Render("j/k:scroll  esc:close")
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), footer))
}
