// Package text is the form for changing the content of a text source, such
// as a lower third.
package text

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dvangennip/web-remote-for-OBS/internal/theme"
)

// SubmitMsg asks the app to set Text on Source.
type SubmitMsg struct {
	Source string
	Text   string
}

// Model is the text form.
type Model struct {
	source textinput.Model
	text   textinput.Model
	onText bool
}

// New creates the form. source prefills the source name.
func New(source string) Model {
	s := textinput.New()
	s.Placeholder = "text source name"
	s.Prompt = ""
	s.Width = 40
	s.SetValue(source)

	t := textinput.New()
	t.Placeholder = "new text"
	t.Prompt = ""
	t.Width = 40
	t.CharLimit = 500

	m := Model{source: s, text: t}
	if source == "" {
		m.source.Focus()
	} else {
		m.onText = true
		m.text.Focus()
	}
	return m
}

// Update handles editing. Tab switches fields, enter submits.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "tab", "shift+tab", "up", "down":
			m.onText = !m.onText
			if m.onText {
				m.source.Blur()
				m.text.Focus()
			} else {
				m.text.Blur()
				m.source.Focus()
			}
			return m, nil
		case "enter":
			source := strings.TrimSpace(m.source.Value())
			if source == "" {
				return m, nil
			}
			submit := SubmitMsg{Source: source, Text: m.text.Value()}
			return m, func() tea.Msg { return submit }
		}
	}
	var cmd tea.Cmd
	if m.onText {
		m.text, cmd = m.text.Update(msg)
	} else {
		m.source, cmd = m.source.Update(msg)
	}
	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	label := lipgloss.NewStyle().Foreground(theme.ColorDimmed).Width(10)
	marker := func(on bool) string {
		if on {
			return "> "
		}
		return "  "
	}
	return lipgloss.NewStyle().
		Padding(1, 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.StyleHeader.Render("Set text"),
			"",
			marker(!m.onText)+label.Render("Source")+m.source.View(),
			marker(m.onText)+label.Render("Text")+m.text.View(),
			"",
			theme.StyleDimmed.Render("tab:switch field  enter:apply  esc:close"),
		))
}

// Source returns the entered source name.
func (m Model) Source() string { return strings.TrimSpace(m.source.Value()) }
