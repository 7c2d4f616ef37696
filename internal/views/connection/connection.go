// Package connection implements the connect form: OBS host, password and
// whether to use a secure transport.
package connection

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dvangennip/web-remote-for-OBS/internal/theme"
)

// SubmitMsg asks the app to connect with the entered parameters.
type SubmitMsg struct {
	Host     string
	Password string
	Secure   bool
}

const (
	fieldHost = iota
	fieldPassword
	fieldSecure
	fieldCount
)

// Model is the connect form.
type Model struct {
	host     textinput.Model
	password textinput.Model
	secure   bool
	focus    int

	// Message explains the last disconnect or failure.
	Message string
	// Connecting disables submitting while an attempt is in flight.
	Connecting bool
}

// New creates the form prefilled with host and password.
func New(host, password string, secure bool) Model {
	h := textinput.New()
	h.Placeholder = "localhost:4444"
	h.Prompt = ""
	h.CharLimit = 255
	h.Width = 40
	h.SetValue(host)
	h.Focus()

	p := textinput.New()
	p.Placeholder = "password"
	p.Prompt = ""
	p.EchoMode = textinput.EchoPassword
	p.EchoCharacter = '•'
	p.Width = 40
	p.SetValue(password)

	return Model{host: h, password: p, secure: secure}
}

// Host returns the entered host.
func (m Model) Host() string { return strings.TrimSpace(m.host.Value()) }

// Password returns the entered password.
func (m Model) Password() string { return m.password.Value() }

// Secure reports whether wss:// is preferred.
func (m Model) Secure() bool { return m.secure }

// Update handles form navigation and editing.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "tab", "down":
			return m.setFocus((m.focus + 1) % fieldCount), nil
		case "shift+tab", "up":
			return m.setFocus((m.focus - 1 + fieldCount) % fieldCount), nil
		case " ":
			if m.focus == fieldSecure {
				m.secure = !m.secure
				return m, nil
			}
		case "enter":
			if m.Connecting || m.Host() == "" {
				return m, nil
			}
			submit := SubmitMsg{Host: m.Host(), Password: m.Password(), Secure: m.secure}
			return m, func() tea.Msg { return submit }
		}
	}

	var cmd tea.Cmd
	switch m.focus {
	case fieldHost:
		m.host, cmd = m.host.Update(msg)
	case fieldPassword:
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m Model) setFocus(f int) Model {
	m.focus = f
	m.host.Blur()
	m.password.Blur()
	switch f {
	case fieldHost:
		m.host.Focus()
	case fieldPassword:
		m.password.Focus()
	}
	return m
}

// View renders the form.
func (m Model) View() string {
	label := lipgloss.NewStyle().Foreground(theme.ColorDimmed).Width(12)
	marker := func(f int) string {
		if m.focus == f {
			return "> "
		}
		return "  "
	}

	check := "[ ]"
	if m.secure {
		check = "[x]"
	}
	lines := []string{
		theme.StyleHeader.Render("Connect to OBS"),
		"",
		marker(fieldHost) + label.Render("Host") + m.host.View(),
		marker(fieldPassword) + label.Render("Password") + m.password.View(),
		marker(fieldSecure) + label.Render("Secure") + check + theme.StyleDimmed.Render(" use wss:// when no scheme is given"),
		"",
	}
	if m.Connecting {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("Connecting..."))
	}
	if m.Message != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorDanger).Width(60).Render(m.Message))
	}
	lines = append(lines, "", theme.StyleDimmed.Render("tab:next field  space:toggle  enter:connect  esc:close"))

	return lipgloss.NewStyle().
		Padding(1, 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
