package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
	"github.com/dvangennip/web-remote-for-OBS/internal/mirror"
	"github.com/dvangennip/web-remote-for-OBS/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	State    client.State
	Endpoint client.Endpoint
	Status   mirror.Status
	// Message is the latest operator notice, such as a failed command.
	Message string
	Width   int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	parts := []string{m.renderConnection()}
	if m.State == client.StateAuthenticated {
		parts = append(parts, m.renderOutputs())
		if perf := m.renderPerformance(); perf != "" {
			parts = append(parts, perf)
		}
	}
	if m.Message != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(m.Message))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.Join(parts, sep))
}

func (m Model) renderConnection() string {
	host := m.Endpoint.Host
	switch m.State {
	case client.StateAuthenticated:
		label := "● " + host
		if m.Endpoint.Secure {
			label += " (wss)"
		}
		return lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render(label)
	case client.StateConnecting, client.StateConnected:
		return lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◌ Connecting to " + host + "...")
	case client.StateAuthFailed:
		return lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("✗ Wrong password")
	case client.StateErrored:
		return lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("✗ Connection failed")
	default:
		return lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Disconnected")
	}
}

func (m Model) renderOutputs() string {
	s := m.Status
	badges := []string{
		outputBadge("LIVE", s.Stream, s.StreamTimecode, theme.ColorLive),
		outputBadge("REC", s.Record, s.RecTimecode, theme.ColorRecording),
	}
	if s.VirtualCam {
		badges = append(badges, theme.Badge("VCAM", theme.ColorVirtualCam))
	} else {
		badges = append(badges, theme.StyleDimmed.Render("vcam"))
	}
	return strings.Join(badges, " ")
}

// outputBadge shows the output state: dim when off, colored with the
// timecode when on, and a transition marker while starting or stopping.
func outputBadge(label string, o mirror.OutputState, timecode string, color lipgloss.Color) string {
	switch {
	case o.Starting:
		return theme.Badge(label+" starting", theme.ColorTransition)
	case o.Stopping:
		return theme.Badge(label+" stopping", theme.ColorTransition)
	case o.Paused:
		return theme.Badge(label+" paused", theme.ColorPaused)
	case o.Active:
		text := label
		if timecode != "" {
			text += " " + timecode
		}
		return theme.Badge(text, color)
	default:
		return theme.StyleDimmed.Render(strings.ToLower(label))
	}
}

func (m Model) renderPerformance() string {
	st := m.Status.Stats
	if st.FPS == 0 && st.CPU == 0 {
		return ""
	}
	text := fmt.Sprintf("%.0f fps  cpu %.1f%%", st.FPS, st.CPU)
	color := theme.ColorDimmed
	if st.Alert(m.Status.Video.FPS) {
		text = "⚠ " + text
		color = theme.ColorDanger
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}
