// Package scenes renders the scene switcher: one row per visible scene
// with its shortcut key and tally state.
package scenes

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dvangennip/web-remote-for-OBS/internal/mirror"
	"github.com/dvangennip/web-remote-for-OBS/internal/theme"
)

// Model holds the scene list state.
type Model struct {
	scenes []mirror.Scene

	SelectedIdx int
	StudioMode  bool
	Focused     bool
	// Full uses the whole screen and lists each scene's sources.
	Full bool

	Width int
}

// New creates a scene list model.
func New() Model {
	return Model{}
}

// SetScenes replaces the list, keeping the selection in range.
func (m *Model) SetScenes(scenes []mirror.Scene) {
	m.scenes = scenes
	m.clampSelection()
}

// Len returns the number of listed scenes.
func (m Model) Len() int {
	return len(m.scenes)
}

// Selected returns the highlighted scene.
func (m Model) Selected() (mirror.Scene, bool) {
	if m.SelectedIdx < 0 || m.SelectedIdx >= len(m.scenes) {
		return mirror.Scene{}, false
	}
	return m.scenes[m.SelectedIdx], true
}

// MoveUp moves the selection up, wrapping around.
func (m *Model) MoveUp() {
	if len(m.scenes) > 0 {
		m.SelectedIdx = (m.SelectedIdx - 1 + len(m.scenes)) % len(m.scenes)
	}
}

// MoveDown moves the selection down, wrapping around.
func (m *Model) MoveDown() {
	if len(m.scenes) > 0 {
		m.SelectedIdx = (m.SelectedIdx + 1) % len(m.scenes)
	}
}

func (m *Model) clampSelection() {
	if m.SelectedIdx >= len(m.scenes) {
		m.SelectedIdx = len(m.scenes) - 1
	}
	if m.SelectedIdx < 0 {
		m.SelectedIdx = 0
	}
}

// View renders the scene list.
func (m Model) View() string {
	width := m.Width
	if width < 30 {
		width = 30
	}

	title := "SCENES"
	if m.StudioMode {
		title += "  " + theme.Badge("STUDIO", theme.ColorPreview)
	}
	header := theme.StyleHeader.Render(title)
	lines := []string{header}

	if len(m.scenes) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No scenes"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for i, s := range m.scenes {
		prefix := "  "
		if m.Focused && i == m.SelectedIdx {
			prefix = "> "
		}
		lines = append(lines, prefix+renderScene(s, width-2))
		if m.Full && len(s.Sources) > 0 {
			src := "      " + strings.Join(s.Sources, ", ")
			lines = append(lines, theme.StyleDimmed.Render(truncate(src, width)))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderScene(s mirror.Scene, width int) string {
	color := theme.TallyColor(s.Program, s.Preview)
	key := theme.StyleDimmed.Render("[" + s.DisplayKey() + "]")
	glyph := lipgloss.NewStyle().Foreground(color).Render(theme.TallyGlyph(s.Program, s.Preview))

	nameStyle := lipgloss.NewStyle().Foreground(theme.ColorBright)
	if s.Program || s.Preview {
		nameStyle = nameStyle.Bold(true).Foreground(color)
	}
	name := nameStyle.Render(truncate(s.Name, width-24))

	var tags []string
	switch {
	case s.Program:
		tags = append(tags, "PGM")
	case s.Preview:
		tags = append(tags, "PVW")
	}
	if s.Screenshot != "" {
		tags = append(tags, fmt.Sprintf("shot %s", formatBytes(screenshotBytes(s.Screenshot))))
	}
	tagStr := ""
	if len(tags) > 0 {
		tagStr = "  " + theme.StyleDimmed.Render(strings.Join(tags, " · "))
	}
	return key + " " + glyph + " " + name + tagStr
}

// screenshotBytes estimates the decoded size of a base64 data URI.
func screenshotBytes(uri string) int {
	if i := strings.IndexByte(uri, ','); i >= 0 {
		uri = uri[i+1:]
	}
	return len(uri) * 3 / 4
}

func formatBytes(n int) string {
	if n >= 1024 {
		return fmt.Sprintf("%.1fk", float64(n)/1024)
	}
	return fmt.Sprintf("%db", n)
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
