// Package mixer renders the audio mixer. Fader bars glide towards the
// mirrored volume on a critically damped spring so remote changes are
// easy to follow.
package mixer

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/dvangennip/web-remote-for-OBS/internal/mirror"
	"github.com/dvangennip/web-remote-for-OBS/internal/theme"
)

// FPS is the animation frame rate.
const FPS = 30

const (
	nameWidth  = 16
	faderWidth = 24
	// settleEpsilon is how close a fader must be to rest to stop animating.
	settleEpsilon = 0.002
)

type fader struct {
	pos, vel float64
}

// Model holds mixer state.
type Model struct {
	sources []mirror.AudioSource
	faders  map[string]*fader
	spring  harmonica.Spring

	SelectedIdx int
	Focused     bool
	Width       int
}

// New creates a mixer model.
func New() Model {
	return Model{
		faders: make(map[string]*fader),
		spring: harmonica.NewSpring(harmonica.FPS(FPS), 8.0, 1.0),
	}
}

// SetSources replaces the source list. New sources start at rest on their
// level; known sources keep animating from where they are.
func (m *Model) SetSources(sources []mirror.AudioSource) {
	m.sources = sources
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		seen[s.Name] = true
		if _, ok := m.faders[s.Name]; !ok {
			m.faders[s.Name] = &fader{pos: s.Volume}
		}
	}
	for name := range m.faders {
		if !seen[name] {
			delete(m.faders, name)
		}
	}
	if m.SelectedIdx >= len(sources) {
		m.SelectedIdx = len(sources) - 1
	}
	if m.SelectedIdx < 0 {
		m.SelectedIdx = 0
	}
}

// Selected returns the highlighted source.
func (m Model) Selected() (mirror.AudioSource, bool) {
	if m.SelectedIdx < 0 || m.SelectedIdx >= len(m.sources) {
		return mirror.AudioSource{}, false
	}
	return m.sources[m.SelectedIdx], true
}

// MoveUp moves the selection up, wrapping around.
func (m *Model) MoveUp() {
	if len(m.sources) > 0 {
		m.SelectedIdx = (m.SelectedIdx - 1 + len(m.sources)) % len(m.sources)
	}
}

// MoveDown moves the selection down, wrapping around.
func (m *Model) MoveDown() {
	if len(m.sources) > 0 {
		m.SelectedIdx = (m.SelectedIdx + 1) % len(m.sources)
	}
}

// Step advances every fader one frame and reports whether any is still
// moving.
func (m *Model) Step() bool {
	moving := false
	for _, s := range m.sources {
		f := m.faders[s.Name]
		if f == nil {
			continue
		}
		f.pos, f.vel = m.spring.Update(f.pos, f.vel, s.Volume)
		if math.Abs(f.pos-s.Volume) < settleEpsilon && math.Abs(f.vel) < settleEpsilon {
			f.pos, f.vel = s.Volume, 0
			continue
		}
		moving = true
	}
	return moving
}

// Animating reports whether a fader is away from its target.
func (m Model) Animating() bool {
	for _, s := range m.sources {
		if f := m.faders[s.Name]; f != nil && (f.pos != s.Volume || f.vel != 0) {
			return true
		}
	}
	return false
}

// Position returns the displayed fader position of a source.
func (m Model) Position(name string) float64 {
	if f := m.faders[name]; f != nil {
		return f.pos
	}
	return 0
}

// View renders one row per source.
func (m Model) View() string {
	lines := []string{theme.StyleHeader.Render("AUDIO")}
	if len(m.sources) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No audio sources"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	for i, s := range m.sources {
		prefix := "  "
		if m.Focused && i == m.SelectedIdx {
			prefix = "> "
		}
		lines = append(lines, prefix+m.renderRow(s))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderRow(s mirror.AudioSource) string {
	nameStyle := lipgloss.NewStyle().Width(nameWidth).Foreground(theme.ColorBright)
	if !s.Audible() {
		nameStyle = nameStyle.Foreground(theme.ColorDimmed)
	}
	name := nameStyle.Render(truncate(s.Name, nameWidth-1))

	db := mirror.MulToDecibel(s.Volume)
	bar := renderFader(m.Position(s.Name), faderWidth, theme.LevelColor(db, s.Muted))
	level := lipgloss.NewStyle().Width(9).Align(lipgloss.Right).Render(formatDB(db))

	flags := []string{
		flag("M", s.Muted, theme.ColorDanger),
		flag("A", s.Active, theme.ColorHealthy),
		flag("S", s.Sceneless, theme.ColorAccent),
		flag("V", s.Visible && s.InScene, theme.ColorPreview),
	}
	tracks := renderTracks(s.Tracks)
	filters := ""
	if n := len(s.Filters); n > 0 {
		filters = theme.StyleDimmed.Render(fmt.Sprintf(" fx:%d", n))
	}
	return name + " " + bar + level + " " + strings.Join(flags, "") + " " + tracks + filters
}

func renderFader(pos float64, width int, color lipgloss.Color) string {
	pos = math.Min(math.Max(pos, 0), 1)
	filled := int(math.Round(pos * float64(width)))
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	bar += lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Repeat("░", width-filled))
	return bar
}

func renderTracks(tracks [6]bool) string {
	var b strings.Builder
	for i, on := range tracks {
		if on {
			b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorBright).Render(fmt.Sprint(i + 1)))
		} else {
			b.WriteString(theme.StyleDimmed.Render("·"))
		}
	}
	return b.String()
}

func flag(label string, on bool, color lipgloss.Color) string {
	if !on {
		return theme.StyleDimmed.Render("·")
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(label)
}

// formatDB renders a level the way OBS labels its faders.
func formatDB(db float64) string {
	if db <= -94.5 {
		return "-inf dB"
	}
	return fmt.Sprintf("%.1f dB", db)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
