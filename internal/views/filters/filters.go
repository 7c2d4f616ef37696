// Package filters renders the per-source flyout: audio tracks, visibility
// and the source's filters with their editable settings.
package filters

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dvangennip/web-remote-for-OBS/internal/mirror"
	"github.com/dvangennip/web-remote-for-OBS/internal/theme"
)

const (
	panelWidth = 64
	labelWidth = 18
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)
)

// Row is one selectable line: a filter header (Setting == -1) or one of
// its settings.
type Row struct {
	Filter  int
	Setting int
}

// Model holds the flyout state for one source.
type Model struct {
	Source mirror.AudioSource
	Cursor int
	// Error is the last failed command, shown until the next success.
	Error string
}

// New creates a flyout for the given source.
func New(src mirror.AudioSource) Model {
	return Model{Source: src}
}

// SetSource refreshes the source, keeping the cursor in range.
func (m *Model) SetSource(src mirror.AudioSource) {
	m.Source = src
	if n := len(m.rows()); m.Cursor >= n {
		m.Cursor = max(n-1, 0)
	}
}

func (m Model) rows() []Row {
	var rows []Row
	for i, f := range m.Source.Filters {
		rows = append(rows, Row{Filter: i, Setting: -1})
		for j := range f.Kind.Schema() {
			rows = append(rows, Row{Filter: i, Setting: j})
		}
	}
	return rows
}

// MoveUp moves the cursor up.
func (m *Model) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
}

// MoveDown moves the cursor down.
func (m *Model) MoveDown() {
	if m.Cursor < len(m.rows())-1 {
		m.Cursor++
	}
}

// Current returns the filter under the cursor and, when the cursor is on a
// setting row, that setting.
func (m Model) Current() (f mirror.Filter, spec mirror.SettingSpec, onSetting bool, ok bool) {
	rows := m.rows()
	if m.Cursor < 0 || m.Cursor >= len(rows) {
		return mirror.Filter{}, mirror.SettingSpec{}, false, false
	}
	r := rows[m.Cursor]
	f = m.Source.Filters[r.Filter]
	if r.Setting < 0 {
		return f, mirror.SettingSpec{}, false, true
	}
	return f, f.Kind.Schema()[r.Setting], true, true
}

// NextValue steps a setting by one increment in direction dir (+1 or -1).
// Numbers move by Step, choices cycle. ok is false for free-text settings.
func NextValue(spec mirror.SettingSpec, cur any, dir int) (next any, ok bool) {
	switch spec.Format {
	case mirror.FormatNumber:
		f, err := toFloat(cur)
		if err != nil {
			f, _ = toFloat(spec.Default)
		}
		step := spec.Step
		if step <= 0 {
			step = 1
		}
		return f + float64(dir)*step, true
	case mirror.FormatSelect, mirror.FormatIndexed, mirror.FormatBoolean:
		n := len(spec.Options)
		if n == 0 {
			return nil, false
		}
		idx := 0
		for i, o := range spec.Options {
			if o == cur {
				idx = i
				break
			}
		}
		return spec.Options[((idx+dir)%n+n)%n], true
	}
	return nil, false
}

// View renders the flyout.
func (m Model) View() string {
	return stylePanel.Width(panelWidth).Render(m.renderInner())
}

func (m Model) renderInner() string {
	s := m.Source
	var b strings.Builder

	b.WriteString(styleTitle.Render("Source: "+s.Name) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	writeRow(&b, "Type", s.TypeID)
	writeRow(&b, "Volume", fmt.Sprintf("%.0f%%  %.1f dB", s.Volume*100, mirror.MulToDecibel(s.Volume)))
	writeRow(&b, "Muted", yesNo(s.Muted))
	if s.Sceneless {
		writeRow(&b, "Scope", "global (plays in every scene)")
	} else {
		writeRow(&b, "In program", yesNo(s.InScene))
		writeRow(&b, "Visible", yesNo(s.Visible))
	}
	writeRow(&b, "Tracks", renderTracks(s.Tracks))
	b.WriteString("\n")

	if len(s.Filters) == 0 {
		b.WriteString(theme.StyleDimmed.Render("No supported filters") + "\n")
	}
	for i, r := range m.rows() {
		cursor := "  "
		if i == m.Cursor {
			cursor = "> "
		}
		f := s.Filters[r.Filter]
		if r.Setting < 0 {
			state := lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("on ")
			if !f.Enabled {
				state = theme.StyleDimmed.Render("off")
			}
			title := f.Kind.Title()
			b.WriteString(cursor + state + " " + styleTitle.Render(f.Name) + theme.StyleDimmed.Render("  "+title) + "\n")
			continue
		}
		spec := f.Kind.Schema()[r.Setting]
		b.WriteString(cursor + "    " + styleLabel.Render(spec.Label) + styleValue.Render(spec.FormatValue(f.Settings[spec.Key])) + "\n")
	}

	if m.Error != "" {
		b.WriteString("\n" + theme.StyleError.Render("Error: "+m.Error) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(styleFooter.Render("[j/k] move  [space] on/off  [+/-] adjust  [1-6] tracks  [v] visible  [esc] close"))
	return b.String()
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}

func renderTracks(tracks [6]bool) string {
	parts := make([]string, 0, len(tracks))
	for i, on := range tracks {
		if on {
			parts = append(parts, fmt.Sprintf("[%d]", i+1))
		} else {
			parts = append(parts, fmt.Sprintf(" %d ", i+1))
		}
	}
	return strings.Join(parts, "")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}
