// Package theme provides the Lip Gloss color palette and reusable styles
// for the OBS remote TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Tally colors follow broadcast convention: red is on air, green is cued.
var (
	ColorProgram = lipgloss.Color("#dc2626")
	ColorPreview = lipgloss.Color("#16a34a")
	ColorIdle    = lipgloss.Color("#4b5563")
)

// Output state colors.
var (
	ColorLive       = lipgloss.Color("#dc2626")
	ColorRecording  = lipgloss.Color("#f97316")
	ColorPaused     = lipgloss.Color("#d97706")
	ColorTransition = lipgloss.Color("#7c3aed")
	ColorVirtualCam = lipgloss.Color("#3b82f6")
)

// Fader colors by level.
var (
	ColorLevelLow  = lipgloss.Color("#22c55e") // below -20 dB
	ColorLevelMid  = lipgloss.Color("#d97706") // -20 to -9 dB
	ColorLevelHigh = lipgloss.Color("#dc2626") // above -9 dB
	ColorMuted     = lipgloss.Color("#374151")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorAccent  = lipgloss.Color("#06b6d4")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// TallyColor returns the color for a scene's on-air state.
func TallyColor(program, preview bool) lipgloss.Color {
	switch {
	case program:
		return ColorProgram
	case preview:
		return ColorPreview
	default:
		return ColorIdle
	}
}

// LevelColor returns the fader color for a level in decibels.
func LevelColor(db float64, muted bool) lipgloss.Color {
	switch {
	case muted:
		return ColorMuted
	case db > -9:
		return ColorLevelHigh
	case db > -20:
		return ColorLevelMid
	default:
		return ColorLevelLow
	}
}

// Badge renders a short bold label on a colored background.
func Badge(label string, bg lipgloss.Color) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright).
		Background(bg).
		Padding(0, 1).
		Render(label)
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)

// TallyGlyph returns the marker shown next to a scene name.
func TallyGlyph(program, preview bool) string {
	switch {
	case program:
		return "●"
	case preview:
		return "◐"
	default:
		return "○"
	}
}
