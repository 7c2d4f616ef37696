// Package dashboard provides the performance summary row and the outputs
// table, alongside the load of the machine running the panel.
package dashboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dvangennip/web-remote-for-OBS/internal/mirror"
	"github.com/dvangennip/web-remote-for-OBS/internal/theme"
)

// HostLoad is the local machine's CPU and memory use in percent.
type HostLoad struct {
	CPU    float64
	Memory float64
}

// SampleHost measures the local machine. CPU use is averaged since the
// previous call.
func SampleHost(ctx context.Context) (HostLoad, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return HostLoad{}, fmt.Errorf("cpu percent: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostLoad{}, fmt.Errorf("virtual memory: %w", err)
	}
	load := HostLoad{Memory: vm.UsedPercent}
	if len(pct) > 0 {
		load.CPU = pct[0]
	}
	return load, nil
}

// Model holds the dashboard state.
type Model struct {
	Width  int
	Status mirror.Status
	Host   HostLoad
}

// New creates a dashboard model.
func New() Model {
	return Model{}
}

// View renders the full dashboard: stats row + outputs table.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsRow(width),
		m.renderOutputs(width),
	)
}

// renderStatsRow shows OBS performance next to the local load in a single row.
func (m Model) renderStatsRow(width int) string {
	st := m.Status.Stats
	video := m.Status.Video

	statStyle := lipgloss.NewStyle().Padding(0, 1)
	warn := func(bad bool) lipgloss.Color {
		if bad {
			return theme.ColorDanger
		}
		return theme.ColorBright
	}

	frameTime := st.FrameTimePercent(video.FPS)
	stats := []string{
		statStyle.Foreground(warn(video.FPS > 0 && st.FPS > 0 && st.FPS < video.FPS-0.5)).Render(
			fmt.Sprintf("FPS: %.1f / %s", st.FPS, formatFPS(video.FPS))),
		statStyle.Foreground(warn(frameTime > 50)).Render(
			fmt.Sprintf("Render: %.1f ms (%.0f%%)", st.FrameTime, frameTime)),
		statStyle.Foreground(warn(st.SkippedRatio() > 0.05)).Render(
			fmt.Sprintf("Skipped: %d / %d", st.SkippedFrames, st.TotalFrames)),
		statStyle.Foreground(theme.ColorAccent).Render(
			fmt.Sprintf("OBS CPU: %.1f%%", st.CPU)),
		statStyle.Foreground(theme.ColorDimmed).Render(
			fmt.Sprintf("Panel CPU: %.0f%%  Mem: %.0f%%", m.Host.CPU, m.Host.Memory)),
	}
	if video.BaseWidth > 0 {
		stats = append(stats, statStyle.Foreground(theme.ColorDimmed).Render(
			fmt.Sprintf("Canvas: %dx%d", video.BaseWidth, video.BaseHeight)))
	}

	content := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

// renderOutputs lists the stream, recording, virtual camera and every
// additional output.
func (m Model) renderOutputs(width int) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).
		Render("  Outputs")

	colName := 28
	colState := 12
	colTime := 10

	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorDimmed)
	tableHeader := fmt.Sprintf("  %-*s %-*s %-*s", colName, "Name", colState, "State", colTime, "Time")
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", min(width-4, colName+colState+colTime+2))),
	}

	s := m.Status
	row := func(name, state, timecode string, color lipgloss.Color) {
		nameStr := lipgloss.NewStyle().Foreground(theme.ColorBright).Width(colName).Render(name)
		stateStr := lipgloss.NewStyle().Foreground(color).Width(colState).Render(state)
		timeStr := dimStyle.Width(colTime).Render(timecode)
		lines = append(lines, fmt.Sprintf("  %s %s %s", nameStr, stateStr, timeStr))
	}

	stateName, color := outputState(s.Stream, theme.ColorLive)
	row("Stream", stateName, activeOnly(s.Stream, s.StreamTimecode), color)
	stateName, color = outputState(s.Record, theme.ColorRecording)
	row("Recording", stateName, activeOnly(s.Record, s.RecTimecode), color)
	stateName, color = outputState(mirror.OutputState{Active: s.VirtualCam}, theme.ColorVirtualCam)
	row("Virtual camera", stateName, "", color)
	for _, o := range s.Outputs {
		stateName, color = outputState(mirror.OutputState{Active: o.Active}, theme.ColorHealthy)
		row(o.Name, stateName, "", color)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func outputState(o mirror.OutputState, on lipgloss.Color) (string, lipgloss.Color) {
	switch {
	case o.Starting:
		return "starting", theme.ColorTransition
	case o.Stopping:
		return "stopping", theme.ColorTransition
	case o.Paused:
		return "paused", theme.ColorPaused
	case o.Active:
		return "active", on
	default:
		return "off", theme.ColorDimmed
	}
}

func activeOnly(o mirror.OutputState, timecode string) string {
	if !o.Active {
		return ""
	}
	return timecode
}

func formatFPS(fps float64) string {
	if fps == 0 {
		return "?"
	}
	return fmt.Sprintf("%.4g", fps)
}
