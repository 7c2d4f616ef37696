package dashboard

import (
	"context"
	"strings"
	"testing"

	"github.com/dvangennip/web-remote-for-OBS/internal/mirror"
)

func TestViewListsOutputs(t *testing.T) {
	m := New()
	m.Width = 240
	m.Status = mirror.Status{
		Stream:         mirror.OutputState{Active: true},
		StreamTimecode: "00:12:34",
		Record:         mirror.OutputState{Active: true, Paused: true},
		RecTimecode:    "00:01:02",
		Outputs:        []mirror.Output{{Name: "NDI Main Output", Active: true}},
		Stats:          mirror.Stats{FPS: 30, FrameTime: 4, CPU: 2.5, SkippedFrames: 3, TotalFrames: 1000},
		Video:          mirror.VideoInfo{BaseWidth: 1920, BaseHeight: 1080, FPS: 30},
	}
	m.Host = HostLoad{CPU: 12, Memory: 40}

	v := m.View()
	for _, want := range []string{
		"FPS: 30.0 / 30", "Skipped: 3 / 1000", "OBS CPU: 2.5%", "Panel CPU: 12%",
		"Canvas: 1920x1080", "Stream", "00:12:34", "paused", "Virtual camera", "NDI Main Output",
	} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestSampleHost(t *testing.T) {
	load, err := SampleHost(context.Background())
	if err != nil {
		t.Skipf("host metrics unavailable: %v", err)
	}
	if load.Memory <= 0 || load.Memory > 100 {
		t.Errorf("memory = %v, want (0, 100]", load.Memory)
	}
}
