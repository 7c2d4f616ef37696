package mirror_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
	"github.com/dvangennip/web-remote-for-OBS/internal/mirror"
	"github.com/dvangennip/web-remote-for-OBS/internal/mock"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type rig struct {
	srv     *mock.Server
	session *client.Session
	engine  *mirror.Engine
	host    string
}

func newRig(t *testing.T) *rig {
	t.Helper()
	srv := mock.NewServer("", mock.DefaultStudio(), zerolog.Nop())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	s := client.NewSession(client.Options{Log: zerolog.Nop()})
	t.Cleanup(s.Disconnect)
	e := mirror.NewEngine(s, mirror.Options{Log: zerolog.Nop()})
	e.Subscribe(s.Router())
	s.AddLifecycle(e)

	r := &rig{srv: srv, session: s, engine: e, host: strings.TrimPrefix(ts.URL, "http://")}
	require.NoError(t, s.Connect(context.Background(), r.host, ""))
	require.Eventually(t, func() bool {
		// Outputs come from the last step of the initial sync.
		return len(e.Audio()) == 4 && len(e.Scenes()) == 4 && len(e.Status().Outputs) == 1
	}, waitFor, tick, "initial sync")
	return r
}

func sceneNames(scenes []mirror.Scene) []string {
	names := make([]string, 0, len(scenes))
	for _, s := range scenes {
		names = append(names, s.Name)
	}
	return names
}

func audioNames(sources []mirror.AudioSource) []string {
	names := make([]string, 0, len(sources))
	for _, a := range sources {
		names = append(names, a.Name)
	}
	return names
}

func TestEngine_InitialSync(t *testing.T) {
	r := newRig(t)
	e := r.engine

	assert.Equal(t, []string{"Starting soon", "Camera", "Screen share", "Be right back"}, sceneNames(e.Scenes()))
	assert.Equal(t, "Starting soon", e.Program())
	assert.Equal(t, []string{"Desktop Audio", "Mic", "Music", "Webcam"}, audioNames(e.Audio()))

	mic, ok := e.AudioSource("Mic")
	require.True(t, ok)
	require.Len(t, mic.Filters, 2, "unsupported filter types are skipped")
	assert.Equal(t, -30.0, mic.Filters[0].Settings["open_threshold"])
	assert.Equal(t, -32.0, mic.Filters[0].Settings["close_threshold"])

	desktop, _ := e.AudioSource("Desktop Audio")
	assert.True(t, desktop.Sceneless)
	music, _ := e.AudioSource("Music")
	assert.True(t, music.InScene)

	assert.Eventually(t, func() bool {
		return e.Status().Video.BaseWidth == 1920
	}, waitFor, tick)
}

func TestEngine_SwitchScenesUpdatesInScene(t *testing.T) {
	r := newRig(t)
	e := r.engine

	res := e.SelectScene(context.Background(), "Camera", false)
	require.True(t, res.OK(), res.Error)

	assert.Eventually(t, func() bool {
		mic, _ := e.AudioSource("Mic")
		music, _ := e.AudioSource("Music")
		return e.Program() == "Camera" && mic.InScene && !music.InScene
	}, waitFor, tick)
}

func TestEngine_ScenesChangedResyncs(t *testing.T) {
	r := newRig(t)
	e := r.engine
	before := e.Scenes()

	r.srv.AddScene(mock.Scene{Name: "Interview"})
	require.Eventually(t, func() bool { return len(e.Scenes()) == 5 }, waitFor, tick)

	r.srv.RemoveScene("Camera")
	require.Eventually(t, func() bool { return len(e.Scenes()) == 4 }, waitFor, tick)

	assert.Equal(t, []string{"Starting soon", "Screen share", "Be right back", "Interview"}, sceneNames(e.Scenes()))
	assert.Equal(t, before[0].Name, e.Scenes()[0].Name)
}

func TestEngine_RenameKeepsSource(t *testing.T) {
	r := newRig(t)
	e := r.engine

	r.srv.RenameSource("Mic", "Host mic")
	require.Eventually(t, func() bool {
		_, ok := e.AudioSource("Host mic")
		return ok
	}, waitFor, tick)

	mic, _ := e.AudioSource("Host mic")
	assert.Len(t, mic.Filters, 2, "renamed source keeps its state")
	assert.Equal(t, 1, mic.Index)

	r.srv.RenameScene("Camera", "Cam")
	require.Eventually(t, func() bool {
		return e.Scenes()[1].Name == "Cam"
	}, waitFor, tick)
}

func TestEngine_SourceLifecycle(t *testing.T) {
	r := newRig(t)
	e := r.engine

	r.srv.AddSource(mock.Source{Name: "Guest", TypeID: "pulse_input_capture", Volume: 0.5})
	require.Eventually(t, func() bool { return len(e.Audio()) == 5 }, waitFor, tick)
	guest, _ := e.AudioSource("Guest")
	assert.Equal(t, 0.5, guest.Volume)

	r.srv.RemoveSource("Guest")
	require.Eventually(t, func() bool { return len(e.Audio()) == 4 }, waitFor, tick)
}

func TestEngine_VolumeAndMute(t *testing.T) {
	r := newRig(t)
	e := r.engine
	ctx := context.Background()

	require.True(t, e.SetVolume(ctx, "Music", 1.5).OK(), "volume is clamped before sending")
	require.True(t, e.ToggleMute(ctx, "Music").OK())

	assert.Eventually(t, func() bool {
		m, _ := e.AudioSource("Music")
		return m.Volume == 1 && m.Muted
	}, waitFor, tick)
}

func TestEngine_SetTrack(t *testing.T) {
	r := newRig(t)
	e := r.engine

	res := e.SetTrack(context.Background(), "Mic", 4, true)
	require.True(t, res.OK(), res.Error)

	mic, _ := e.AudioSource("Mic")
	assert.True(t, mic.Tracks[3])
	assert.False(t, e.SetTrack(context.Background(), "Mic", 7, true).OK())
}

func TestEngine_FilterEvents(t *testing.T) {
	r := newRig(t)
	e := r.engine

	r.srv.AddFilter("Mic", mock.Filter{Name: "Limiter", Type: "limiter_filter", Enabled: true})
	require.Eventually(t, func() bool {
		mic, _ := e.AudioSource("Mic")
		return len(mic.Filters) == 3
	}, waitFor, tick)

	r.srv.ReorderFilters("Mic", []string{"Limiter", "Compressor", "Gate", "Colour"})
	require.Eventually(t, func() bool {
		mic, _ := e.AudioSource("Mic")
		return len(mic.Filters) == 3 && mic.Filters[0].Name == "Limiter"
	}, waitFor, tick)

	res := e.SetFilterEnabled(context.Background(), "Mic", "Gate", false)
	require.True(t, res.OK(), res.Error)
	assert.Eventually(t, func() bool {
		mic, _ := e.AudioSource("Mic")
		return !mic.Filters[2].Enabled
	}, waitFor, tick)
}

func TestEngine_FilterSettingsRefresh(t *testing.T) {
	r := newRig(t)
	e := r.engine
	ctx := context.Background()

	res := e.SetFilterSetting(ctx, "Mic", "Compressor", "ratio", 4.0)
	require.True(t, res.OK(), res.Error)

	// A change made in OBS itself only shows up on the next poll.
	r.srv.Update(func(st *mock.Studio) {
		for i := range st.Sources {
			if st.Sources[i].Name == "Mic" {
				st.Sources[i].Filters[1].Settings["threshold"] = -30.0
			}
		}
	})
	require.NoError(t, e.RefreshFilters(ctx))

	mic, _ := e.AudioSource("Mic")
	assert.Equal(t, 4.0, mic.Filters[1].Settings["ratio"])
	assert.Equal(t, -30.0, mic.Filters[1].Settings["threshold"])
}

func TestEngine_Outputs(t *testing.T) {
	r := newRig(t)
	e := r.engine
	ctx := context.Background()

	require.True(t, e.ToggleRecording(ctx).OK())
	require.Eventually(t, func() bool { return e.Status().Record.Active }, waitFor, tick)

	require.True(t, e.TogglePause(ctx).OK())
	require.Eventually(t, func() bool { return e.Status().Record.Paused }, waitFor, tick)

	require.True(t, e.ToggleVirtualCam(ctx).OK())
	require.Eventually(t, func() bool { return e.Status().VirtualCam }, waitFor, tick)

	e.Refresh(ctx)
	st := e.Status()
	assert.Equal(t, []mirror.Output{{Name: "NDI Main Output", Active: true}}, st.Outputs)
	assert.Equal(t, "00:01:02", st.RecTimecode)
	assert.True(t, st.Record.Paused)
}

func TestEngine_StudioMode(t *testing.T) {
	r := newRig(t)
	e := r.engine
	ctx := context.Background()

	require.True(t, e.ToggleStudioMode(ctx).OK())
	assert.True(t, e.StudioMode())
	require.Eventually(t, func() bool { return e.Preview() == "Starting soon" }, waitFor, tick)

	require.True(t, e.SelectScene(ctx, "Camera", false).OK())
	require.Eventually(t, func() bool { return e.Preview() == "Camera" }, waitFor, tick)
	assert.Equal(t, "Starting soon", e.Program())

	require.True(t, e.Transition(ctx).OK())
	require.Eventually(t, func() bool { return e.Program() == "Camera" }, waitFor, tick)
}

func TestEngine_ReconnectKeepsIdentity(t *testing.T) {
	r := newRig(t)
	e := r.engine

	r.srv.CloseClients()
	require.Eventually(t, func() bool {
		return r.session.State() == client.StateDisconnected
	}, waitFor, tick)
	assert.Len(t, e.Scenes(), 4, "mirror is kept while disconnected")

	r.srv.AddScene(mock.Scene{Name: "Later"})
	require.NoError(t, r.session.Connect(context.Background(), r.host, ""))
	require.Eventually(t, func() bool { return len(e.Scenes()) == 5 }, waitFor, tick)
}
