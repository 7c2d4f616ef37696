package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

// fakeCaller answers requests from canned handlers and records them.
type fakeCaller struct {
	mu       sync.Mutex
	handlers map[string]func(client.Params) (any, error)
	calls    []string
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{handlers: make(map[string]func(client.Params) (any, error))}
}

func (f *fakeCaller) on(command string, fn func(client.Params) (any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[command] = fn
}

func (f *fakeCaller) reply(command string, resp any) {
	f.on(command, func(client.Params) (any, error) { return resp, nil })
}

func (f *fakeCaller) fail(command, msg string) {
	f.on(command, func(client.Params) (any, error) { return nil, errors.New(msg) })
}

func (f *fakeCaller) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCaller) Call(_ context.Context, command string, params client.Params) client.Result {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	h := f.handlers[command]
	f.mu.Unlock()

	if h == nil {
		return client.Result{Status: client.StatusError, Command: command, Params: params, Error: "invalid request type"}
	}
	resp, err := h(params)
	if err != nil {
		return client.Result{Status: client.StatusError, Command: command, Params: params, Error: err.Error()}
	}
	if resp == nil {
		resp = map[string]any{}
	}
	raw, _ := json.Marshal(resp)
	return client.Result{Status: client.StatusOK, Command: command, Params: params, Raw: raw}
}

func sceneList(current string, names ...string) map[string]any {
	scenes := make([]map[string]any, 0, len(names))
	for _, n := range names {
		scenes = append(scenes, map[string]any{"name": n, "sources": []map[string]any{}})
	}
	return map[string]any{"current-scene": current, "scenes": scenes}
}

func newTestEngine(f *fakeCaller) *Engine {
	return NewEngine(f, Options{Log: zerolog.Nop()})
}

func TestResyncScenes_HidesHelperScenes(t *testing.T) {
	f := newFakeCaller()
	f.reply("GetSceneList", sceneList("Live", "Intro", "Live", "overlay subscene", "hidden stuff", "Outro"))
	e := newTestEngine(f)

	require.NoError(t, e.ResyncScenes(context.Background()))

	scenes := e.Scenes()
	require.Len(t, scenes, 3)
	assert.Equal(t, "Intro", scenes[0].Name)
	assert.Equal(t, "1", scenes[0].DisplayKey())
	assert.True(t, scenes[1].Program)
	assert.Equal(t, "Live", e.Program())
}

func TestResyncScenes_FailureKeepsState(t *testing.T) {
	f := newFakeCaller()
	f.reply("GetSceneList", sceneList("A", "A", "B"))
	e := newTestEngine(f)
	require.NoError(t, e.ResyncScenes(context.Background()))

	f.fail("GetSceneList", "boom")
	err := e.ResyncScenes(context.Background())

	assert.Error(t, err)
	assert.Len(t, e.Scenes(), 2)
	assert.Equal(t, "A", e.Program())
}

func TestProgramFlag_SingleHolder(t *testing.T) {
	f := newFakeCaller()
	f.reply("GetSceneList", sceneList("A", "A", "B", "C"))
	e := newTestEngine(f)
	require.NoError(t, e.ResyncScenes(context.Background()))

	e.onSwitchScenes(client.SwitchScenes{SceneName: "C"})

	var flagged []string
	for _, s := range e.Scenes() {
		if s.Program {
			flagged = append(flagged, s.Name)
		}
	}
	assert.Equal(t, []string{"C"}, flagged)
}

func TestStudioModeOff_ClearsPreview(t *testing.T) {
	f := newFakeCaller()
	f.reply("GetSceneList", sceneList("A", "A", "B"))
	f.reply("GetPreviewScene", map[string]any{"name": "B"})
	e := newTestEngine(f)
	e.onStudioModeSwitched(client.StudioModeSwitched{NewState: true})
	require.NoError(t, e.ResyncScenes(context.Background()))
	require.Equal(t, "B", e.Preview())

	e.onStudioModeSwitched(client.StudioModeSwitched{NewState: false})

	assert.Empty(t, e.Preview())
	for _, s := range e.Scenes() {
		assert.False(t, s.Preview, s.Name)
	}
}

func TestSelectScene_TargetsPreviewInStudioMode(t *testing.T) {
	f := newFakeCaller()
	f.reply("SetPreviewScene", nil)
	f.reply("SetCurrentScene", nil)
	f.reply("GetPreviewScene", map[string]any{"name": "A"})
	e := newTestEngine(f)
	ctx := context.Background()

	e.SelectScene(ctx, "A", false)
	e.onStudioModeSwitched(client.StudioModeSwitched{NewState: true})
	e.SelectScene(ctx, "A", false)
	e.SelectScene(ctx, "A", true)

	var sets []string
	for _, c := range f.called() {
		if c != "GetPreviewScene" {
			sets = append(sets, c)
		}
	}
	assert.Equal(t, []string{"SetCurrentScene", "SetPreviewScene", "SetCurrentScene"}, sets)
}

func TestTransition_RequiresStudioMode(t *testing.T) {
	e := newTestEngine(newFakeCaller())
	res := e.Transition(context.Background())
	assert.False(t, res.OK())
}

func TestSceneByShortcut(t *testing.T) {
	names := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11"}
	f := newFakeCaller()
	f.reply("GetSceneList", sceneList("s1", names...))
	e := newTestEngine(f)
	require.NoError(t, e.ResyncScenes(context.Background()))

	got, ok := e.SceneByShortcut("3")
	assert.True(t, ok)
	assert.Equal(t, "s3", got)
	got, ok = e.SceneByShortcut("0")
	assert.True(t, ok)
	assert.Equal(t, "s10", got)
	_, ok = e.SceneByShortcut("x")
	assert.False(t, ok)

	assert.Equal(t, "-", e.Scenes()[10].DisplayKey())
}

func TestOutputEvents_Transitions(t *testing.T) {
	e := newTestEngine(newFakeCaller())
	ev := func(name string) { e.onOutputEvent(client.OutputEvent{Type: name}) }

	ev(client.EventStreamStarting)
	assert.Equal(t, OutputState{Starting: true}, e.Status().Stream)
	ev(client.EventStreamStarted)
	assert.Equal(t, OutputState{Active: true}, e.Status().Stream)
	ev(client.EventStreamStopping)
	assert.Equal(t, OutputState{Active: true, Stopping: true}, e.Status().Stream)
	ev(client.EventStreamStopped)
	assert.Equal(t, OutputState{}, e.Status().Stream)

	ev(client.EventRecordingStarted)
	ev(client.EventRecordingPaused)
	assert.Equal(t, OutputState{Active: true, Paused: true}, e.Status().Record)
	ev(client.EventRecordingResumed)
	assert.Equal(t, OutputState{Active: true}, e.Status().Record)

	ev(client.EventVirtualCamStarted)
	assert.True(t, e.Status().VirtualCam)
}

func TestToggleStreaming_GuardedByState(t *testing.T) {
	f := newFakeCaller()
	f.reply("StartStreaming", nil)
	f.reply("StopStreaming", nil)
	e := newTestEngine(f)
	ctx := context.Background()

	e.ToggleStreaming(ctx)
	e.onOutputEvent(client.OutputEvent{Type: client.EventStreamStarting})
	busy := e.ToggleStreaming(ctx)
	e.onOutputEvent(client.OutputEvent{Type: client.EventStreamStarted})
	e.ToggleStreaming(ctx)

	assert.False(t, busy.OK())
	assert.Equal(t, []string{"StartStreaming", "StopStreaming"}, f.called())
}

func TestRefreshStatus_FiltersBuiltinOutputs(t *testing.T) {
	f := newFakeCaller()
	f.reply("GetStreamingStatus", map[string]any{
		"streaming": true, "recording": false, "stream-timecode": "01:02:03.456",
	})
	f.reply("GetStats", map[string]any{"stats": map[string]any{"fps": 30.0, "output-skipped-frames": 1, "output-total-frames": 100}})
	f.reply("ListOutputs", map[string]any{"outputs": []map[string]any{
		{"name": "adv_stream", "active": true},
		{"name": "NDI Main Output", "active": true},
	}})
	e := newTestEngine(f)

	require.NoError(t, e.RefreshStatus(context.Background()))

	st := e.Status()
	assert.True(t, st.Stream.Active)
	assert.Equal(t, "01:02:03", st.StreamTimecode)
	assert.Equal(t, []Output{{Name: "NDI Main Output", Active: true}}, st.Outputs)
}

func TestStats_Alert(t *testing.T) {
	assert.False(t, Stats{FPS: 30, FrameTime: 5, SkippedFrames: 1, TotalFrames: 100}.Alert(30))
	assert.True(t, Stats{FPS: 30, SkippedFrames: 10, TotalFrames: 100}.Alert(30), "skipped frames")
	assert.True(t, Stats{FPS: 24}.Alert(30), "fps drop")
	assert.True(t, Stats{FPS: 30, FrameTime: 20}.Alert(30), "frame time")
}

func TestScreenshotTargets_IdleCadence(t *testing.T) {
	f := newFakeCaller()
	f.reply("GetSceneList", sceneList("A", "A", "B", "C"))
	f.on("TakeSourceScreenshot", func(p client.Params) (any, error) {
		return map[string]any{"img": "data:" + p["sourceName"].(string)}, nil
	})
	e := NewEngine(f, Options{Log: zerolog.Nop(), ScreenshotIdleEvery: 3})
	require.NoError(t, e.ResyncScenes(context.Background()))

	counts := func() int {
		n := 0
		for _, c := range f.called() {
			if c == "TakeSourceScreenshot" {
				n++
			}
		}
		return n
	}

	var perTick []int
	for i := 0; i < 4; i++ {
		before := counts()
		e.mu.Lock()
		e.ticks++
		e.mu.Unlock()
		require.NoError(t, e.RefreshScreenshots(context.Background()))
		perTick = append(perTick, counts()-before)
	}

	assert.Equal(t, []int{3, 1, 1, 3}, perTick)
	assert.Equal(t, "data:B", e.Scenes()[1].Screenshot)
}

func TestFilterEvents_PatchInPlace(t *testing.T) {
	e := newTestEngine(newFakeCaller())
	e.mu.Lock()
	e.audio.Add("Mic", &AudioSource{Name: "Mic", filters: NewCollection(Hooks[*Filter]{})})
	e.mu.Unlock()

	e.onFilterAdded(client.SourceFilterAdded{SourceName: "Mic", FilterName: "Gate", FilterType: "noise_gate_filter"})
	e.onFilterAdded(client.SourceFilterAdded{SourceName: "Mic", FilterName: "Gain", FilterType: "gain_filter"})
	e.onFilterAdded(client.SourceFilterAdded{SourceName: "Mic", FilterName: "Tint", FilterType: "color_filter"})
	e.onFiltersReordered(client.SourceFiltersReordered{SourceName: "Mic", Filters: []client.FilterRef{
		{Name: "Gain", Enabled: true}, {Name: "Gate", Enabled: false},
	}})

	mic, ok := e.AudioSource("Mic")
	require.True(t, ok)
	require.Len(t, mic.Filters, 2)
	assert.Equal(t, "Gain", mic.Filters[0].Name)
	assert.False(t, mic.Filters[1].Enabled)
	assert.Equal(t, -32.0, mic.Filters[1].Settings["close_threshold"])

	e.onFilterRemoved(client.SourceFilterRemoved{SourceName: "Mic", FilterName: "Gain"})
	mic, _ = e.AudioSource("Mic")
	assert.Len(t, mic.Filters, 1)
}

func TestSetFilterSetting_ValidatesBeforeSending(t *testing.T) {
	f := newFakeCaller()
	var sent client.Params
	f.on("SetSourceFilterSettings", func(p client.Params) (any, error) {
		sent = p
		return nil, nil
	})
	e := newTestEngine(f)
	e.mu.Lock()
	e.audio.Add("Mic", &AudioSource{Name: "Mic", filters: NewCollection(Hooks[*Filter]{})})
	e.mu.Unlock()
	e.onFilterAdded(client.SourceFilterAdded{SourceName: "Mic", FilterName: "Comp", FilterType: "compressor_filter"})
	ctx := context.Background()

	assert.False(t, e.SetFilterSetting(ctx, "Mic", "Comp", "bogus", 1.0).OK())
	assert.False(t, e.SetFilterSetting(ctx, "Mic", "Nope", "ratio", 1.0).OK())
	assert.Empty(t, f.called())

	res := e.SetFilterSetting(ctx, "Mic", "Comp", "ratio", 50.0)
	require.True(t, res.OK())
	assert.Equal(t, map[string]any{"ratio": 20.0}, sent["filterSettings"])
	mic, _ := e.AudioSource("Mic")
	assert.Equal(t, 20.0, mic.Filters[0].Settings["ratio"])
}

// audioStudio answers the requests ResyncAudio makes for the given sources.
// Mic has volume 0.8 and one gain filter; everything else sits at 1.0.
func audioStudio(f *fakeCaller, names ...string) {
	f.reply("GetSourceTypesList", map[string]any{"types": []map[string]any{
		{"typeId": "wasapi_input_capture", "type": "input", "caps": map[string]any{"hasAudio": true}},
	}})
	f.reply("GetSpecialSources", map[string]any{})
	sources := make([]map[string]any, 0, len(names))
	for _, n := range names {
		sources = append(sources, map[string]any{"name": n, "typeId": "wasapi_input_capture", "type": "input"})
	}
	f.reply("GetSourcesList", map[string]any{"sources": sources})
	f.on("GetVolume", func(p client.Params) (any, error) {
		if p["source"] == "Mic" {
			return map[string]any{"volume": 0.8}, nil
		}
		return map[string]any{"volume": 1.0}, nil
	})
	f.reply("GetAudioTracks", map[string]any{"track1": true})
	f.on("GetSourceFilters", func(p client.Params) (any, error) {
		if p["sourceName"] == "Mic" {
			return map[string]any{"filters": []map[string]any{
				{"name": "Boost", "type": "gain_filter", "enabled": true, "settings": map[string]any{"db": 3.0}},
			}}, nil
		}
		return map[string]any{"filters": []any{}}, nil
	})
}

func TestResyncAudio_RenameDuringFetchKeepsSource(t *testing.T) {
	f := newFakeCaller()
	audioStudio(f, "Mic")
	e := newTestEngine(f)
	require.NoError(t, e.ResyncAudio(context.Background()))

	// Aux shows up; while its volume is being fetched Mic is renamed, so
	// the list fetched a moment earlier still says "Mic".
	audioStudio(f, "Mic", "Aux")
	renamed := false
	f.on("GetVolume", func(p client.Params) (any, error) {
		if p["source"] == "Aux" && !renamed {
			renamed = true
			e.onSourceRenamed(client.SourceRenamed{PreviousName: "Mic", NewName: "Mic 2", SourceType: "input"})
			audioStudio(f, "Mic 2", "Aux")
		}
		return map[string]any{"volume": 0.5}, nil
	})

	require.NoError(t, e.ResyncAudio(context.Background()))

	assert.Equal(t, []string{"Mic 2", "Aux"}, namesOf(e.Audio()))
	mic, ok := e.AudioSource("Mic 2")
	require.True(t, ok)
	assert.Equal(t, 0.8, mic.Volume)
	assert.Len(t, mic.Filters, 1)
	_, ok = e.AudioSource("Mic")
	assert.False(t, ok, "no blank entry for the old name")
}

func TestResyncAudio_GivesUpWhenListNeverSettles(t *testing.T) {
	f := newFakeCaller()
	audioStudio(f, "Mic")
	e := newTestEngine(f)
	require.NoError(t, e.ResyncAudio(context.Background()))

	// Each pass lists the current name of the mic, which is renamed again
	// while Aux is being fetched.
	current := func() string {
		if _, ok := e.AudioSource("Mic"); ok {
			return "Mic"
		}
		return "Mic 2"
	}
	f.on("GetSourcesList", func(client.Params) (any, error) {
		return map[string]any{"sources": []map[string]any{
			{"name": current(), "typeId": "wasapi_input_capture", "type": "input"},
			{"name": "Aux", "typeId": "wasapi_input_capture", "type": "input"},
		}}, nil
	})
	f.on("GetVolume", func(client.Params) (any, error) {
		from := current()
		to := "Mic 2"
		if from == "Mic 2" {
			to = "Mic"
		}
		e.onSourceRenamed(client.SourceRenamed{PreviousName: from, NewName: to, SourceType: "input"})
		return map[string]any{"volume": 0.5}, nil
	})

	err := e.ResyncAudio(context.Background())

	assert.ErrorIs(t, err, errAudioListChanged)
	sources := e.Audio()
	require.Len(t, sources, 1, "collection left as it was")
	assert.Equal(t, 0.8, sources[0].Volume)
}

func namesOf(sources []AudioSource) []string {
	names := make([]string, 0, len(sources))
	for _, a := range sources {
		names = append(names, a.Name)
	}
	return names
}

func TestVolumeEvent_UnknownSourceDropped(t *testing.T) {
	f := newFakeCaller()
	audioStudio(f, "Desktop")
	e := newTestEngine(f)

	e.onVolumeChanged(client.SourceVolumeChanged{SourceName: "Mic", Volume: 0.3})
	assert.Empty(t, e.Audio(), "events never create sources")

	audioStudio(f, "Desktop", "Mic")
	require.NoError(t, e.ResyncAudio(context.Background()))

	mic, ok := e.AudioSource("Mic")
	require.True(t, ok)
	assert.Equal(t, 0.8, mic.Volume, "fetched volume wins over the dropped event")
}

func TestEventsForOldNameIgnoredAfterRename(t *testing.T) {
	f := newFakeCaller()
	audioStudio(f, "Mic 1")
	e := newTestEngine(f)
	require.NoError(t, e.ResyncAudio(context.Background()))

	e.onSourceRenamed(client.SourceRenamed{PreviousName: "Mic 1", NewName: "Mic 2", SourceType: "input"})
	e.onVolumeChanged(client.SourceVolumeChanged{SourceName: "Mic 1", Volume: 0.1})
	e.onMuteChanged(client.SourceMuteStateChanged{SourceName: "Mic 1", Muted: true})

	mic, ok := e.AudioSource("Mic 2")
	require.True(t, ok)
	assert.Equal(t, 1.0, mic.Volume)
	assert.False(t, mic.Muted)
	_, ok = e.AudioSource("Mic 1")
	assert.False(t, ok)
}

// stateCaller is a fakeCaller that also reports a connection state.
type stateCaller struct {
	*fakeCaller
	state client.State
}

func (s *stateCaller) State() client.State { return s.state }

func TestOptimisticUpdates_SkippedWhileDisconnected(t *testing.T) {
	f := newFakeCaller()
	audioStudio(f, "Mic")
	sc := &stateCaller{fakeCaller: f, state: client.StateAuthenticated}
	e := NewEngine(sc, Options{Log: zerolog.Nop()})
	require.NoError(t, e.ResyncAudio(context.Background()))
	ctx := context.Background()

	sc.state = client.StateDisconnected
	e.ToggleStudioMode(ctx)
	e.SetMute(ctx, "Mic", true)
	e.ToggleMute(ctx, "Mic")
	e.SetVisibility(ctx, "Mic", false)

	assert.False(t, e.StudioMode())
	mic, _ := e.AudioSource("Mic")
	assert.False(t, mic.Muted)
	assert.True(t, mic.Visible)

	sc.state = client.StateAuthenticated
	f.reply("ToggleStudioMode", nil)
	f.reply("SetMute", nil)
	e.ToggleStudioMode(ctx)
	e.SetMute(ctx, "Mic", true)

	assert.True(t, e.StudioMode())
	mic, _ = e.AudioSource("Mic")
	assert.True(t, mic.Muted)
}
