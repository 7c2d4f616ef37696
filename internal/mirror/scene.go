package mirror

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

// Scene is a mirrored OBS scene.
type Scene struct {
	Name    string
	Index   int
	Program bool
	Preview bool
	// Sources holds the names of the scene's items as last reported.
	Sources []string
	// Screenshot is a data URI, empty until the first capture.
	Screenshot string
}

// DisplayKey is the keyboard shortcut shown for the scene: 1-9 for the
// first nine, 0 for the tenth and "-" for the rest.
func (s *Scene) DisplayKey() string {
	return displayKey(s.Index)
}

func displayKey(index int) string {
	switch {
	case index < 9:
		return strconv.Itoa(index + 1)
	case index == 9:
		return "0"
	default:
		return "-"
	}
}

// hiddenScene reports scenes the panel never shows: helper scenes nested
// into other scenes.
func hiddenScene(name string) bool {
	return strings.Contains(name, "subscene") || strings.Contains(name, "hidden")
}

type sceneListResponse struct {
	CurrentScene string `json:"current-scene"`
	Scenes       []struct {
		Name    string                `json:"name"`
		Sources []client.SceneItemRef `json:"sources"`
	} `json:"scenes"`
}

type namedSceneResponse struct {
	Name    string                `json:"name"`
	Sources []client.SceneItemRef `json:"sources"`
}

func itemNames(refs []client.SceneItemRef) []string {
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names
}

// ResyncScenes fetches the scene list (and the preview scene in studio
// mode) and reconciles the scene collection. On failure the collection is
// left untouched.
func (e *Engine) ResyncScenes(ctx context.Context) error {
	var list sceneListResponse
	if err := e.call(ctx, "GetSceneList", nil, &list); err != nil {
		return e.record("scenes", err)
	}

	e.mu.Lock()
	studio := e.studioMode
	e.mu.Unlock()

	var preview namedSceneResponse
	if studio {
		if err := e.call(ctx, "GetPreviewScene", nil, &preview); err != nil {
			return e.record("scenes", err)
		}
	}

	keys := make([]string, 0, len(list.Scenes))
	items := make(map[string][]string, len(list.Scenes))
	for _, sc := range list.Scenes {
		if hiddenScene(sc.Name) {
			continue
		}
		keys = append(keys, sc.Name)
		items[sc.Name] = itemNames(sc.Sources)
	}

	e.mu.Lock()
	e.scenes.Reconcile(keys,
		func(i int, name string) *Scene {
			return &Scene{Name: name, Index: i, Sources: items[name]}
		},
		func(i int, s *Scene) {
			s.Index = i
			s.Sources = items[s.Name]
		})
	e.setProgramLocked(list.CurrentScene)
	if studio {
		e.setPreviewLocked(preview.Name)
	}
	e.recomputeInSceneLocked()
	e.mu.Unlock()

	e.changed()
	return e.record("scenes", nil)
}

// RefreshStudioMode fetches whether studio mode is on.
func (e *Engine) RefreshStudioMode(ctx context.Context) error {
	res := e.caller.Call(ctx, "GetStudioModeStatus", nil)
	if !res.OK() {
		return fmt.Errorf("GetStudioModeStatus: %s", res.Error)
	}
	var status struct {
		StudioMode    *bool `json:"studio-mode"`
		StudioModeAlt *bool `json:"studioMode"`
	}
	if err := res.Decode(&status); err != nil {
		return err
	}
	on := false
	switch {
	case status.StudioMode != nil:
		on = *status.StudioMode
	case status.StudioModeAlt != nil:
		on = *status.StudioModeAlt
	}

	e.mu.Lock()
	e.setStudioModeLocked(on)
	e.mu.Unlock()
	e.changed()
	return nil
}

// setProgramLocked moves the program flag. The previous holder is cleared
// before the new one is set, so at most one scene is ever flagged.
func (e *Engine) setProgramLocked(name string) {
	if old, ok := e.scenes.Get(e.program); ok && old.Program {
		old.Program = false
		e.scenes.Changed(old)
	}
	e.program = name
	if s, ok := e.scenes.Get(name); ok {
		s.Program = true
		e.scenes.Changed(s)
	}
}

func (e *Engine) setPreviewLocked(name string) {
	if old, ok := e.scenes.Get(e.preview); ok && old.Preview {
		old.Preview = false
		e.scenes.Changed(old)
	}
	e.preview = name
	if s, ok := e.scenes.Get(name); ok {
		s.Preview = true
		e.scenes.Changed(s)
	}
}

func (e *Engine) setStudioModeLocked(on bool) {
	e.studioMode = on
	if !on {
		e.setPreviewLocked("")
	}
}

func (e *Engine) onSwitchScenes(ev client.SwitchScenes) {
	e.mu.Lock()
	if s, ok := e.scenes.Get(ev.SceneName); ok {
		s.Sources = itemNames(ev.Sources)
	}
	e.setProgramLocked(ev.SceneName)
	e.applyInSceneLocked(itemNames(ev.Sources))
	e.mu.Unlock()
	e.changed()

	// No event reports a source becoming audible through a scene change.
	e.spawn("audio activity", e.RefreshAudioActivity)
}

func (e *Engine) onPreviewSceneChanged(ev client.PreviewSceneChanged) {
	e.mu.Lock()
	if s, ok := e.scenes.Get(ev.SceneName); ok {
		s.Sources = itemNames(ev.Sources)
	}
	e.setPreviewLocked(ev.SceneName)
	e.mu.Unlock()
	e.changed()
}

func (e *Engine) onScenesChanged(client.ScenesChanged) {
	e.spawn("scenes", e.ResyncScenes)
}

func (e *Engine) onStudioModeSwitched(ev client.StudioModeSwitched) {
	e.mu.Lock()
	e.setStudioModeLocked(ev.NewState)
	e.mu.Unlock()
	e.changed()
	if ev.NewState {
		e.spawn("preview scene", e.refreshPreview)
	}
}

func (e *Engine) refreshPreview(ctx context.Context) error {
	var preview namedSceneResponse
	if err := e.call(ctx, "GetPreviewScene", nil, &preview); err != nil {
		return err
	}
	e.mu.Lock()
	if e.studioMode {
		e.setPreviewLocked(preview.Name)
	}
	e.mu.Unlock()
	e.changed()
	return nil
}

func (e *Engine) renameSceneLocked(from, to string) {
	if !e.scenes.Rename(from, to) {
		return
	}
	s, _ := e.scenes.Get(to)
	s.Name = to
	if e.program == from {
		e.program = to
	}
	if e.preview == from {
		e.preview = to
	}
	e.scenes.Changed(s)
}

// Scenes returns copies of the visible scenes in display order.
func (e *Engine) Scenes() []Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Scene, 0, e.scenes.Len())
	for _, s := range e.scenes.Ordered() {
		c := *s
		c.Sources = append([]string(nil), s.Sources...)
		out = append(out, c)
	}
	return out
}

// Program returns the program scene name.
func (e *Engine) Program() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.program
}

// Preview returns the preview scene name; empty outside studio mode.
func (e *Engine) Preview() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preview
}

// StudioMode reports whether studio mode is on.
func (e *Engine) StudioMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.studioMode
}

// SceneByShortcut maps a digit key to a scene name (1-9, then 0 for the
// tenth scene).
func (e *Engine) SceneByShortcut(key string) (string, bool) {
	if len(key) != 1 || key[0] < '0' || key[0] > '9' {
		return "", false
	}
	index := int(key[0] - '1')
	if key == "0" {
		index = 9
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.scenes.Ordered() {
		if s.Index == index {
			return s.Name, true
		}
	}
	return "", false
}

// SelectScene puts a scene in preview when studio mode is on, or on
// program otherwise. forceProgram always targets program.
func (e *Engine) SelectScene(ctx context.Context, name string, forceProgram bool) client.Result {
	command := "SetCurrentScene"
	if e.StudioMode() && !forceProgram {
		command = "SetPreviewScene"
	}
	return e.caller.Call(ctx, command, client.Params{"scene-name": name})
}

// ToggleStudioMode flips studio mode locally for immediate feedback and
// asks OBS to follow. The StudioModeSwitched event confirms it. Nothing
// changes locally while disconnected.
func (e *Engine) ToggleStudioMode(ctx context.Context) client.Result {
	if e.online() {
		e.mu.Lock()
		e.setStudioModeLocked(!e.studioMode)
		e.mu.Unlock()
		e.changed()
	}
	return e.caller.Call(ctx, "ToggleStudioMode", nil)
}

// Transition moves the preview scene to program. It only applies in
// studio mode.
func (e *Engine) Transition(ctx context.Context) client.Result {
	if !e.StudioMode() {
		return client.Result{Status: client.StatusError, Command: "TransitionToProgram", Error: "studio mode not enabled"}
	}
	return e.caller.Call(ctx, "TransitionToProgram", nil)
}
