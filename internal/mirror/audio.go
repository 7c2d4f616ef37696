package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

// AudioSource is a mirrored input with audio capability.
type AudioSource struct {
	Name   string
	TypeID string
	Index  int
	// Volume is the fader position as a multiplier in [0, 1].
	Volume  float64
	Muted   bool
	Visible bool
	// InScene is true when the program scene contains the source.
	InScene bool
	// Active is true when OBS reports the source both active and audible.
	Active bool
	// Sceneless marks desktop and mic devices that play regardless of scene.
	Sceneless bool
	Tracks [6]bool
	// Filters is only filled in copies returned by Engine.Audio.
	Filters []Filter

	filters *Collection[*Filter]
}

// Audible reports whether the panel should treat the source as live.
func (a *AudioSource) Audible() bool {
	return (a.InScene || a.Sceneless) && !a.Muted
}

// MulToDecibel maps a fader multiplier onto the dB scale OBS shows next to
// its faders. Values at or below silence clamp to -94.5.
func MulToDecibel(mul float64) float64 {
	const floor = -94.5
	if mul <= 0 {
		return floor
	}
	return math.Max(((0.212*math.Log10(mul)+1)*94.5)-94.5, floor)
}

type sourceTypesResponse struct {
	Types []struct {
		TypeID string `json:"typeId"`
		Type   string `json:"type"`
		Caps   struct {
			HasAudio bool `json:"hasAudio"`
		} `json:"caps"`
	} `json:"types"`
}

type sourcesListResponse struct {
	Sources []struct {
		Name   string `json:"name"`
		TypeID string `json:"typeId"`
		Type   string `json:"type"`
	} `json:"sources"`
}

type volumeResponse struct {
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
}

type tracksResponse struct {
	Track1 bool `json:"track1"`
	Track2 bool `json:"track2"`
	Track3 bool `json:"track3"`
	Track4 bool `json:"track4"`
	Track5 bool `json:"track5"`
	Track6 bool `json:"track6"`
}

func (t tracksResponse) array() [6]bool {
	return [6]bool{t.Track1, t.Track2, t.Track3, t.Track4, t.Track5, t.Track6}
}

type filterInfo struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Enabled  bool           `json:"enabled"`
	Settings map[string]any `json:"settings"`
}

type filtersResponse struct {
	Filters []filterInfo `json:"filters"`
}

// audioDetails is what a new source needs before it is shown.
type audioDetails struct {
	volume  volumeResponse
	tracks  [6]bool
	filters []filterInfo
}

// resyncAudioAttempts bounds how often ResyncAudio refetches when the source
// list goes stale while new sources are being fetched.
const resyncAudioAttempts = 3

var errAudioListChanged = errors.New("audio source list kept changing during resync")

// ResyncAudio rebuilds the audio source collection from the source list.
// Only new sources have their details fetched; existing ones are kept and
// patched by events. On failure the collection is left untouched.
func (e *Engine) ResyncAudio(ctx context.Context) error {
	for range resyncAudioAttempts {
		applied, err := e.resyncAudioOnce(ctx)
		if err != nil {
			return e.record("audio", err)
		}
		if applied {
			e.record("audio", nil)
			return e.RefreshAudioActivity(ctx)
		}
	}
	return e.record("audio", errAudioListChanged)
}

// resyncAudioOnce reports false when a rename or removal landed between
// listing the sources and applying them, leaving the list stale.
func (e *Engine) resyncAudioOnce(ctx context.Context) (bool, error) {
	var types sourceTypesResponse
	if err := e.call(ctx, "GetSourceTypesList", nil, &types); err != nil {
		return false, err
	}
	audioTypes := make(map[string]bool)
	for _, t := range types.Types {
		if t.Type == "input" && t.Caps.HasAudio {
			audioTypes[t.TypeID] = true
		}
	}

	special := e.caller.Call(ctx, "GetSpecialSources", nil)
	if !special.OK() {
		return false, errors.New("GetSpecialSources: " + special.Error)
	}
	global := make(map[string]bool)
	for key, raw := range special.Fields() {
		var name string
		if key == "message-id" || key == "status" || json.Unmarshal(raw, &name) != nil {
			continue
		}
		global[name] = true
	}

	var list sourcesListResponse
	if err := e.call(ctx, "GetSourcesList", nil, &list); err != nil {
		return false, err
	}
	keys := make([]string, 0, len(list.Sources))
	typeIDs := make(map[string]string)
	for _, src := range list.Sources {
		if src.Type == "input" && audioTypes[src.TypeID] {
			keys = append(keys, src.Name)
			typeIDs[src.Name] = src.TypeID
		}
	}

	e.mu.Lock()
	var missing []string
	for _, k := range keys {
		if _, ok := e.audio.Get(k); !ok {
			missing = append(missing, k)
		}
	}
	e.mu.Unlock()

	details := make(map[string]audioDetails, len(missing))
	for _, name := range missing {
		d, err := e.fetchAudioDetails(ctx, name)
		if err != nil {
			return false, err
		}
		details[name] = d
	}

	e.mu.Lock()
	for _, k := range keys {
		_, known := e.audio.Get(k)
		if _, fetched := details[k]; !known && !fetched {
			e.mu.Unlock()
			e.log.Debug().Str("source", k).Msg("audio source renamed or removed during resync, retrying")
			return false, nil
		}
	}
	e.audio.Reconcile(keys,
		func(i int, name string) *AudioSource {
			d := details[name]
			a := &AudioSource{
				Name:      name,
				TypeID:    typeIDs[name],
				Index:     i,
				Volume:    d.volume.Volume,
				Muted:     d.volume.Muted,
				Visible:   true,
				Sceneless: global[name],
				Tracks:    d.tracks,
				filters:   NewCollection(e.opts.FilterHooks),
			}
			reconcileFilters(a.filters, d.filters)
			return a
		},
		func(i int, a *AudioSource) {
			a.Index = i
			a.TypeID = typeIDs[a.Name]
			a.Sceneless = global[a.Name]
		})
	e.recomputeInSceneLocked()
	e.mu.Unlock()
	e.changed()
	return true, nil
}

func (e *Engine) fetchAudioDetails(ctx context.Context, name string) (audioDetails, error) {
	var d audioDetails
	if err := e.call(ctx, "GetVolume", client.Params{"source": name}, &d.volume); err != nil {
		return d, err
	}
	var tracks tracksResponse
	if err := e.call(ctx, "GetAudioTracks", client.Params{"sourceName": name}, &tracks); err != nil {
		return d, err
	}
	d.tracks = tracks.array()
	var filters filtersResponse
	if err := e.call(ctx, "GetSourceFilters", client.Params{"sourceName": name}, &filters); err != nil {
		return d, err
	}
	d.filters = filters.Filters
	return d, nil
}

// reconcileFilters applies a filter list snapshot. Unsupported filter types
// are skipped.
func reconcileFilters(c *Collection[*Filter], infos []filterInfo) {
	keys := make([]string, 0, len(infos))
	byName := make(map[string]filterInfo, len(infos))
	for _, f := range infos {
		if _, ok := ParseFilterKind(f.Type); !ok {
			continue
		}
		keys = append(keys, f.Name)
		byName[f.Name] = f
	}
	c.Reconcile(keys,
		func(_ int, name string) *Filter {
			info := byName[name]
			kind := FilterKind(info.Type)
			return &Filter{Name: name, Kind: kind, Enabled: info.Enabled, Settings: kind.Settings(info.Settings)}
		},
		func(_ int, f *Filter) {
			info := byName[f.Name]
			f.Enabled = info.Enabled
			f.Settings = f.Kind.Settings(info.Settings)
			c.Changed(f)
		})
}

// ResyncFilters refreshes the filter list of one source.
func (e *Engine) ResyncFilters(ctx context.Context, source string) error {
	var filters filtersResponse
	if err := e.call(ctx, "GetSourceFilters", client.Params{"sourceName": source}, &filters); err != nil {
		return e.record("filters", err)
	}
	e.mu.Lock()
	if a, ok := e.audio.Get(source); ok {
		reconcileFilters(a.filters, filters.Filters)
	}
	e.mu.Unlock()
	e.changed()
	return e.record("filters", nil)
}

// RefreshFilters reloads the state and settings of every mirrored filter.
// OBS pushes no event for settings changes, so this runs on the poll.
func (e *Engine) RefreshFilters(ctx context.Context) error {
	type ref struct{ source, filter string }
	e.mu.Lock()
	var refs []ref
	for _, a := range e.audio.Ordered() {
		for _, name := range a.filters.Keys() {
			refs = append(refs, ref{a.Name, name})
		}
	}
	e.mu.Unlock()

	var errs []error
	for _, r := range refs {
		errs = append(errs, e.RefreshFilter(ctx, r.source, r.filter))
	}
	return errors.Join(errs...)
}

// RefreshFilter reloads one filter's state and settings.
func (e *Engine) RefreshFilter(ctx context.Context, source, filter string) error {
	var info filterInfo
	params := client.Params{"sourceName": source, "filterName": filter}
	if err := e.call(ctx, "GetSourceFilterInfo", params, &info); err != nil {
		return err
	}
	e.mu.Lock()
	if f, ok := e.filterLocked(source, filter); ok {
		f.Enabled = info.Enabled
		f.Settings = f.Kind.Settings(info.Settings)
		e.audioFilters(source).Changed(f)
	}
	e.mu.Unlock()
	e.changed()
	return nil
}

func (e *Engine) audioFilters(source string) *Collection[*Filter] {
	if a, ok := e.audio.Get(source); ok {
		return a.filters
	}
	return nil
}

func (e *Engine) filterLocked(source, filter string) (*Filter, bool) {
	c := e.audioFilters(source)
	if c == nil {
		return nil, false
	}
	return c.Get(filter)
}

func (e *Engine) recomputeInSceneLocked() {
	if s, ok := e.scenes.Get(e.program); ok {
		e.applyInSceneLocked(s.Sources)
	}
}

// applyInSceneLocked flags the audio sources contained in the program
// scene. Names compare case-insensitively.
func (e *Engine) applyInSceneLocked(names []string) {
	in := make(map[string]bool, len(names))
	for _, n := range names {
		in[strings.ToLower(n)] = true
	}
	for _, a := range e.audio.Ordered() {
		v := in[strings.ToLower(a.Name)]
		if a.InScene != v {
			a.InScene = v
			e.audio.Changed(a)
		}
	}
}

type activity struct {
	visible, active bool
}

// RefreshAudioActivity asks OBS which in-scene sources are visible and
// actually producing sound.
func (e *Engine) RefreshAudioActivity(ctx context.Context) error {
	e.mu.Lock()
	var names []string
	for _, a := range e.audio.Ordered() {
		if a.InScene || a.Sceneless {
			names = append(names, a.Name)
		}
	}
	e.mu.Unlock()

	results := make(map[string]activity, len(names))
	var errs []error
	for _, name := range names {
		act, err := e.fetchActivity(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[name] = act
	}

	e.mu.Lock()
	for _, a := range e.audio.Ordered() {
		act, ok := results[a.Name]
		if !ok {
			if !a.InScene && !a.Sceneless && a.Active {
				a.Active = false
				e.audio.Changed(a)
			}
			continue
		}
		if a.Visible != act.visible || a.Active != act.active {
			a.Visible, a.Active = act.visible, act.active
			e.audio.Changed(a)
		}
	}
	e.mu.Unlock()
	e.changed()
	return errors.Join(errs...)
}

func (e *Engine) fetchActivity(ctx context.Context, name string) (activity, error) {
	act := activity{visible: true}

	e.mu.Lock()
	inScene := false
	if a, ok := e.audio.Get(name); ok {
		inScene = a.InScene
	}
	e.mu.Unlock()

	if inScene {
		var props struct {
			Visible bool `json:"visible"`
		}
		if err := e.call(ctx, "GetSceneItemProperties", client.Params{"item": name}, &props); err != nil {
			return act, err
		}
		act.visible = props.Visible
	}

	var src struct {
		SourceActive bool `json:"sourceActive"`
	}
	if err := e.call(ctx, "GetSourceActive", client.Params{"sourceName": name}, &src); err != nil {
		return act, err
	}
	var audio struct {
		AudioActive bool `json:"audioActive"`
	}
	if err := e.call(ctx, "GetAudioActive", client.Params{"sourceName": name}, &audio); err != nil {
		return act, err
	}
	act.active = src.SourceActive && audio.AudioActive
	return act, nil
}

// --- event handlers ---

func (e *Engine) onSourceCreated(ev client.SourceCreated) {
	if ev.SourceType == "input" {
		e.spawn("audio", e.ResyncAudio)
	}
}

func (e *Engine) onSourceDestroyed(ev client.SourceDestroyed) {
	if ev.SourceType != "input" {
		return
	}
	e.mu.Lock()
	removed := e.audio.Remove(ev.SourceName)
	e.mu.Unlock()
	if removed {
		e.changed()
	}
	e.spawn("audio", e.ResyncAudio)
}

func (e *Engine) onSourceRenamed(ev client.SourceRenamed) {
	e.mu.Lock()
	if ev.SourceType == "scene" {
		e.renameSceneLocked(ev.PreviousName, ev.NewName)
	} else if e.audio.Rename(ev.PreviousName, ev.NewName) {
		a, _ := e.audio.Get(ev.NewName)
		a.Name = ev.NewName
		e.audio.Changed(a)
	}
	for _, s := range e.scenes.Ordered() {
		for i, n := range s.Sources {
			if n == ev.PreviousName {
				s.Sources[i] = ev.NewName
			}
		}
	}
	e.mu.Unlock()
	e.changed()
}

// updateSource applies fn to a known source under the lock.
func (e *Engine) updateSource(name string, fn func(a *AudioSource)) {
	e.mu.Lock()
	a, ok := e.audio.Get(name)
	if ok {
		fn(a)
		e.audio.Changed(a)
	}
	e.mu.Unlock()
	if ok {
		e.changed()
	}
}

func (e *Engine) onVolumeChanged(ev client.SourceVolumeChanged) {
	e.updateSource(ev.SourceName, func(a *AudioSource) { a.Volume = ev.Volume })
}

func (e *Engine) onMuteChanged(ev client.SourceMuteStateChanged) {
	e.updateSource(ev.SourceName, func(a *AudioSource) { a.Muted = ev.Muted })
	e.spawn("audio activity", e.RefreshAudioActivity)
}

func (e *Engine) onMixersChanged(ev client.SourceAudioMixersChanged) {
	e.updateSource(ev.SourceName, func(a *AudioSource) {
		for i, m := range ev.Mixers {
			if i < len(a.Tracks) {
				a.Tracks[i] = m.Enabled
			}
		}
	})
}

func (e *Engine) onVisibilityChanged(ev client.SceneItemVisibilityChanged) {
	if ev.SceneName != e.Program() {
		return
	}
	e.updateSource(ev.ItemName, func(a *AudioSource) { a.Visible = ev.ItemVisible })
}

func (e *Engine) onFilterAdded(ev client.SourceFilterAdded) {
	kind, ok := ParseFilterKind(ev.FilterType)
	if !ok {
		return
	}
	e.mu.Lock()
	c := e.audioFilters(ev.SourceName)
	if c != nil {
		c.Add(ev.FilterName, &Filter{Name: ev.FilterName, Kind: kind, Enabled: true, Settings: kind.Settings(ev.FilterSettings)})
	}
	e.mu.Unlock()
	if c != nil {
		e.changed()
	}
}

func (e *Engine) onFilterRemoved(ev client.SourceFilterRemoved) {
	e.mu.Lock()
	removed := false
	if c := e.audioFilters(ev.SourceName); c != nil {
		removed = c.Remove(ev.FilterName)
	}
	e.mu.Unlock()
	if removed {
		e.changed()
	}
}

// onFiltersReordered applies the new order and enabled flags in one step so
// views never see a half-reordered list.
func (e *Engine) onFiltersReordered(ev client.SourceFiltersReordered) {
	e.mu.Lock()
	c := e.audioFilters(ev.SourceName)
	if c != nil {
		names := make([]string, 0, len(ev.Filters))
		for _, ref := range ev.Filters {
			names = append(names, ref.Name)
			if f, ok := c.Get(ref.Name); ok {
				f.Enabled = ref.Enabled
			}
		}
		c.Reorder(names)
	}
	e.mu.Unlock()
	if c != nil {
		e.changed()
	}
}

func (e *Engine) onFilterVisibilityChanged(ev client.SourceFilterVisibilityChanged) {
	e.mu.Lock()
	f, ok := e.filterLocked(ev.SourceName, ev.FilterName)
	if ok {
		f.Enabled = ev.FilterEnabled
		e.audioFilters(ev.SourceName).Changed(f)
	}
	e.mu.Unlock()
	if ok {
		e.changed()
	}
}

// --- views ---

// Audio returns copies of the audio sources in display order, filters
// included.
func (e *Engine) Audio() []AudioSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]AudioSource, 0, e.audio.Len())
	for _, a := range e.audio.Ordered() {
		c := *a
		c.filters = nil
		for _, f := range a.filters.Ordered() {
			c.Filters = append(c.Filters, f.clone())
		}
		out = append(out, c)
	}
	return out
}

// AudioSource returns a copy of one source.
func (e *Engine) AudioSource(name string) (AudioSource, bool) {
	for _, a := range e.Audio() {
		if a.Name == name {
			return a, true
		}
	}
	return AudioSource{}, false
}

// --- commands ---

// SetVolume moves a fader. volume is clamped into [0, 1].
func (e *Engine) SetVolume(ctx context.Context, source string, volume float64) client.Result {
	volume = math.Min(math.Max(volume, 0), 1)
	return e.caller.Call(ctx, "SetVolume", client.Params{"source": source, "volume": volume})
}

// SetMute mutes or unmutes a source. The local copy changes at once and is
// corrected by the mute event or the next resync. While disconnected the
// local copy is left alone.
func (e *Engine) SetMute(ctx context.Context, source string, muted bool) client.Result {
	if e.online() {
		e.updateSource(source, func(a *AudioSource) { a.Muted = muted })
	}
	return e.caller.Call(ctx, "SetMute", client.Params{"source": source, "mute": muted})
}

// ToggleMute flips a source's mute state.
func (e *Engine) ToggleMute(ctx context.Context, source string) client.Result {
	if e.online() {
		e.updateSource(source, func(a *AudioSource) { a.Muted = !a.Muted })
	}
	return e.caller.Call(ctx, "ToggleMute", client.Params{"source": source})
}

// SetVisibility shows or hides a source in the program scene.
func (e *Engine) SetVisibility(ctx context.Context, source string, visible bool) client.Result {
	if e.online() {
		e.updateSource(source, func(a *AudioSource) { a.Visible = visible })
	}
	return e.caller.Call(ctx, "SetSceneItemRender", client.Params{
		"source": source, "render": visible, "scene-name": e.Program(),
	})
}

// SetTrack routes a source to output track 1-6. The local copy is updated
// once OBS accepts.
func (e *Engine) SetTrack(ctx context.Context, source string, track int, on bool) client.Result {
	params := client.Params{"sourceName": source, "track": track, "active": on}
	if track < 1 || track > 6 {
		return client.Result{Status: client.StatusError, Command: "SetAudioTracks", Params: params, Error: "track must be between 1 and 6"}
	}
	res := e.caller.Call(ctx, "SetAudioTracks", params)
	if res.OK() {
		e.updateSource(source, func(a *AudioSource) { a.Tracks[track-1] = on })
	}
	return res
}

// SetFilterEnabled turns a filter on or off.
func (e *Engine) SetFilterEnabled(ctx context.Context, source, filter string, on bool) client.Result {
	return e.caller.Call(ctx, "SetSourceFilterVisibility", client.Params{
		"sourceName": source, "filterName": filter, "filterEnabled": on,
	})
}

// SetFilterSetting changes one filter setting. The value is validated
// against the filter's schema first; the local copy follows on success.
func (e *Engine) SetFilterSetting(ctx context.Context, source, filter, key string, value any) client.Result {
	params := client.Params{"sourceName": source, "filterName": filter}
	fail := func(msg string) client.Result {
		return client.Result{Status: client.StatusError, Command: "SetSourceFilterSettings", Params: params, Error: msg}
	}

	e.mu.Lock()
	f, ok := e.filterLocked(source, filter)
	var kind FilterKind
	if ok {
		kind = f.Kind
	}
	e.mu.Unlock()
	if !ok {
		return fail("unknown filter")
	}
	spec, ok := kind.Spec(key)
	if !ok {
		return fail("unknown setting " + key)
	}
	v, err := spec.Normalize(value)
	if err != nil {
		return fail(err.Error())
	}

	params["filterSettings"] = map[string]any{key: v}
	res := e.caller.Call(ctx, "SetSourceFilterSettings", params)
	if !res.OK() {
		return res
	}
	e.mu.Lock()
	if f, ok := e.filterLocked(source, filter); ok {
		f.Settings[key] = v
		e.audioFilters(source).Changed(f)
	}
	e.mu.Unlock()
	e.changed()
	return res
}

// SetText replaces the text of a FreeType 2 text source.
func (e *Engine) SetText(ctx context.Context, source, text string) client.Result {
	return e.caller.Call(ctx, "SetTextFreetype2Properties", client.Params{"source": source, "text": text})
}
