// Package mock is an in-process fake of OBS Studio speaking the
// obs-websocket 4.x protocol. Tests drive it directly; cmd/mock-obs serves
// it for demos.
package mock

// Scene is one scene and the names of the sources it contains.
type Scene struct {
	Name    string
	Sources []string
}

// Filter is one filter on a source.
type Filter struct {
	Name     string
	Type     string
	Enabled  bool
	Settings map[string]any
}

// Source is an input known to the fake studio.
type Source struct {
	Name    string
	TypeID  string
	Volume  float64
	Muted   bool
	Visible bool
	Active  bool
	Tracks  [6]bool
	Filters []Filter
}

// Output is an entry of ListOutputs.
type Output struct {
	Name   string
	Active bool
}

// Studio is the mutable state of the fake OBS instance.
type Studio struct {
	Scenes     []Scene
	Current    string
	Preview    string
	StudioMode bool

	// AudioTypes lists input type ids that have audio capability.
	AudioTypes []string
	Sources    []Source
	// Special maps GetSpecialSources keys (desktop-1, mic-1, ...) to source names.
	Special map[string]string

	Streaming       bool
	Recording       bool
	RecordingPaused bool
	VirtualCam      bool
	Outputs         []Output

	BaseWidth  int
	BaseHeight int
	FPS        float64
}

// DefaultStudio returns a small studio resembling a typical streaming setup.
func DefaultStudio() Studio {
	allTracks := [6]bool{true, true, false, false, false, false}
	return Studio{
		Scenes: []Scene{
			{Name: "Starting soon", Sources: []string{"Music", "Countdown"}},
			{Name: "Camera", Sources: []string{"Webcam", "Mic"}},
			{Name: "Screen share", Sources: []string{"Display", "Mic", "Webcam"}},
			{Name: "lower thirds subscene", Sources: []string{"Lower third"}},
			{Name: "Be right back", Sources: []string{"Music"}},
		},
		Current:    "Starting soon",
		AudioTypes: []string{"pulse_input_capture", "pulse_output_capture", "ffmpeg_source", "v4l2_input"},
		Sources: []Source{
			{Name: "Desktop Audio", TypeID: "pulse_output_capture", Volume: 0.8, Tracks: allTracks, Active: true, Visible: true},
			{Name: "Mic", TypeID: "pulse_input_capture", Volume: 1, Tracks: allTracks, Visible: true,
				Filters: []Filter{
					{Name: "Gate", Type: "noise_gate_filter", Enabled: true, Settings: map[string]any{"open_threshold": -30.0}},
					{Name: "Compressor", Type: "compressor_filter", Enabled: true, Settings: map[string]any{}},
					{Name: "Colour", Type: "color_filter", Enabled: true, Settings: map[string]any{}},
				}},
			{Name: "Music", TypeID: "ffmpeg_source", Volume: 0.35, Tracks: allTracks, Active: true, Visible: true},
			{Name: "Webcam", TypeID: "v4l2_input", Volume: 0, Muted: true, Visible: true},
			{Name: "Countdown", TypeID: "text_ft2_source_v2"},
			{Name: "Lower third", TypeID: "text_ft2_source_v2"},
			{Name: "Display", TypeID: "xshm_input"},
		},
		Special: map[string]string{"desktop-1": "Desktop Audio"},
		Outputs: []Output{
			{Name: "adv_stream"},
			{Name: "adv_file_output"},
			{Name: "virtualcam_output"},
			{Name: "NDI Main Output", Active: true},
		},
		BaseWidth:  1920,
		BaseHeight: 1080,
		FPS:        30,
	}
}

func (st *Studio) scene(name string) *Scene {
	for i := range st.Scenes {
		if st.Scenes[i].Name == name {
			return &st.Scenes[i]
		}
	}
	return nil
}

func (st *Studio) source(name string) *Source {
	for i := range st.Sources {
		if st.Sources[i].Name == name {
			return &st.Sources[i]
		}
	}
	return nil
}

func (st *Studio) filter(source, name string) *Filter {
	src := st.source(source)
	if src == nil {
		return nil
	}
	for i := range src.Filters {
		if src.Filters[i].Name == name {
			return &src.Filters[i]
		}
	}
	return nil
}

func sceneItems(sc *Scene) []map[string]any {
	items := make([]map[string]any, 0, len(sc.Sources))
	for _, name := range sc.Sources {
		items = append(items, map[string]any{"name": name, "type": "input"})
	}
	return items
}

func filterList(filters []Filter) []map[string]any {
	out := make([]map[string]any, 0, len(filters))
	for _, f := range filters {
		out = append(out, map[string]any{"name": f.Name, "type": f.Type, "enabled": f.Enabled, "settings": f.Settings})
	}
	return out
}
