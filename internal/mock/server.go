package mock

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

// Handler overrides the built-in behaviour of one request type.
type Handler func(params map[string]any) (map[string]any, error)

type event struct {
	updateType string
	fields     map[string]any
}

// Server is a fake OBS websocket endpoint.
type Server struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader
	hub      *hub

	mu        sync.Mutex
	password  string
	salt      string
	challenge string
	studio    Studio
	overrides map[string]Handler
	silenced  map[string]bool
	requests  []string
}

// NewServer creates a fake OBS. An empty password disables authentication.
func NewServer(password string, studio Studio, log zerolog.Logger) *Server {
	return &Server{
		log: log.With().Str("component", "mock-obs").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		hub:       newHub(),
		password:  password,
		salt:      uuid.NewString(),
		challenge: uuid.NewString(),
		studio:    studio,
		overrides: make(map[string]Handler),
		silenced:  make(map[string]bool),
	}
}

// Handle replaces the built-in handling of command.
func (s *Server) Handle(command string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[command] = h
}

// Silence makes the server swallow command without answering.
func (s *Server) Silence(command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silenced[command] = true
}

// SetPassword changes the password for subsequent handshakes.
func (s *Server) SetPassword(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password = password
}

// Requests returns the request types received so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how often command was received.
func (s *Server) Count(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r == command {
			n++
		}
	}
	return n
}

// Studio returns a copy of the current studio state. Slices are shared.
func (s *Server) Studio() Studio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.studio
}

// Update mutates the studio without emitting any event.
func (s *Server) Update(fn func(*Studio)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.studio)
}

// Emit pushes an event to every connected client.
func (s *Server) Emit(updateType string, fields map[string]any) {
	s.broadcast([]event{{updateType: updateType, fields: fields}})
}

// CloseClients closes every connection with a going-away close frame.
func (s *Server) CloseClients() {
	for _, c := range s.hub.snapshot() {
		s.hub.remove(c, websocket.CloseGoingAway)
	}
}

// DropClients closes every connection without a close frame.
func (s *Server) DropClients() {
	for _, c := range s.hub.snapshot() {
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.count()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("client connected")
	c := s.hub.add(conn)

	go func() {
		defer func() {
			s.hub.remove(c, websocket.CloseNormalClosure)
			s.log.Debug().Str("remote", r.RemoteAddr).Msg("client disconnected")
		}()
		authenticated := false
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleMessage(c, data, &authenticated)
		}
	}()
}

func (s *Server) handleMessage(c *panelConn, data []byte, authenticated *bool) {
	var p params
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn().Err(err).Msg("malformed request")
		return
	}
	id := p.str("message-id")
	command := p.str("request-type")

	s.mu.Lock()
	s.requests = append(s.requests, command)
	if s.silenced[command] {
		s.mu.Unlock()
		return
	}

	var (
		resp   map[string]any
		events []event
		err    error
	)
	switch {
	case command == "GetAuthRequired":
		resp = map[string]any{"authRequired": s.password != ""}
		if s.password != "" {
			resp["challenge"] = s.challenge
			resp["salt"] = s.salt
		} else {
			*authenticated = true
		}
	case command == "Authenticate":
		if p.str("auth") != client.AuthResponse(s.password, s.salt, s.challenge) {
			err = errors.New("Authentication Failed.")
		} else {
			*authenticated = true
			resp = map[string]any{}
		}
	case !*authenticated && s.password != "":
		err = errors.New("Not Authenticated")
	case s.overrides[command] != nil:
		h := s.overrides[command]
		s.mu.Unlock()
		resp, err = h(p)
		s.mu.Lock()
	default:
		resp, events, err = s.exec(command, p)
	}

	out := map[string]any{"message-id": id}
	if err != nil {
		out["status"] = "error"
		out["error"] = err.Error()
	} else {
		for k, v := range resp {
			out[k] = v
		}
		out["status"] = "ok"
	}
	// Responses may reference studio maps, so encode before unlocking.
	msg, _ := json.Marshal(out)
	s.mu.Unlock()
	c.enqueue(msg)

	s.broadcast(events)
}

func (s *Server) broadcast(events []event) {
	for _, ev := range events {
		msg := map[string]any{"update-type": ev.updateType}
		for k, v := range ev.fields {
			msg[k] = v
		}
		data, err := json.Marshal(msg)
		if err != nil {
			s.log.Warn().Err(err).Str("event", ev.updateType).Msg("marshal event")
			continue
		}
		s.hub.broadcast(data)
	}
}

var errNotFound = errors.New("specified source doesn't exist")

// exec runs a built-in request against the studio. Called with s.mu held.
func (s *Server) exec(command string, p params) (map[string]any, []event, error) {
	st := &s.studio
	switch command {
	case "GetVersion":
		return map[string]any{
			"version":               1.1,
			"obs-websocket-version": "4.9.1",
			"obs-studio-version":    "27.2.4",
		}, nil, nil

	case "GetSceneList":
		scenes := make([]map[string]any, 0, len(st.Scenes))
		for i := range st.Scenes {
			scenes = append(scenes, map[string]any{"name": st.Scenes[i].Name, "sources": sceneItems(&st.Scenes[i])})
		}
		return map[string]any{"current-scene": st.Current, "scenes": scenes}, nil, nil

	case "GetCurrentScene":
		sc := st.scene(st.Current)
		if sc == nil {
			return nil, nil, errors.New("no current scene")
		}
		return map[string]any{"name": sc.Name, "sources": sceneItems(sc)}, nil, nil

	case "GetPreviewScene":
		if !st.StudioMode {
			return nil, nil, errors.New("studio mode not enabled")
		}
		sc := st.scene(st.Preview)
		if sc == nil {
			return nil, nil, errors.New("no preview scene")
		}
		return map[string]any{"name": sc.Name, "sources": sceneItems(sc)}, nil, nil

	case "SetCurrentScene":
		sc := st.scene(p.str("scene-name"))
		if sc == nil {
			return nil, nil, errors.New("requested scene does not exist")
		}
		st.Current = sc.Name
		return nil, []event{switchScenes(sc)}, nil

	case "SetPreviewScene":
		if !st.StudioMode {
			return nil, nil, errors.New("studio mode not enabled")
		}
		sc := st.scene(p.str("scene-name"))
		if sc == nil {
			return nil, nil, errors.New("specified scene doesn't exist")
		}
		st.Preview = sc.Name
		return nil, []event{{updateType: client.EventPreviewSceneChanged, fields: map[string]any{"scene-name": sc.Name, "sources": sceneItems(sc)}}}, nil

	case "GetStudioModeStatus":
		return map[string]any{"studio-mode": st.StudioMode}, nil, nil

	case "ToggleStudioMode", "EnableStudioMode", "DisableStudioMode":
		on := !st.StudioMode
		if command == "EnableStudioMode" {
			on = true
		} else if command == "DisableStudioMode" {
			on = false
		}
		st.StudioMode = on
		if on {
			st.Preview = st.Current
		} else {
			st.Preview = ""
		}
		return nil, []event{{updateType: client.EventStudioModeSwitched, fields: map[string]any{"new-state": on}}}, nil

	case "TransitionToProgram":
		if !st.StudioMode {
			return nil, nil, errors.New("studio mode not enabled")
		}
		sc := st.scene(st.Preview)
		if sc == nil {
			return nil, nil, errors.New("no preview scene")
		}
		st.Current = sc.Name
		return nil, []event{switchScenes(sc)}, nil

	case "GetSourceTypesList":
		types := make([]map[string]any, 0, len(st.AudioTypes)+1)
		for _, t := range st.AudioTypes {
			types = append(types, map[string]any{"typeId": t, "type": "input", "caps": map[string]any{"hasAudio": true}})
		}
		types = append(types, map[string]any{"typeId": "text_ft2_source_v2", "type": "input", "caps": map[string]any{"hasAudio": false}})
		return map[string]any{"types": types}, nil, nil

	case "GetSpecialSources":
		resp := make(map[string]any, len(st.Special))
		for k, v := range st.Special {
			resp[k] = v
		}
		return resp, nil, nil

	case "GetSourcesList":
		sources := make([]map[string]any, 0, len(st.Sources)+len(st.Scenes))
		for _, src := range st.Sources {
			sources = append(sources, map[string]any{"name": src.Name, "typeId": src.TypeID, "type": "input"})
		}
		for _, sc := range st.Scenes {
			sources = append(sources, map[string]any{"name": sc.Name, "typeId": "scene", "type": "scene"})
		}
		return map[string]any{"sources": sources}, nil, nil

	case "GetVolume":
		src := st.source(p.str("source"))
		if src == nil {
			return nil, nil, errNotFound
		}
		return map[string]any{"name": src.Name, "volume": src.Volume, "muted": src.Muted}, nil, nil

	case "SetVolume":
		src := st.source(p.str("source"))
		if src == nil {
			return nil, nil, errNotFound
		}
		vol := p.num("volume")
		if vol < 0 || vol > 1 {
			return nil, nil, errors.New("invalid volume")
		}
		src.Volume = vol
		return nil, []event{{updateType: client.EventSourceVolumeChanged, fields: map[string]any{
			"sourceName": src.Name, "volume": vol, "volumeDb": mulToDB(vol),
		}}}, nil

	case "SetMute", "ToggleMute":
		src := st.source(p.str("source"))
		if src == nil {
			return nil, nil, errNotFound
		}
		if command == "SetMute" {
			src.Muted = p.boolean("mute")
		} else {
			src.Muted = !src.Muted
		}
		return nil, []event{{updateType: client.EventSourceMuteStateChanged, fields: map[string]any{"sourceName": src.Name, "muted": src.Muted}}}, nil

	case "GetSceneItemProperties":
		src := st.source(p.str("item"))
		if src == nil {
			return nil, nil, errNotFound
		}
		return map[string]any{"name": src.Name, "visible": src.Visible}, nil, nil

	case "SetSceneItemRender":
		src := st.source(p.str("source"))
		if src == nil {
			return nil, nil, errNotFound
		}
		src.Visible = p.boolean("render")
		scene := p.str("scene-name")
		if scene == "" {
			scene = st.Current
		}
		return nil, []event{{updateType: client.EventSceneItemVisibilityChanged, fields: map[string]any{
			"scene-name": scene, "item-name": src.Name, "item-id": 1, "item-visible": src.Visible,
		}}}, nil

	case "GetSourceActive":
		src := st.source(p.str("sourceName"))
		if src == nil {
			return nil, nil, errNotFound
		}
		return map[string]any{"sourceActive": st.inCurrentScene(src.Name)}, nil, nil

	case "GetAudioActive":
		src := st.source(p.str("sourceName"))
		if src == nil {
			return nil, nil, errNotFound
		}
		return map[string]any{"audioActive": src.Active && !src.Muted}, nil, nil

	case "GetAudioTracks":
		src := st.source(p.str("sourceName"))
		if src == nil {
			return nil, nil, errNotFound
		}
		resp := map[string]any{"name": src.Name}
		for i, on := range src.Tracks {
			resp[fmt.Sprintf("track%d", i+1)] = on
		}
		return resp, nil, nil

	case "SetAudioTracks":
		src := st.source(p.str("sourceName"))
		if src == nil {
			return nil, nil, errNotFound
		}
		track := int(p.num("track"))
		if track < 1 || track > 6 {
			return nil, nil, errors.New("invalid request parameters")
		}
		src.Tracks[track-1] = p.boolean("active")
		mixers := make([]map[string]any, 0, 6)
		for i, on := range src.Tracks {
			mixers = append(mixers, map[string]any{"id": i + 1, "enabled": on})
		}
		return nil, []event{{updateType: client.EventSourceAudioMixersChanged, fields: map[string]any{"sourceName": src.Name, "mixers": mixers}}}, nil

	case "GetSourceFilters":
		src := st.source(p.str("sourceName"))
		if src == nil {
			return nil, nil, errNotFound
		}
		return map[string]any{"filters": filterList(src.Filters)}, nil, nil

	case "GetSourceFilterInfo":
		f := st.filter(p.str("sourceName"), p.str("filterName"))
		if f == nil {
			return nil, nil, errors.New("specified filter doesn't exist on specified source")
		}
		return map[string]any{"name": f.Name, "type": f.Type, "enabled": f.Enabled, "settings": f.Settings}, nil, nil

	case "SetSourceFilterVisibility":
		f := st.filter(p.str("sourceName"), p.str("filterName"))
		if f == nil {
			return nil, nil, errors.New("specified filter doesn't exist on specified source")
		}
		f.Enabled = p.boolean("filterEnabled")
		return nil, []event{{updateType: client.EventSourceFilterVisibilityChanged, fields: map[string]any{
			"sourceName": p.str("sourceName"), "filterName": f.Name, "filterEnabled": f.Enabled,
		}}}, nil

	case "SetSourceFilterSettings":
		f := st.filter(p.str("sourceName"), p.str("filterName"))
		if f == nil {
			return nil, nil, errors.New("specified filter doesn't exist on specified source")
		}
		settings, _ := p["filterSettings"].(map[string]any)
		if f.Settings == nil {
			f.Settings = map[string]any{}
		}
		for k, v := range settings {
			f.Settings[k] = v
		}
		return nil, nil, nil

	case "SetTextFreetype2Properties":
		if st.source(p.str("source")) == nil {
			return nil, nil, errNotFound
		}
		return nil, nil, nil

	case "TakeSourceScreenshot":
		name := p.str("sourceName")
		if st.scene(name) == nil && st.source(name) == nil {
			return nil, nil, errNotFound
		}
		return map[string]any{"sourceName": name, "img": "data:image/jpg;base64,/9j/4AAQSkZJRg=="}, nil, nil

	case "GetStreamingStatus":
		resp := map[string]any{
			"streaming":        st.Streaming,
			"recording":        st.Recording,
			"recording-paused": st.RecordingPaused,
			"virtualcam":       st.VirtualCam,
			"preview-only":     false,
		}
		if st.Streaming {
			resp["stream-timecode"] = "00:12:34.567"
		}
		if st.Recording {
			resp["rec-timecode"] = "00:01:02.345"
		}
		return resp, nil, nil

	case "GetVirtualCamStatus":
		return map[string]any{"isVirtualCam": st.VirtualCam}, nil, nil

	case "GetStats":
		return map[string]any{"stats": map[string]any{
			"fps":                   st.FPS,
			"cpu-usage":             12.5,
			"memory-usage":          512.0,
			"average-frame-time":    2.7,
			"render-skipped-frames": 0,
			"render-total-frames":   9000,
			"output-skipped-frames": 3,
			"output-total-frames":   9000,
		}}, nil, nil

	case "GetVideoInfo":
		return map[string]any{
			"baseWidth": st.BaseWidth, "baseHeight": st.BaseHeight,
			"outputWidth": st.BaseWidth, "outputHeight": st.BaseHeight,
			"fps": st.FPS,
		}, nil, nil

	case "ListOutputs":
		outputs := make([]map[string]any, 0, len(st.Outputs))
		for _, o := range st.Outputs {
			outputs = append(outputs, map[string]any{"name": o.Name, "active": o.Active, "type": "output"})
		}
		return map[string]any{"outputs": outputs}, nil, nil

	case "StartStreaming", "StopStreaming", "StartStopStreaming":
		start := command == "StartStreaming" || (command == "StartStopStreaming" && !st.Streaming)
		if start == st.Streaming {
			return nil, nil, fmt.Errorf("streaming already %s", onOff(start))
		}
		st.Streaming = start
		if start {
			return nil, outputEvents(client.EventStreamStarting, client.EventStreamStarted), nil
		}
		return nil, outputEvents(client.EventStreamStopping, client.EventStreamStopped), nil

	case "StartRecording", "StopRecording", "StartStopRecording":
		start := command == "StartRecording" || (command == "StartStopRecording" && !st.Recording)
		if start == st.Recording {
			return nil, nil, fmt.Errorf("recording already %s", onOff(start))
		}
		st.Recording = start
		st.RecordingPaused = false
		if start {
			return nil, outputEvents(client.EventRecordingStarting, client.EventRecordingStarted), nil
		}
		return nil, outputEvents(client.EventRecordingStopping, client.EventRecordingStopped), nil

	case "PauseRecording", "ResumeRecording":
		pause := command == "PauseRecording"
		if !st.Recording || st.RecordingPaused == pause {
			return nil, nil, errors.New("recording is not in a state to do that")
		}
		st.RecordingPaused = pause
		if pause {
			return nil, outputEvents(client.EventRecordingPaused), nil
		}
		return nil, outputEvents(client.EventRecordingResumed), nil

	case "StartVirtualCam", "StopVirtualCam", "StartStopVirtualCam":
		start := command == "StartVirtualCam" || (command == "StartStopVirtualCam" && !st.VirtualCam)
		if start == st.VirtualCam {
			return nil, nil, fmt.Errorf("virtualcam already %s", onOff(start))
		}
		st.VirtualCam = start
		if start {
			return nil, outputEvents(client.EventVirtualCamStarted), nil
		}
		return nil, outputEvents(client.EventVirtualCamStopped), nil
	}
	return nil, nil, errors.New("invalid request type")
}

func (st *Studio) inCurrentScene(name string) bool {
	sc := st.scene(st.Current)
	if sc == nil {
		return false
	}
	for _, n := range sc.Sources {
		if n == name {
			return true
		}
	}
	return false
}

func switchScenes(sc *Scene) event {
	return event{updateType: client.EventSwitchScenes, fields: map[string]any{"scene-name": sc.Name, "sources": sceneItems(sc)}}
}

func outputEvents(names ...string) []event {
	events := make([]event, 0, len(names))
	for _, n := range names {
		events = append(events, event{updateType: n})
	}
	return events
}

func onOff(on bool) string {
	if on {
		return "active"
	}
	return "inactive"
}

func mulToDB(mul float64) float64 {
	if mul <= 0.00001 {
		return -100
	}
	return 20 * math.Log10(mul)
}

// params reads loosely typed request fields.
type params map[string]any

func (p params) str(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p params) num(key string) float64 {
	n, _ := p[key].(float64)
	return n
}

func (p params) boolean(key string) bool {
	b, _ := p[key].(bool)
	return b
}
