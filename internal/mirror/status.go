package mirror

import (
	"context"
	"errors"
	"strings"

	"github.com/dvangennip/web-remote-for-OBS/internal/client"
)

// OutputState tracks one of the stream or recording outputs, including the
// transitional phases reported by events.
type OutputState struct {
	Active   bool
	Starting bool
	Stopping bool
	Paused   bool
}

// Busy reports whether the output is between states.
func (o OutputState) Busy() bool {
	return o.Starting || o.Stopping
}

// Stats is the GetStats snapshot.
type Stats struct {
	CPU           float64 `json:"cpu-usage"`
	FrameTime     float64 `json:"average-frame-time"`
	FPS           float64 `json:"fps"`
	SkippedFrames int     `json:"output-skipped-frames"`
	TotalFrames   int     `json:"output-total-frames"`
}

// SkippedRatio is the share of output frames skipped since output start.
func (s Stats) SkippedRatio() float64 {
	if s.TotalFrames == 0 {
		return 0
	}
	return float64(s.SkippedFrames) / float64(s.TotalFrames)
}

// FrameTimePercent is the render time as a share of the frame budget at
// the given video fps.
func (s Stats) FrameTimePercent(videoFPS float64) float64 {
	if videoFPS <= 0 {
		return 0
	}
	return s.FrameTime / (1000 / videoFPS) * 100
}

// Alert reports performance trouble: more than 5% skipped frames, fps
// below the configured rate or rendering over half the frame budget.
func (s Stats) Alert(videoFPS float64) bool {
	if s.SkippedRatio() > 0.05 {
		return true
	}
	if videoFPS > 0 && s.FPS > 0 && s.FPS < videoFPS-0.5 {
		return true
	}
	return s.FrameTimePercent(videoFPS) > 50
}

// VideoInfo is the canvas configuration.
type VideoInfo struct {
	BaseWidth  int     `json:"baseWidth"`
	BaseHeight int     `json:"baseHeight"`
	FPS        float64 `json:"fps"`
}

// Output is an additional output such as NDI.
type Output struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Status is the mirrored output and performance state.
type Status struct {
	Stream         OutputState
	Record         OutputState
	VirtualCam     bool
	StreamTimecode string
	RecTimecode    string
	Stats          Stats
	Outputs        []Output
	Video          VideoInfo
}

// builtinOutputs are covered by Stream, Record and VirtualCam.
var builtinOutputs = map[string]bool{
	"adv_stream":         true,
	"adv_file_output":    true,
	"virtualcam_output":  true,
	"simple_stream":      true,
	"simple_file_output": true,
}

type streamingStatus struct {
	Streaming       bool   `json:"streaming"`
	Recording       bool   `json:"recording"`
	RecordingPaused bool   `json:"recording-paused"`
	StreamTimecode  string `json:"stream-timecode"`
	RecTimecode     string `json:"rec-timecode"`
}

// trimTimecode drops the milliseconds from HH:MM:SS.mmm.
func trimTimecode(tc string) string {
	head, _, _ := strings.Cut(tc, ".")
	return head
}

// settle folds a polled active flag into an output state. A transition
// seen through events ends once the poll agrees with it.
func settle(o *OutputState, active bool) {
	o.Active = active
	if active {
		o.Starting = false
	} else {
		o.Stopping = false
		o.Paused = false
	}
}

// RefreshStatus polls the stream and recording state, performance stats
// and the list of extra outputs.
func (e *Engine) RefreshStatus(ctx context.Context) error {
	var st streamingStatus
	if err := e.call(ctx, "GetStreamingStatus", nil, &st); err != nil {
		return err
	}
	var stats struct {
		Stats Stats `json:"stats"`
	}
	if err := e.call(ctx, "GetStats", nil, &stats); err != nil {
		return err
	}
	var outputs struct {
		Outputs []Output `json:"outputs"`
	}
	if err := e.call(ctx, "ListOutputs", nil, &outputs); err != nil {
		return err
	}
	extra := make([]Output, 0, len(outputs.Outputs))
	for _, o := range outputs.Outputs {
		if !builtinOutputs[o.Name] {
			extra = append(extra, o)
		}
	}

	e.mu.Lock()
	settle(&e.status.Stream, st.Streaming)
	settle(&e.status.Record, st.Recording)
	if st.Recording {
		e.status.Record.Paused = st.RecordingPaused
	}
	e.status.StreamTimecode = trimTimecode(st.StreamTimecode)
	e.status.RecTimecode = trimTimecode(st.RecTimecode)
	e.status.Stats = stats.Stats
	e.status.Outputs = extra
	e.mu.Unlock()
	e.changed()
	return nil
}

// RefreshVideoInfo fetches the canvas size and frame rate.
func (e *Engine) RefreshVideoInfo(ctx context.Context) error {
	var v VideoInfo
	if err := e.call(ctx, "GetVideoInfo", nil, &v); err != nil {
		return err
	}
	e.mu.Lock()
	e.status.Video = v
	e.mu.Unlock()
	e.changed()
	return nil
}

// RefreshVirtualCam fetches the virtual camera state.
func (e *Engine) RefreshVirtualCam(ctx context.Context) error {
	var v struct {
		IsVirtualCam bool `json:"isVirtualCam"`
	}
	if err := e.call(ctx, "GetVirtualCamStatus", nil, &v); err != nil {
		return err
	}
	e.mu.Lock()
	e.status.VirtualCam = v.IsVirtualCam
	e.mu.Unlock()
	e.changed()
	return nil
}

func (e *Engine) onOutputEvent(ev client.Event) {
	e.mu.Lock()
	s := &e.status
	switch ev.EventName() {
	case client.EventStreamStarting:
		s.Stream = OutputState{Starting: true}
	case client.EventStreamStarted:
		s.Stream = OutputState{Active: true}
	case client.EventStreamStopping:
		s.Stream = OutputState{Active: true, Stopping: true}
	case client.EventStreamStopped:
		s.Stream = OutputState{}
		s.StreamTimecode = ""
	case client.EventRecordingStarting:
		s.Record = OutputState{Starting: true}
	case client.EventRecordingStarted:
		s.Record = OutputState{Active: true}
	case client.EventRecordingStopping:
		s.Record = OutputState{Active: true, Stopping: true}
	case client.EventRecordingStopped:
		s.Record = OutputState{}
		s.RecTimecode = ""
	case client.EventRecordingPaused:
		s.Record = OutputState{Active: true, Paused: true}
	case client.EventRecordingResumed:
		s.Record = OutputState{Active: true}
	case client.EventVirtualCamStarted:
		s.VirtualCam = true
	case client.EventVirtualCamStopped:
		s.VirtualCam = false
	}
	e.mu.Unlock()
	e.changed()
}

// Status returns a copy of the output state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.status
	s.Outputs = append([]Output(nil), e.status.Outputs...)
	return s
}

var errBusy = errors.New("output is changing state")

func busyResult(command string) client.Result {
	return client.Result{Status: client.StatusError, Command: command, Error: errBusy.Error()}
}

// ToggleStreaming starts or stops the stream depending on the mirrored
// state. It refuses while a transition is under way.
func (e *Engine) ToggleStreaming(ctx context.Context) client.Result {
	st := e.Status().Stream
	switch {
	case st.Busy():
		return busyResult("StartStopStreaming")
	case st.Active:
		return e.caller.Call(ctx, "StopStreaming", nil)
	default:
		return e.caller.Call(ctx, "StartStreaming", nil)
	}
}

// ToggleRecording starts or stops recording.
func (e *Engine) ToggleRecording(ctx context.Context) client.Result {
	st := e.Status().Record
	switch {
	case st.Busy():
		return busyResult("StartStopRecording")
	case st.Active:
		return e.caller.Call(ctx, "StopRecording", nil)
	default:
		return e.caller.Call(ctx, "StartRecording", nil)
	}
}

// TogglePause pauses or resumes an active recording.
func (e *Engine) TogglePause(ctx context.Context) client.Result {
	st := e.Status().Record
	switch {
	case !st.Active || st.Busy():
		return client.Result{Status: client.StatusError, Command: "PauseRecording", Error: "not recording"}
	case st.Paused:
		return e.caller.Call(ctx, "ResumeRecording", nil)
	default:
		return e.caller.Call(ctx, "PauseRecording", nil)
	}
}

// ToggleVirtualCam starts or stops the virtual camera.
func (e *Engine) ToggleVirtualCam(ctx context.Context) client.Result {
	if e.Status().VirtualCam {
		return e.caller.Call(ctx, "StopVirtualCam", nil)
	}
	return e.caller.Call(ctx, "StartVirtualCam", nil)
}
