package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event is a decoded server-push message. Each update-type maps to exactly
// one concrete type; EventName returns that update-type.
type Event interface {
	EventName() string
}

// Event names consumed by the panel.
const (
	EventSwitchScenes                  = "SwitchScenes"
	EventPreviewSceneChanged           = "PreviewSceneChanged"
	EventScenesChanged                 = "ScenesChanged"
	EventStudioModeSwitched            = "StudioModeSwitched"
	EventSourceCreated                 = "SourceCreated"
	EventSourceDestroyed               = "SourceDestroyed"
	EventSourceRenamed                 = "SourceRenamed"
	EventSourceVolumeChanged           = "SourceVolumeChanged"
	EventSourceMuteStateChanged        = "SourceMuteStateChanged"
	EventSourceAudioMixersChanged      = "SourceAudioMixersChanged"
	EventSceneItemVisibilityChanged    = "SceneItemVisibilityChanged"
	EventSourceFilterAdded             = "SourceFilterAdded"
	EventSourceFilterRemoved           = "SourceFilterRemoved"
	EventSourceFiltersReordered        = "SourceFiltersReordered"
	EventSourceFilterVisibilityChanged = "SourceFilterVisibilityChanged"

	EventStreamStarting    = "StreamStarting"
	EventStreamStarted     = "StreamStarted"
	EventStreamStopping    = "StreamStopping"
	EventStreamStopped     = "StreamStopped"
	EventRecordingStarting = "RecordingStarting"
	EventRecordingStarted  = "RecordingStarted"
	EventRecordingStopping = "RecordingStopping"
	EventRecordingStopped  = "RecordingStopped"
	EventRecordingPaused   = "RecordingPaused"
	EventRecordingResumed  = "RecordingResumed"
	EventVirtualCamStarted = "VirtualCamStarted"
	EventVirtualCamStopped = "VirtualCamStopped"
)

// OutputEventNames lists the payload-free stream/record/virtualcam events.
var OutputEventNames = []string{
	EventStreamStarting, EventStreamStarted, EventStreamStopping, EventStreamStopped,
	EventRecordingStarting, EventRecordingStarted, EventRecordingStopping, EventRecordingStopped,
	EventRecordingPaused, EventRecordingResumed,
	EventVirtualCamStarted, EventVirtualCamStopped,
}

// ErrUnknownEvent is returned by DecodeEvent for update-types outside the
// closed set above.
var ErrUnknownEvent = errors.New("unknown event")

// SceneItemRef names a source inside a scene.
type SceneItemRef struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type SwitchScenes struct {
	SceneName string         `json:"scene-name"`
	Sources   []SceneItemRef `json:"sources"`
}

type PreviewSceneChanged struct {
	SceneName string         `json:"scene-name"`
	Sources   []SceneItemRef `json:"sources"`
}

type ScenesChanged struct{}

type StudioModeSwitched struct {
	NewState bool `json:"new-state"`
}

type SourceCreated struct {
	SourceName string `json:"sourceName"`
	SourceType string `json:"sourceType"`
	SourceKind string `json:"sourceKind"`
}

type SourceDestroyed struct {
	SourceName string `json:"sourceName"`
	SourceType string `json:"sourceType"`
	SourceKind string `json:"sourceKind"`
}

type SourceRenamed struct {
	PreviousName string `json:"previousName"`
	NewName      string `json:"newName"`
	SourceType   string `json:"sourceType"`
}

type SourceVolumeChanged struct {
	SourceName string  `json:"sourceName"`
	Volume     float64 `json:"volume"`
	VolumeDB   float64 `json:"volumeDb"`
}

type SourceMuteStateChanged struct {
	SourceName string `json:"sourceName"`
	Muted      bool   `json:"muted"`
}

// AudioMixer is one track flag in a SourceAudioMixersChanged event.
type AudioMixer struct {
	ID      int  `json:"id"`
	Enabled bool `json:"enabled"`
}

type SourceAudioMixersChanged struct {
	SourceName string       `json:"sourceName"`
	Mixers     []AudioMixer `json:"mixers"`
}

type SceneItemVisibilityChanged struct {
	SceneName   string `json:"scene-name"`
	ItemName    string `json:"item-name"`
	ItemID      int    `json:"item-id"`
	ItemVisible bool   `json:"item-visible"`
}

type SourceFilterAdded struct {
	SourceName     string         `json:"sourceName"`
	FilterName     string         `json:"filterName"`
	FilterType     string         `json:"filterType"`
	FilterSettings map[string]any `json:"filterSettings"`
}

type SourceFilterRemoved struct {
	SourceName string `json:"sourceName"`
	FilterName string `json:"filterName"`
	FilterType string `json:"filterType"`
}

// FilterRef is one entry of a SourceFiltersReordered event.
type FilterRef struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type SourceFiltersReordered struct {
	SourceName string      `json:"sourceName"`
	Filters    []FilterRef `json:"filters"`
}

type SourceFilterVisibilityChanged struct {
	SourceName    string `json:"sourceName"`
	FilterName    string `json:"filterName"`
	FilterEnabled bool   `json:"filterEnabled"`
}

// OutputEvent covers the stream, recording and virtual camera transitions,
// which carry no payload the panel uses beyond their name.
type OutputEvent struct {
	Type           string `json:"update-type"`
	StreamTimecode string `json:"stream-timecode,omitempty"`
	RecTimecode    string `json:"rec-timecode,omitempty"`
}

func (SwitchScenes) EventName() string                  { return EventSwitchScenes }
func (PreviewSceneChanged) EventName() string           { return EventPreviewSceneChanged }
func (ScenesChanged) EventName() string                 { return EventScenesChanged }
func (StudioModeSwitched) EventName() string            { return EventStudioModeSwitched }
func (SourceCreated) EventName() string                 { return EventSourceCreated }
func (SourceDestroyed) EventName() string               { return EventSourceDestroyed }
func (SourceRenamed) EventName() string                 { return EventSourceRenamed }
func (SourceVolumeChanged) EventName() string           { return EventSourceVolumeChanged }
func (SourceMuteStateChanged) EventName() string        { return EventSourceMuteStateChanged }
func (SourceAudioMixersChanged) EventName() string      { return EventSourceAudioMixersChanged }
func (SceneItemVisibilityChanged) EventName() string    { return EventSceneItemVisibilityChanged }
func (SourceFilterAdded) EventName() string             { return EventSourceFilterAdded }
func (SourceFilterRemoved) EventName() string           { return EventSourceFilterRemoved }
func (SourceFiltersReordered) EventName() string        { return EventSourceFiltersReordered }
func (SourceFilterVisibilityChanged) EventName() string { return EventSourceFilterVisibilityChanged }
func (e OutputEvent) EventName() string                 { return e.Type }

// decoders maps each update-type to a function decoding its payload.
var decoders = map[string]func([]byte) (Event, error){
	EventSwitchScenes:                  decodeAs[SwitchScenes],
	EventPreviewSceneChanged:           decodeAs[PreviewSceneChanged],
	EventScenesChanged:                 decodeAs[ScenesChanged],
	EventStudioModeSwitched:            decodeAs[StudioModeSwitched],
	EventSourceCreated:                 decodeAs[SourceCreated],
	EventSourceDestroyed:               decodeAs[SourceDestroyed],
	EventSourceRenamed:                 decodeAs[SourceRenamed],
	EventSourceVolumeChanged:           decodeAs[SourceVolumeChanged],
	EventSourceMuteStateChanged:        decodeAs[SourceMuteStateChanged],
	EventSourceAudioMixersChanged:      decodeAs[SourceAudioMixersChanged],
	EventSceneItemVisibilityChanged:    decodeAs[SceneItemVisibilityChanged],
	EventSourceFilterAdded:             decodeAs[SourceFilterAdded],
	EventSourceFilterRemoved:           decodeAs[SourceFilterRemoved],
	EventSourceFiltersReordered:        decodeAs[SourceFiltersReordered],
	EventSourceFilterVisibilityChanged: decodeAs[SourceFilterVisibilityChanged],
}

func init() {
	for _, name := range OutputEventNames {
		decoders[name] = decodeAs[OutputEvent]
	}
}

func decodeAs[E Event](data []byte) (Event, error) {
	var e E
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// DecodeEvent turns a raw push message into its typed event.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	dec, ok := decoders[env.UpdateType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.UpdateType)
	}
	ev, err := dec(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.UpdateType, err)
	}
	return ev, nil
}
