package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events
// ============================================================================
// Events are everything the router can reduce: user intent from the local UI,
// the remote channel and IPC, plus observations reported by the presenter.
// ============================================================================

// Event is a marker interface for all reducible inputs.
type Event interface {
	eventMarker()
}

// Source identifies which channel an event arrived on.
type Source string

const (
	SourceLocal     Source = "local"     // input devices, presenter key bindings, CLI file pick
	SourceRemote    Source = "remote"    // HTTP /control and other HTTP routes
	SourceIPC       Source = "ipc"       // unix socket clients
	SourcePresenter Source = "presenter" // adapter observations
	SourceStore     Source = "store"     // media arrivals (upload or folder watch)
)

// TimedEvent is what actually travels through the router queue.
type TimedEvent struct {
	Event  Event
	Source Source
	At     time.Time
}

// ============================================================================
// Transport intents
// ============================================================================

type Play struct{}
type Pause struct{}
type PauseResume struct{}
type Stop struct{}
type Next struct{}
type Previous struct{}

func (Play) eventMarker()        {}
func (Pause) eventMarker()       {}
func (PauseResume) eventMarker() {}
func (Stop) eventMarker()        {}
func (Next) eventMarker()        {}
func (Previous) eventMarker()    {}

// Load selects an index and starts playing it.
type Load struct {
	Index int `json:"index"`
}

func (Load) eventMarker() {}

// RemoveMedia drops one playlist entry.
type RemoveMedia struct {
	Index int `json:"index"`
}

func (RemoveMedia) eventMarker() {}

// MediaArrived is a new file reported by the media store source provider.
// With Autoplay it reduces as append followed by load(last).
type MediaArrived struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	Autoplay bool   `json:"autoplay"`
}

func (MediaArrived) eventMarker() {}

// PickFiles replaces the playlist with a local selection and plays the first entry.
type PickFiles struct {
	Paths []string `json:"paths"`
}

func (PickFiles) eventMarker() {}

// ============================================================================
// Presentation intents
// ============================================================================

type ToggleMute struct{}
type ToggleFullscreen struct{}
type ExitFullscreen struct{}
type CycleAspectRatio struct{}
type Exit struct{}

func (ToggleMute) eventMarker()       {}
func (ToggleFullscreen) eventMarker() {}
func (ExitFullscreen) eventMarker()   {}
func (CycleAspectRatio) eventMarker() {}
func (Exit) eventMarker()             {}

// SetAspectRatio selects a mode by name ("Default", "16:9", ...).
type SetAspectRatio struct {
	Mode string `json:"mode"`
}

func (SetAspectRatio) eventMarker() {}

// WindowOp is a host window chrome operation.
type WindowOp string

const (
	WindowToggleFullscreen WindowOp = "toggle-fullscreen"
	WindowMinimize         WindowOp = "minimize-window"
	WindowMaximize         WindowOp = "maximize-window"
	WindowToggleMaximize   WindowOp = "toggle-maximize"
	WindowClose            WindowOp = "close-window"
)

func (op WindowOp) Valid() bool {
	switch op {
	case WindowToggleFullscreen, WindowMinimize, WindowMaximize, WindowToggleMaximize, WindowClose:
		return true
	}
	return false
}

// WindowCommand is passed straight through to the host window. It never touches player state.
type WindowCommand struct {
	Op WindowOp `json:"op"`
}

func (WindowCommand) eventMarker() {}

// ============================================================================
// Presenter observations
// ============================================================================

// BindConfirmed resolves a bind token successfully.
type BindConfirmed struct {
	Token uint64
	At    time.Time
}

func (BindConfirmed) eventMarker() {}

// AdapterBindFailed resolves a bind token with an error. A matching token forces Stopped.
type AdapterBindFailed struct {
	Token uint64
	Err   error
	At    time.Time
}

func (AdapterBindFailed) eventMarker() {}

// MediaEnded reports natural end of the media bound under Token.
type MediaEnded struct {
	Token uint64
	At    time.Time
}

func (MediaEnded) eventMarker() {}

// ============================================================================
// Internal requests
// ============================================================================

// RequestStateSnapshot asks the router to publish a snapshot on Reply.
// Reply should be buffered (size 1); the router never blocks on it.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps events for IPC. Since Go doesn't have union types, we use
// a type discriminator. Presenter observations and internal requests have no
// wire form.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return decodeEnvelope(env)
}

func decodeEnvelope(env EventEnvelope) (Event, error) {
	if ev, ok := simpleEvents[env.Type]; ok {
		return ev, nil
	}

	switch env.Type {
	case "load":
		return decodeData[Load](env)
	case "remove":
		return decodeData[RemoveMedia](env)
	case "media_arrived":
		return decodeData[MediaArrived](env)
	case "pick_files":
		return decodeData[PickFiles](env)
	case "set_aspect_ratio":
		return decodeData[SetAspectRatio](env)
	case "window":
		ev, err := decodeData[WindowCommand](env)
		if err != nil {
			return nil, err
		}
		if op := ev.(WindowCommand).Op; !op.Valid() {
			return nil, fmt.Errorf("unknown window op: %q", op)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

func decodeData[T Event](env EventEnvelope) (Event, error) {
	var v T
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("event %q requires data", env.Type)
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return v, nil
}

// simpleEvents are payload-free events keyed by their wire type. The transport
// and presentation names double as the remote command vocabulary.
var simpleEvents = map[string]Event{
	"play":            Play{},
	"pause":           Pause{},
	"pause_resume":    PauseResume{},
	"stop":            Stop{},
	"next":            Next{},
	"previous":        Previous{},
	"mute_unmute":     ToggleMute{},
	"fullscreen":      ToggleFullscreen{},
	"exit_fullscreen": ExitFullscreen{},
	"aspect_ratio":    CycleAspectRatio{},
	"exit":            Exit{},
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	for name, ev := range simpleEvents {
		if ev == e {
			env.Type = name
			return json.Marshal(env)
		}
	}

	switch e.(type) {
	case Load:
		env.Type = "load"
	case RemoveMedia:
		env.Type = "remove"
	case MediaArrived:
		env.Type = "media_arrived"
	case PickFiles:
		env.Type = "pick_files"
	case SetAspectRatio:
		env.Type = "set_aspect_ratio"
	case WindowCommand:
		env.Type = "window"
	default:
		return nil, fmt.Errorf("event has no wire form: %T", e)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", e, err)
	}
	env.Data = data
	return json.Marshal(env)
}
