package main

import "time"

// PlaybackStatus is the controller's state machine position.
type PlaybackStatus string

const (
	StatusIdle    PlaybackStatus = "idle"
	StatusLoading PlaybackStatus = "loading"
	StatusPlaying PlaybackStatus = "playing"
	StatusPaused  PlaybackStatus = "paused"
	StatusStopped PlaybackStatus = "stopped"
)

var allStatuses = []PlaybackStatus{StatusIdle, StatusLoading, StatusPlaying, StatusPaused, StatusStopped}

// PlayerState is the router-owned state container.
//
// Only the router goroutine reads or writes it. Other goroutines get a
// StateSnapshot through RequestStateSnapshot.
type PlayerState struct {
	Status   PlaybackStatus
	Playlist *Playlist

	Muted       bool
	AspectIndex int

	// Layout: the playlist shows whenever nothing is playing; controls hide in fullscreen.
	ListVisible bool
	Fullscreen  bool

	// Bind tracks the latest bind request. Tokens increase monotonically;
	// presenter reports carrying an older token are stale.
	Bind BindState

	LastError   string
	LastErrorAt time.Time

	// ServerAddr is the LAN address shown to users so they can reach the HTTP API.
	ServerAddr string
}

// BindState is the most recent source bind issued to the presenter.
type BindState struct {
	Token     uint64
	Item      MediaItem
	Confirmed bool
	At        time.Time
}

func NewPlayerState(serverAddr string) *PlayerState {
	return &PlayerState{
		Status:      StatusIdle,
		Playlist:    NewPlaylist(),
		ListVisible: true,
		ServerAddr:  serverAddr,
	}
}

func (s *PlayerState) Aspect() AspectRatio { return aspectAt(s.AspectIndex) }

func (s *PlayerState) ControlsVisible() bool { return !s.Fullscreen }

// StateSnapshot is a read-only view of PlayerState safe to hand to other goroutines.
type StateSnapshot struct {
	Status          PlaybackStatus `json:"status"`
	CurrentIndex    int            `json:"current_index"`
	Current         *MediaItem     `json:"current,omitempty"`
	Items           []MediaItem    `json:"items"`
	Muted           bool           `json:"muted"`
	AspectRatio     string         `json:"aspect_ratio"`
	ListVisible     bool           `json:"list_visible"`
	ControlsVisible bool           `json:"controls_visible"`
	Fullscreen      bool           `json:"fullscreen"`
	LastError       string         `json:"last_error,omitempty"`
	ServerAddr      string         `json:"server_addr,omitempty"`
	At              time.Time      `json:"at"`
}

func (s *PlayerState) Snapshot(now time.Time) StateSnapshot {
	snap := StateSnapshot{
		Status:          s.Status,
		CurrentIndex:    s.Playlist.CurrentIndex(),
		Items:           s.Playlist.Items(),
		Muted:           s.Muted,
		AspectRatio:     s.Aspect().Name,
		ListVisible:     s.ListVisible,
		ControlsVisible: s.ControlsVisible(),
		Fullscreen:      s.Fullscreen,
		LastError:       s.LastError,
		ServerAddr:      s.ServerAddr,
		At:              now,
	}
	if cur, ok := s.Playlist.Current(); ok {
		snap.Current = &cur
	}
	return snap
}
