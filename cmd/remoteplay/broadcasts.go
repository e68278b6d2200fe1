package main

import "time"

// StateBroadcast is a reducer-emitted notification describing a state change.
// Observers (WS hub, metrics) receive these after each reduction.
type StateBroadcast interface {
	broadcastMarker()
}

type BroadcastStatusChanged struct {
	Status       PlaybackStatus
	CurrentIndex int
	Current      *MediaItem
	At           time.Time
}

func (BroadcastStatusChanged) broadcastMarker() {}

type BroadcastPlaylistChanged struct {
	Items        []MediaItem
	CurrentIndex int
	At           time.Time
}

func (BroadcastPlaylistChanged) broadcastMarker() {}

type BroadcastMuteChanged struct {
	Muted bool
	At    time.Time
}

func (BroadcastMuteChanged) broadcastMarker() {}

type BroadcastAspectChanged struct {
	Mode string
	At   time.Time
}

func (BroadcastAspectChanged) broadcastMarker() {}

type BroadcastLayoutChanged struct {
	ListVisible     bool
	ControlsVisible bool
	Fullscreen      bool
	At              time.Time
}

func (BroadcastLayoutChanged) broadcastMarker() {}

// ErrorKind labels user-facing error notifications.
type ErrorKind string

const (
	ErrorKindAdapterBind ErrorKind = "adapter_bind"
)

type BroadcastError struct {
	Kind    ErrorKind
	Message string
	At      time.Time
}

func (BroadcastError) broadcastMarker() {}
