package main

import (
	"errors"
	"fmt"
)

// ============================================================================
// Error taxonomy
// ============================================================================
//
// Every failure inside the dispatch path is converted into one of these kinds.
// None of them is fatal to the router loop.
//
//   IndexError          bad playlist index (guarded at call sites, logged at warn)
//   ErrEmptyPlaylist    navigation on an empty playlist (command becomes a no-op)
//   AdapterBindError    presenter could not load/play an item (forces Stopped)
//   StoreIOError        media directory failure (HTTP error response only)
//   UnknownCommandError unrecognized remote tag (logged and dropped)
// ============================================================================

var (
	ErrIndexOutOfRange = errors.New("playlist index out of range")
	ErrEmptyPlaylist   = errors.New("playlist is empty")

	errQueueFull       = errors.New("command queue full")
	errNoPresenter     = errors.New("presenter not connected")
	errPresenterBusy   = errors.New("presenter request queue full")
	errPresenterClosed = errors.New("presenter closed")
)

// IndexError reports an index outside [0, Len).
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("playlist index %d out of range [0,%d)", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// AdapterBindError is reported when the presenter fails to bind a source.
type AdapterBindError struct {
	Token   uint64
	Locator string
	Err     error
}

func (e *AdapterBindError) Error() string {
	if e.Locator == "" {
		return fmt.Sprintf("bind %d failed: %v", e.Token, e.Err)
	}
	return fmt.Sprintf("bind %q failed: %v", e.Locator, e.Err)
}

func (e *AdapterBindError) Unwrap() error { return e.Err }

// StoreIOError wraps a filesystem failure in the media store.
type StoreIOError struct {
	Op   string // "save", "list", "delete"
	Name string
	Err  error
}

func (e *StoreIOError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("media store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("media store %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// UnknownCommandError is returned by ParseRemoteCommand for tags outside the vocabulary.
type UnknownCommandError struct {
	Tag string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command: %q", e.Tag)
}
