package main

import (
	"path/filepath"

	"github.com/google/uuid"
)

// MediaItem is an immutable reference to something the presenter can play.
// Locator is opaque to the controller (a local path or a network URI).
type MediaItem struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Locator     string `json:"locator"`
}

// NewMediaItem creates an item with a fresh ID. An empty name falls back to
// the base name of the locator.
func NewMediaItem(displayName, locator string) MediaItem {
	if displayName == "" {
		displayName = filepath.Base(locator)
	}
	return MediaItem{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Locator:     locator,
	}
}

// ============================================================================
// Playlist
// ============================================================================
//
// Ordered items plus a cursor. The cursor is -1 when nothing is selected,
// otherwise a valid index. Duplicates are allowed and told apart by ID.
//
// A Playlist is not safe for concurrent use; it lives inside PlayerState and is
// only touched by the router goroutine.
// ============================================================================

type Playlist struct {
	items   []MediaItem
	current int
}

func NewPlaylist(items ...MediaItem) *Playlist {
	p := &Playlist{current: -1}
	for _, it := range items {
		p.Append(it)
	}
	return p
}

func (p *Playlist) Len() int { return len(p.items) }

func (p *Playlist) CurrentIndex() int { return p.current }

// Items returns a copy of the sequence.
func (p *Playlist) Items() []MediaItem {
	out := make([]MediaItem, len(p.items))
	copy(out, p.items)
	return out
}

// Current returns the selected item, or false when the cursor is -1.
func (p *Playlist) Current() (MediaItem, bool) {
	if p.current < 0 || p.current >= len(p.items) {
		return MediaItem{}, false
	}
	return p.items[p.current], true
}

func (p *Playlist) At(index int) (MediaItem, error) {
	if index < 0 || index >= len(p.items) {
		return MediaItem{}, &IndexError{Index: index, Len: len(p.items)}
	}
	return p.items[index], nil
}

// Append adds item at the end. The first item appended to an empty playlist
// becomes current.
func (p *Playlist) Append(item MediaItem) int {
	p.items = append(p.items, item)
	if p.current < 0 {
		p.current = 0
	}
	return len(p.items) - 1
}

// Replace swaps the whole sequence, selecting index 0 (or -1 if empty).
func (p *Playlist) Replace(items []MediaItem) {
	p.items = append(p.items[:0:0], items...)
	p.current = -1
	if len(p.items) > 0 {
		p.current = 0
	}
}

// Select moves the cursor to index.
func (p *Playlist) Select(index int) error {
	if index < 0 || index >= len(p.items) {
		return &IndexError{Index: index, Len: len(p.items)}
	}
	p.current = index
	return nil
}

// RemoveAt deletes the item at index.
//
// Cursor rules:
//   - removing before the cursor shifts it down so it keeps pointing at the same item
//   - removing the current item selects the item that slid into its slot,
//     wrapping to 0 when the last item was removed
//   - an empty playlist has cursor -1
func (p *Playlist) RemoveAt(index int) (MediaItem, error) {
	if index < 0 || index >= len(p.items) {
		return MediaItem{}, &IndexError{Index: index, Len: len(p.items)}
	}

	removed := p.items[index]
	p.items = append(p.items[:index], p.items[index+1:]...)

	switch {
	case len(p.items) == 0:
		p.current = -1
	case index < p.current:
		p.current--
	case index == p.current && p.current >= len(p.items):
		p.current = 0
	}

	return removed, nil
}

// Next advances the cursor with wrap-around and returns the new index.
func (p *Playlist) Next() (int, error) {
	n := len(p.items)
	if n == 0 {
		return -1, ErrEmptyPlaylist
	}
	if p.current < 0 {
		p.current = 0
		return p.current, nil
	}
	p.current = (p.current + 1) % n
	return p.current, nil
}

// Previous moves the cursor back with wrap-around and returns the new index.
func (p *Playlist) Previous() (int, error) {
	n := len(p.items)
	if n == 0 {
		return -1, ErrEmptyPlaylist
	}
	if p.current < 0 {
		p.current = n - 1
		return p.current, nil
	}
	p.current = (p.current - 1 + n) % n
	return p.current, nil
}
