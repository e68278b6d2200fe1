package main

import (
	"fmt"
	"time"
)

// This file is the playback controller.
//
//   - Events: inputs (user intent from any source, presenter observations)
//   - Commands: side effects requested by the reducer (presenter and window calls)
//   - Reduce(): computes next state + commands, without performing I/O
//
// The router loop is responsible for executing Commands and feeding presenter
// observations back as Events.
//
// Transition summary:
//
//	any            load(i)        -> Loading -> Playing   bind item i, hide playlist
//	Playing        pause          -> Paused
//	Paused         play           -> Playing
//	Idle/Stopped   play           -> Loading -> Playing   reload current (no-op if empty)
//	any            stop           -> Stopped              reset + unbind, show playlist
//	Playing/Paused next/previous  -> Loading -> Playing   wrap-around
//	Playing        media ended    -> as next
//	any            bind failed    -> Stopped              (matching token only)

// ReduceResult is the output of a reduction step.
type ReduceResult struct {
	State      *PlayerState
	Commands   []Command
	Broadcasts []StateBroadcast

	// Notices are recovered failures (IndexError, ErrEmptyPlaylist,
	// AdapterBindError). They never abort the reduction; the router logs them.
	Notices []error
}

// Reduce applies ev to s in place and returns the resulting commands and broadcasts.
func Reduce(s *PlayerState, ev Event, now time.Time) ReduceResult {
	r := &reduction{s: s, now: now}
	r.apply(ev)
	return ReduceResult{
		State:      s,
		Commands:   r.cmds,
		Broadcasts: r.bcasts,
		Notices:    r.notices,
	}
}

type reduction struct {
	s   *PlayerState
	now time.Time

	cmds    []Command
	bcasts  []StateBroadcast
	notices []error
}

func (r *reduction) apply(ev Event) {
	switch e := ev.(type) {
	case Load:
		r.load(e.Index)
	case Play:
		r.play()
	case Pause:
		r.pause()
	case PauseResume:
		switch r.s.Status {
		case StatusPlaying:
			r.pause()
		default:
			r.play()
		}
	case Stop:
		r.stop()
	case Next:
		r.step(r.s.Playlist.Next, "next")
	case Previous:
		r.step(r.s.Playlist.Previous, "previous")

	case ToggleMute:
		r.s.Muted = !r.s.Muted
		r.cmd(CmdSetMute{Muted: r.s.Muted})
		r.broadcast(BroadcastMuteChanged{Muted: r.s.Muted, At: r.now})
	case SetAspectRatio:
		idx, err := ParseAspectRatio(e.Mode)
		if err != nil {
			r.notice(err)
			return
		}
		r.applyAspect(idx)
	case CycleAspectRatio:
		r.applyAspect(nextAspectIndex(r.s.AspectIndex))
	case ToggleFullscreen:
		r.setFullscreen(!r.s.Fullscreen)
	case ExitFullscreen:
		r.setFullscreen(false)
	case WindowCommand:
		r.cmd(CmdWindow{Op: e.Op})
	case Exit:
		r.cmd(CmdExit{})

	case MediaArrived:
		idx := r.s.Playlist.Append(NewMediaItem(e.FileName, e.FilePath))
		r.playlistChanged()
		if e.Autoplay {
			r.load(idx)
		}
	case PickFiles:
		if len(e.Paths) == 0 {
			r.notice(fmt.Errorf("pick files: %w", ErrEmptyPlaylist))
			return
		}
		items := make([]MediaItem, 0, len(e.Paths))
		for _, p := range e.Paths {
			items = append(items, NewMediaItem("", p))
		}
		r.s.Playlist.Replace(items)
		r.playlistChanged()
		r.load(0)
	case RemoveMedia:
		r.remove(e.Index)

	case BindConfirmed:
		if e.Token == r.s.Bind.Token {
			r.s.Bind.Confirmed = true
		}
	case AdapterBindFailed:
		r.bindFailed(e)
	case MediaEnded:
		if e.Token == r.s.Bind.Token && r.s.Status == StatusPlaying {
			r.step(r.s.Playlist.Next, "next")
		}

	case RequestStateSnapshot:
		r.cmd(CmdPublishStateSnapshot{Snapshot: r.s.Snapshot(r.now), Reply: e.Reply})

	default:
		r.notice(fmt.Errorf("unhandled event %T", ev))
	}
}

func (r *reduction) cmd(c Command)              { r.cmds = append(r.cmds, c) }
func (r *reduction) broadcast(b StateBroadcast) { r.bcasts = append(r.bcasts, b) }
func (r *reduction) notice(err error)           { r.notices = append(r.notices, err) }

func (r *reduction) current() (MediaItem, bool) { return r.s.Playlist.Current() }

// active reports whether a source is bound (or being bound).
func (r *reduction) active() bool {
	switch r.s.Status {
	case StatusPlaying, StatusPaused, StatusLoading:
		return true
	}
	return false
}

func (r *reduction) setStatus(st PlaybackStatus) {
	if r.s.Status == st {
		return
	}
	r.s.Status = st
	b := BroadcastStatusChanged{Status: st, CurrentIndex: r.s.Playlist.CurrentIndex(), At: r.now}
	if cur, ok := r.current(); ok {
		b.Current = &cur
	}
	r.broadcast(b)
}

func (r *reduction) load(index int) {
	item, err := r.s.Playlist.At(index)
	if err != nil {
		r.notice(fmt.Errorf("load: %w", err))
		return
	}
	_ = r.s.Playlist.Select(index)

	r.s.Bind = BindState{Token: r.s.Bind.Token + 1, Item: item, At: r.now}
	r.s.LastError = ""
	r.setListVisible(false)

	// Optimistic: Playing is entered without waiting for the presenter.
	r.setStatus(StatusLoading)
	r.cmd(CmdBind{Token: r.s.Bind.Token, Item: item})
	r.setStatus(StatusPlaying)
}

func (r *reduction) play() {
	switch r.s.Status {
	case StatusPaused:
		r.cmd(CmdResume{})
		r.setStatus(StatusPlaying)
	case StatusIdle, StatusStopped:
		if _, ok := r.current(); !ok {
			r.notice(fmt.Errorf("play: %w", ErrEmptyPlaylist))
			return
		}
		r.load(r.s.Playlist.CurrentIndex())
	}
}

func (r *reduction) pause() {
	if r.s.Status != StatusPlaying {
		return
	}
	r.cmd(CmdPause{})
	r.setStatus(StatusPaused)
}

func (r *reduction) stop() {
	// Retire the current token so late presenter reports are ignored.
	r.s.Bind = BindState{Token: r.s.Bind.Token + 1, At: r.now}
	r.cmd(CmdStop{})
	r.setStatus(StatusStopped)
	r.setListVisible(true)
}

// step moves the cursor with move. Only an active player loads the new item;
// otherwise the selection changes and the list is refreshed.
func (r *reduction) step(move func() (int, error), name string) {
	wasActive := r.active()
	idx, err := move()
	if err != nil {
		r.notice(fmt.Errorf("%s: %w", name, err))
		return
	}
	if wasActive {
		r.load(idx)
		return
	}
	r.playlistChanged()
}

func (r *reduction) remove(index int) {
	wasCurrent := index == r.s.Playlist.CurrentIndex()
	if _, err := r.s.Playlist.RemoveAt(index); err != nil {
		r.notice(fmt.Errorf("remove: %w", err))
		return
	}
	r.playlistChanged()

	if !wasCurrent || !r.active() {
		return
	}
	if r.s.Playlist.Len() == 0 {
		r.stop()
		return
	}
	r.load(r.s.Playlist.CurrentIndex())
}

func (r *reduction) bindFailed(e AdapterBindFailed) {
	if e.Token != r.s.Bind.Token {
		return
	}
	bindErr := &AdapterBindError{Token: e.Token, Locator: r.s.Bind.Item.Locator, Err: e.Err}
	r.stop()
	r.s.LastError = bindErr.Error()
	r.s.LastErrorAt = r.now
	r.broadcast(BroadcastError{Kind: ErrorKindAdapterBind, Message: r.s.LastError, At: r.now})
	r.notice(bindErr)
}

func (r *reduction) applyAspect(index int) {
	r.s.AspectIndex = index
	ratio := r.s.Aspect()
	r.cmd(CmdApplyAspect{Ratio: ratio})
	r.broadcast(BroadcastAspectChanged{Mode: ratio.Name, At: r.now})
}

func (r *reduction) setFullscreen(on bool) {
	if r.s.Fullscreen == on {
		return
	}
	r.s.Fullscreen = on
	r.cmd(CmdWindow{Op: WindowToggleFullscreen})
	r.broadcastLayout()
}

func (r *reduction) setListVisible(visible bool) {
	if r.s.ListVisible == visible {
		return
	}
	r.s.ListVisible = visible
	r.cmd(r.playlistOverlay())
	r.broadcastLayout()
}

func (r *reduction) playlistChanged() {
	r.broadcast(BroadcastPlaylistChanged{
		Items:        r.s.Playlist.Items(),
		CurrentIndex: r.s.Playlist.CurrentIndex(),
		At:           r.now,
	})
	if r.s.ListVisible {
		r.cmd(r.playlistOverlay())
	}
}

func (r *reduction) playlistOverlay() CmdShowPlaylist {
	return CmdShowPlaylist{
		Visible:    r.s.ListVisible,
		Items:      r.s.Playlist.Items(),
		Current:    r.s.Playlist.CurrentIndex(),
		ServerAddr: r.s.ServerAddr,
	}
}

func (r *reduction) broadcastLayout() {
	r.broadcast(BroadcastLayoutChanged{
		ListVisible:     r.s.ListVisible,
		ControlsVisible: r.s.ControlsVisible(),
		Fullscreen:      r.s.Fullscreen,
		At:              r.now,
	})
}
