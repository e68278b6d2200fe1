package main

import "fmt"

// ==============================
// Commands (side effects)
// ==============================

// Command represents a presenter or process side effect executed by the router
// loop (see effects.go). The reducer only ever returns commands; it never runs them.
type Command interface {
	commandMarker()
	String() string
}

// CmdBind asks the presenter to attach Item as the playing source. The presenter
// must resolve Token with BindConfirmed or AdapterBindFailed.
type CmdBind struct {
	Token uint64
	Item  MediaItem
}

func (CmdBind) commandMarker() {}
func (c CmdBind) String() string {
	return fmt.Sprintf("CmdBind(token=%d, locator=%q)", c.Token, c.Item.Locator)
}

type CmdPause struct{}

func (CmdPause) commandMarker() {}
func (CmdPause) String() string { return "CmdPause()" }

type CmdResume struct{}

func (CmdResume) commandMarker() {}
func (CmdResume) String() string { return "CmdResume()" }

// CmdStop resets position to 0 and clears the bound source.
type CmdStop struct{}

func (CmdStop) commandMarker() {}
func (CmdStop) String() string { return "CmdStop()" }

type CmdSetMute struct {
	Muted bool
}

func (CmdSetMute) commandMarker()   {}
func (c CmdSetMute) String() string { return fmt.Sprintf("CmdSetMute(muted=%v)", c.Muted) }

// CmdApplyAspect makes the presenter recompute render geometry for Ratio.
type CmdApplyAspect struct {
	Ratio AspectRatio
}

func (CmdApplyAspect) commandMarker() {}
func (c CmdApplyAspect) String() string {
	return fmt.Sprintf("CmdApplyAspect(mode=%s)", c.Ratio.Name)
}

// CmdShowPlaylist toggles the playlist overlay.
type CmdShowPlaylist struct {
	Visible    bool
	Items      []MediaItem
	Current    int
	ServerAddr string
}

func (CmdShowPlaylist) commandMarker() {}
func (c CmdShowPlaylist) String() string {
	return fmt.Sprintf("CmdShowPlaylist(visible=%v, items=%d)", c.Visible, len(c.Items))
}

// CmdWindow forwards a window chrome operation to the host window.
type CmdWindow struct {
	Op WindowOp
}

func (CmdWindow) commandMarker()   {}
func (c CmdWindow) String() string { return fmt.Sprintf("CmdWindow(op=%s)", c.Op) }

// CmdPublishStateSnapshot answers a RequestStateSnapshot.
type CmdPublishStateSnapshot struct {
	Snapshot StateSnapshot
	Reply    chan StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// CmdExit closes the host window and shuts the process down.
type CmdExit struct{}

func (CmdExit) commandMarker() {}
func (CmdExit) String() string { return "CmdExit()" }
