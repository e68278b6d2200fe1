package main

import (
	"log/slog"
	"time"
)

// effectTargets are the external collaborators commands act on.
type effectTargets struct {
	Presenter Presenter
	Window    HostWindow

	// Shutdown cancels the process context. Called for CmdExit.
	Shutdown func()
}

// runEffect executes a single reducer-emitted Command against the presenter or
// host window and reports synchronous failures via onEvent.
//
// Design rules:
// - This function may call into collaborators, which must not block.
// - It must never call Reduce() directly; it only emits Events to be reduced by the router loop.
func runEffect(
	t effectTargets,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		return
	}

	switch c := cmd.(type) {
	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			return
		}
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("snapshot reply channel full, dropping")
		}
		return

	case CmdExit:
		if t.Window != nil {
			if err := t.Window.Window(WindowClose); err != nil {
				logger.Warn("close window failed", "error", err)
			}
		}
		if t.Shutdown != nil {
			t.Shutdown()
		}
		return

	case CmdWindow:
		if t.Window == nil {
			logger.Debug("no host window, dropping", "cmd", c.String())
			return
		}
		if err := t.Window.Window(c.Op); err != nil {
			logger.Warn("window op failed", "op", c.Op, "error", err)
		}
		return
	}

	p := t.Presenter
	if p == nil {
		if b, ok := cmd.(CmdBind); ok {
			onEvent(AdapterBindFailed{Token: b.Token, Err: errNoPresenter, At: time.Now()})
		}
		return
	}

	var err error
	switch c := cmd.(type) {
	case CmdBind:
		if err = p.Bind(c.Token, c.Item); err != nil {
			// Resolve the token now; the reducer forces Stopped.
			onEvent(AdapterBindFailed{Token: c.Token, Err: err, At: time.Now()})
		}
	case CmdPause:
		err = p.Pause()
	case CmdResume:
		err = p.Resume()
	case CmdStop:
		err = p.Stop()
	case CmdSetMute:
		err = p.SetMute(c.Muted)
	case CmdApplyAspect:
		if c.Ratio.IsDefault() {
			err = p.ClearGeometry()
			break
		}
		width, height, ok := c.Ratio.Geometry(p.RenderHeight())
		if !ok {
			logger.Warn("render height unknown, aspect not applied", "mode", c.Ratio.Name)
			return
		}
		err = p.SetGeometry(width, height)
	case CmdShowPlaylist:
		err = p.ShowPlaylist(c.Visible, c.Items, c.Current, c.ServerAddr)
	default:
		logger.Warn("unknown command", "cmd", cmd.String())
		return
	}

	if err != nil {
		presenterFailures.WithLabelValues(commandLabel(cmd)).Inc()
		logger.Warn("presenter command failed", "cmd", cmd.String(), "error", err)
	}
}
