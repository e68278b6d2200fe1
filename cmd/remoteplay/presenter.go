package main

import (
	"context"
	"log/slog"
	"time"
)

// Presenter renders playback: it owns the video surface.
//
// All methods must be non-blocking. They run on the router goroutine, so a
// presenter queues work and reports outcomes later through the report callback
// it was built with (BindConfirmed, AdapterBindFailed, MediaEnded). report must
// never be called from inside a Presenter method.
type Presenter interface {
	// Run drives the presenter until ctx is canceled. It returns errPresenterClosed
	// when the user closed the presenter's window.
	Run(ctx context.Context) error

	Bind(token uint64, item MediaItem) error
	Pause() error
	Resume() error
	Stop() error
	SetMute(muted bool) error

	// RenderHeight is the last height reported by the surface, 0 if unknown.
	RenderHeight() int
	SetGeometry(width, height int) error
	ClearGeometry() error

	ShowPlaylist(visible bool, items []MediaItem, current int, serverAddr string) error
}

// HostWindow is the window chrome around the surface.
type HostWindow interface {
	Window(op WindowOp) error
}

// reportFunc delivers presenter observations to the router.
type reportFunc func(Event)

// ============================================================================
// Headless presenter
// ============================================================================
// Used with player.backend=none: binds resolve immediately, nothing renders.
// Handy on servers and for exercising the HTTP API without a display.
// ============================================================================

type headlessPresenter struct {
	logger       *slog.Logger
	report       reportFunc
	renderHeight int

	confirms chan uint64
}

func newHeadlessPresenter(renderHeight int, report reportFunc, logger *slog.Logger) *headlessPresenter {
	return &headlessPresenter{
		logger:       logger,
		report:       report,
		renderHeight: renderHeight,
		confirms:     make(chan uint64, 16),
	}
}

func (p *headlessPresenter) Run(ctx context.Context) error {
	p.logger.Info("headless presenter running", "render_height", p.renderHeight)
	for {
		select {
		case <-ctx.Done():
			return nil
		case token := <-p.confirms:
			if p.report != nil {
				p.report(BindConfirmed{Token: token, At: time.Now()})
			}
		}
	}
}

func (p *headlessPresenter) Bind(token uint64, item MediaItem) error {
	p.logger.Info("bind", "token", token, "name", item.DisplayName, "locator", item.Locator)
	select {
	case p.confirms <- token:
		return nil
	default:
		return errPresenterBusy
	}
}

func (p *headlessPresenter) Pause() error {
	p.logger.Debug("pause")
	return nil
}

func (p *headlessPresenter) Resume() error {
	p.logger.Debug("resume")
	return nil
}

func (p *headlessPresenter) Stop() error {
	p.logger.Debug("stop")
	return nil
}

func (p *headlessPresenter) SetMute(muted bool) error {
	p.logger.Debug("set mute", "muted", muted)
	return nil
}

func (p *headlessPresenter) RenderHeight() int { return p.renderHeight }

func (p *headlessPresenter) SetGeometry(width, height int) error {
	p.logger.Debug("set geometry", "width", width, "height", height)
	return nil
}

func (p *headlessPresenter) ClearGeometry() error {
	p.logger.Debug("clear geometry")
	return nil
}

func (p *headlessPresenter) ShowPlaylist(visible bool, items []MediaItem, current int, serverAddr string) error {
	p.logger.Debug("playlist overlay", "visible", visible, "items", len(items), "current", current, "server", serverAddr)
	return nil
}

func (p *headlessPresenter) Window(op WindowOp) error {
	p.logger.Debug("window", "op", op)
	return nil
}
