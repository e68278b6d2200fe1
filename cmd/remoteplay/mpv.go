package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// mpv presenter
// ============================================================================
// Drives an mpv window over its JSON IPC socket (--input-ipc-server).
//
// Protocol: line-delimited JSON
//   - we send:      {"command": [...], "request_id": N}
//   - mpv replies:  {"request_id": N, "error": "success", "data": ...}
//   - mpv emits:    {"event": "end-file", "reason": "eof", ...}
//
// Requests are queued and written by a single writer goroutine, so every
// Presenter method returns immediately. A loadfile reply carries the mpv
// playlist_entry_id of the new file; start-file, file-loaded and end-file are
// attributed to a bind token through that id, so events for a file that was
// already replaced never reach the new bind.
//
// Key bindings in mpv's input.conf can drive the router directly:
//   n script-message remoteplay next
//   a script-message remoteplay aspect_ratio
// ============================================================================

const (
	mpvClientMessagePrefix = "remoteplay"
	mpvOSDHeightObserverID = 1
	mpvOverlayDuration     = 24 * time.Hour
)

type MPVConfig struct {
	Binary         string
	SocketPath     string
	Spawn          bool
	Args           []string
	ConnectTimeout time.Duration
	QueueSize      int
}

type mpvRequest struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

type mpvMessage struct {
	// Replies
	RequestID int64  `json:"request_id"`
	Error     string `json:"error"`

	// Events
	Event           string          `json:"event"`
	Reason          string          `json:"reason"`
	FileError       string          `json:"file_error"`
	PlaylistEntryID int64           `json:"playlist_entry_id"`
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Data            json.RawMessage `json:"data"`
	Args            []string        `json:"args"`
}

type mpvLoadfileData struct {
	PlaylistEntryID int64 `json:"playlist_entry_id"`
}

type mpvPresenter struct {
	cfg    MPVConfig
	logger *slog.Logger

	report reportFunc // presenter observations
	local  func(Event) // key bindings (local UI)

	requests chan mpvRequest
	nextID   atomic.Int64
	height   atomic.Int64

	mu           sync.Mutex
	pendingBinds map[int64]uint64 // loadfile request_id -> bind token
	entries      map[int64]uint64 // playlist_entry_id -> bind token
	started      int64            // playlist_entry_id of the last start-file
}

func newMPVPresenter(cfg MPVConfig, report reportFunc, local func(Event), logger *slog.Logger) *mpvPresenter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &mpvPresenter{
		cfg:          cfg,
		logger:       logger,
		report:       report,
		local:        local,
		requests:     make(chan mpvRequest, cfg.QueueSize),
		pendingBinds: make(map[int64]uint64),
		entries:      make(map[int64]uint64),
	}
}

// Run optionally spawns mpv, connects to its socket and pumps requests and events
// until ctx is canceled (nil) or mpv goes away (errPresenterClosed).
func (p *mpvPresenter) Run(ctx context.Context) error {
	if p.cfg.Spawn {
		if err := p.spawn(ctx); err != nil {
			return err
		}
	}

	conn, err := p.connectWithRetry(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("connected to mpv", "socket", p.cfg.SocketPath)

	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		_ = conn.Close()
		wg.Wait()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	// Observed before any queued request so aspect changes can size correctly.
	if err := writeMPVRequest(conn, mpvRequest{
		Command:   []any{"observe_property", mpvOSDHeightObserverID, "osd-height"},
		RequestID: p.nextID.Add(1),
	}); err != nil {
		return fmt.Errorf("observe osd-height: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop(conn, done)
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.handleMessage(scanner.Bytes())
	}

	if ctx.Err() != nil {
		p.logger.Info("mpv presenter stopping (context canceled)")
		return nil
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		p.logger.Warn("mpv connection lost", "error", err)
	}
	return errPresenterClosed
}

func (p *mpvPresenter) spawn(ctx context.Context) error {
	_ = os.Remove(p.cfg.SocketPath)

	args := []string{
		"--idle=yes",
		"--force-window=yes",
		"--keep-open=no",
		"--input-ipc-server=" + p.cfg.SocketPath,
	}
	args = append(args, p.cfg.Args...)

	cmd := exec.CommandContext(ctx, p.cfg.Binary, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.cfg.Binary, err)
	}
	p.logger.Info("spawned mpv", "binary", p.cfg.Binary, "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		if ctx.Err() == nil {
			p.logger.Info("mpv exited", "error", err)
		}
	}()
	return nil
}

// connectWithRetry dials the IPC socket until it appears or ConnectTimeout elapses.
func (p *mpvPresenter) connectWithRetry(ctx context.Context) (net.Conn, error) {
	deadline := time.Now().Add(p.cfg.ConnectTimeout)
	var lastErr error
	for attempt := 1; ; attempt++ {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "unix", p.cfg.SocketPath)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("connect to mpv at %s after %d attempts: %w", p.cfg.SocketPath, attempt, lastErr)
		}
		p.logger.Debug("mpv socket not ready; retrying...", "error", err, "attempt", attempt)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (p *mpvPresenter) writeLoop(conn net.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case req := <-p.requests:
			if err := writeMPVRequest(conn, req); err != nil {
				p.logger.Warn("mpv write failed", "error", err)
				if token, ok := p.takePendingBind(req.RequestID); ok {
					p.report(AdapterBindFailed{Token: token, Err: err, At: time.Now()})
				}
				_ = conn.Close()
				return
			}
		}
	}
}

func writeMPVRequest(conn net.Conn, req mpvRequest) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	b = append(b, '\n')
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write(b)
	return err
}

func (p *mpvPresenter) handleMessage(line []byte) {
	var msg mpvMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		p.logger.Debug("mpv sent malformed line", "error", err)
		return
	}

	now := time.Now()

	if msg.Event == "" {
		token, isBind := p.takePendingBind(msg.RequestID)
		if msg.Error != "" && msg.Error != "success" {
			if isBind {
				p.report(AdapterBindFailed{Token: token, Err: fmt.Errorf("mpv loadfile: %s", msg.Error), At: now})
				return
			}
			p.logger.Warn("mpv command failed", "request_id", msg.RequestID, "error", msg.Error)
			return
		}
		if isBind {
			p.trackEntry(msg.Data, token)
		}
		return
	}

	switch msg.Event {
	case "start-file":
		p.mu.Lock()
		p.started = msg.PlaylistEntryID
		p.mu.Unlock()

	case "file-loaded":
		p.mu.Lock()
		entry := p.started
		token, ok := p.entries[entry]
		p.mu.Unlock()
		if !ok {
			p.logger.Debug("ignoring file-loaded for unknown entry", "entry", entry)
			return
		}
		p.report(BindConfirmed{Token: token, At: now})

	case "end-file":
		token, ok := p.finishEntry(msg.PlaylistEntryID)
		if !ok {
			p.logger.Debug("ignoring end-file for unknown entry", "entry", msg.PlaylistEntryID, "reason", msg.Reason)
			return
		}
		switch msg.Reason {
		case "eof":
			p.report(MediaEnded{Token: token, At: now})
		case "error":
			reason := msg.FileError
			if reason == "" {
				reason = "unknown error"
			}
			p.report(AdapterBindFailed{Token: token, Err: fmt.Errorf("mpv: %s", reason), At: now})
		}

	case "property-change":
		if msg.ID == mpvOSDHeightObserverID && len(msg.Data) > 0 {
			var h int64
			if err := json.Unmarshal(msg.Data, &h); err == nil {
				p.height.Store(h)
			}
		}

	case "client-message":
		if len(msg.Args) < 2 || msg.Args[0] != mpvClientMessagePrefix {
			return
		}
		ev, err := ParseLocalCommand(msg.Args[1:])
		if err != nil {
			p.logger.Warn("ignoring mpv key binding", "args", msg.Args, "error", err)
			return
		}
		if p.local != nil {
			p.local(ev)
		}
	}
}

func (p *mpvPresenter) takePendingBind(id int64) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	token, ok := p.pendingBinds[id]
	if ok {
		delete(p.pendingBinds, id)
	}
	return token, ok
}

// trackEntry maps the playlist entry from a successful loadfile reply to its
// bind token. mpv versions whose reply has no entry id also omit it from
// events, so both sides fall back to entry 0.
func (p *mpvPresenter) trackEntry(data json.RawMessage, token uint64) {
	var d mpvLoadfileData
	if len(data) > 0 {
		if err := json.Unmarshal(data, &d); err != nil {
			p.logger.Debug("mpv loadfile reply without entry id", "error", err)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[d.PlaylistEntryID] = token
}

func (p *mpvPresenter) finishEntry(id int64) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	token, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	return token, ok
}

// enqueue queues a command without blocking. bindToken != 0 marks a loadfile.
func (p *mpvPresenter) enqueue(bindToken uint64, command ...any) error {
	req := mpvRequest{Command: command, RequestID: p.nextID.Add(1)}

	if bindToken != 0 {
		p.mu.Lock()
		p.pendingBinds[req.RequestID] = bindToken
		p.mu.Unlock()
	}

	select {
	case p.requests <- req:
		return nil
	default:
		if bindToken != 0 {
			p.takePendingBind(req.RequestID)
		}
		return errPresenterBusy
	}
}

func (p *mpvPresenter) Bind(token uint64, item MediaItem) error {
	if err := p.enqueue(0, "set_property", "pause", false); err != nil {
		return err
	}
	return p.enqueue(token, "loadfile", item.Locator, "replace")
}

func (p *mpvPresenter) Pause() error  { return p.enqueue(0, "set_property", "pause", true) }
func (p *mpvPresenter) Resume() error { return p.enqueue(0, "set_property", "pause", false) }
func (p *mpvPresenter) Stop() error   { return p.enqueue(0, "stop") }

func (p *mpvPresenter) SetMute(muted bool) error {
	return p.enqueue(0, "set_property", "mute", muted)
}

func (p *mpvPresenter) RenderHeight() int { return int(p.height.Load()) }

func (p *mpvPresenter) SetGeometry(width, height int) error {
	return p.enqueue(0, "set_property", "video-aspect-override", fmt.Sprintf("%d:%d", width, height))
}

func (p *mpvPresenter) ClearGeometry() error {
	return p.enqueue(0, "set_property", "video-aspect-override", "no")
}

func (p *mpvPresenter) ShowPlaylist(visible bool, items []MediaItem, current int, serverAddr string) error {
	if !visible {
		return p.enqueue(0, "show-text", "", 1)
	}
	return p.enqueue(0, "show-text", formatPlaylistOverlay(items, current, serverAddr), mpvOverlayDuration.Milliseconds())
}

func (p *mpvPresenter) Window(op WindowOp) error {
	switch op {
	case WindowToggleFullscreen:
		return p.enqueue(0, "cycle", "fullscreen")
	case WindowMinimize:
		return p.enqueue(0, "set_property", "window-minimized", true)
	case WindowMaximize:
		return p.enqueue(0, "set_property", "window-maximized", true)
	case WindowToggleMaximize:
		return p.enqueue(0, "cycle", "window-maximized")
	case WindowClose:
		return p.enqueue(0, "quit")
	default:
		return fmt.Errorf("unknown window op %q", op)
	}
}

// formatPlaylistOverlay renders the idle screen: where to upload from, then the list.
func formatPlaylistOverlay(items []MediaItem, current int, serverAddr string) string {
	var b strings.Builder
	if serverAddr != "" {
		fmt.Fprintf(&b, "Send videos to http://%s\n", serverAddr)
	}
	if len(items) == 0 {
		b.WriteString("\nPlaylist is empty")
		return b.String()
	}
	b.WriteString("\n")
	for i, it := range items {
		marker := "  "
		if i == current {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%d. %s\n", marker, i+1, it.DisplayName)
	}
	return strings.TrimRight(b.String(), "\n")
}
