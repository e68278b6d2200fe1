package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingPresenter records every call. bindErr, when set, is returned from Bind.
type recordingPresenter struct {
	mu      sync.Mutex
	calls   []string
	binds   []MediaItem
	ops     []WindowOp
	height  int
	bindErr error
}

func (p *recordingPresenter) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *recordingPresenter) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *recordingPresenter) Binds() []MediaItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]MediaItem(nil), p.binds...)
}

func (p *recordingPresenter) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (p *recordingPresenter) Bind(token uint64, item MediaItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "bind")
	if p.bindErr != nil {
		return p.bindErr
	}
	p.binds = append(p.binds, item)
	return nil
}

func (p *recordingPresenter) Pause() error             { p.record("pause"); return nil }
func (p *recordingPresenter) Resume() error            { p.record("resume"); return nil }
func (p *recordingPresenter) Stop() error              { p.record("stop"); return nil }
func (p *recordingPresenter) SetMute(muted bool) error { p.record(fmt.Sprintf("mute=%v", muted)); return nil }
func (p *recordingPresenter) RenderHeight() int        { return p.height }

func (p *recordingPresenter) SetGeometry(width, height int) error {
	p.record(fmt.Sprintf("geometry=%dx%d", width, height))
	return nil
}

func (p *recordingPresenter) ClearGeometry() error { p.record("geometry=clear"); return nil }

func (p *recordingPresenter) ShowPlaylist(visible bool, items []MediaItem, current int, serverAddr string) error {
	p.record(fmt.Sprintf("overlay=%v", visible))
	return nil
}

func (p *recordingPresenter) Window(op WindowOp) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
	return nil
}

// recordingObserver collects broadcasts.
type recordingObserver struct {
	mu  sync.Mutex
	got []StateBroadcast
}

func (o *recordingObserver) Observe(b StateBroadcast) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, b)
}

func (o *recordingObserver) errors() []BroadcastError {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []BroadcastError
	for _, b := range o.got {
		if e, ok := b.(BroadcastError); ok {
			out = append(out, e)
		}
	}
	return out
}

type routerHarness struct {
	router    *Router
	presenter *recordingPresenter
	observer  *recordingObserver
	cancel    context.CancelFunc
	done      chan struct{}
	shutdown  chan struct{}
}

func startRouter(t *testing.T, presenter *recordingPresenter) *routerHarness {
	t.Helper()

	obs := &recordingObserver{}
	h := &routerHarness{
		router:    NewRouter(RouterConfig{QueueSize: 16}, discardLogger(), obs),
		presenter: presenter,
		observer:  obs,
		done:      make(chan struct{}),
		shutdown:  make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	var once sync.Once
	targets := effectTargets{
		Shutdown: func() { once.Do(func() { close(h.shutdown) }) },
	}
	if presenter != nil {
		targets.Presenter = presenter
		targets.Window = presenter
	}

	go func() {
		defer close(h.done)
		h.router.Run(ctx, NewPlayerState("10.0.0.2:3000"), targets)
	}()

	t.Cleanup(h.stop)
	return h
}

func (h *routerHarness) stop() {
	h.cancel()
	<-h.done
}

func (h *routerHarness) snapshot(t *testing.T) StateSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := h.router.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func TestRouter_UploadArrivalStartsPlayback(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingPresenter{}
	h := startRouter(t, p)
	ctx := context.Background()

	if err := h.router.Submit(ctx, SourceStore, MediaArrived{FileName: "clip.mp4", FilePath: "/media/clip.mp4", Autoplay: true}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := h.snapshot(t)
	if snap.Status != StatusPlaying || len(snap.Items) != 1 || snap.CurrentIndex != 0 {
		t.Fatalf("snapshot after upload: %+v", snap)
	}
	if binds := p.Binds(); len(binds) != 1 || binds[0].Locator != "/media/clip.mp4" {
		t.Fatalf("presenter binds: %+v", binds)
	}

	h.stop()
}

func TestRouter_UnknownRemoteCommandDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := startRouter(t, &recordingPresenter{})
	before := h.snapshot(t)

	dispatched, err := h.router.DispatchRemote(context.Background(), "dance")
	if err != nil || dispatched {
		t.Fatalf("DispatchRemote(dance) = (%v, %v), want (false, nil)", dispatched, err)
	}

	after := h.snapshot(t)
	if after.Status != before.Status || len(after.Items) != len(before.Items) {
		t.Fatalf("state changed: before=%+v after=%+v", before, after)
	}

	h.stop()
}

func TestRouter_RemotePlayOnEmptyPlaylist(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingPresenter{}
	h := startRouter(t, p)

	dispatched, err := h.router.DispatchRemote(context.Background(), "play")
	if err != nil || !dispatched {
		t.Fatalf("DispatchRemote(play) = (%v, %v)", dispatched, err)
	}
	if snap := h.snapshot(t); snap.Status != StatusIdle {
		t.Fatalf("status=%s, want idle", snap.Status)
	}
	if len(p.Calls()) != 0 {
		t.Fatalf("presenter called: %v", p.Calls())
	}

	h.stop()
}

func TestRouter_SynchronousBindFailureStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingPresenter{bindErr: errPresenterBusy}
	h := startRouter(t, p)

	_ = h.router.Submit(context.Background(), SourceLocal, PickFiles{Paths: []string{"/v/broken.mkv"}})

	snap := h.snapshot(t)
	if snap.Status != StatusStopped {
		t.Fatalf("status=%s, want stopped", snap.Status)
	}
	if snap.LastError == "" || !snap.ListVisible {
		t.Fatalf("expected error and visible playlist, got %+v", snap)
	}
	if errs := h.observer.errors(); len(errs) != 1 || errs[0].Kind != ErrorKindAdapterBind {
		t.Fatalf("observer errors: %+v", errs)
	}

	h.stop()
}

func TestRouter_AsyncBindFailureThroughReport(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := startRouter(t, &recordingPresenter{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = h.router.Submit(ctx, SourceLocal, PickFiles{Paths: []string{"/v/a.mkv", "/v/b.mkv"}})
	snap := h.snapshot(t)
	if snap.Status != StatusPlaying {
		t.Fatalf("status=%s", snap.Status)
	}

	// Token 1 is the first bind issued by a fresh state.
	h.router.Report(ctx)(AdapterBindFailed{Token: 1, Err: errors.New("no such file")})

	if snap := h.snapshot(t); snap.Status != StatusStopped {
		t.Fatalf("status=%s, want stopped", snap.Status)
	}

	h.stop()
}

func TestRouter_NoPresenterFailsBind(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := startRouter(t, nil)
	_ = h.router.Submit(context.Background(), SourceLocal, PickFiles{Paths: []string{"/v/a.mkv"}})

	if snap := h.snapshot(t); snap.Status != StatusStopped {
		t.Fatalf("status=%s, want stopped", snap.Status)
	}

	h.stop()
}

func TestRouter_ExitClosesWindowAndShutsDown(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingPresenter{}
	h := startRouter(t, p)

	if _, err := h.router.DispatchRemote(context.Background(), "exit"); err != nil {
		t.Fatalf("DispatchRemote: %v", err)
	}

	select {
	case <-h.shutdown:
	case <-time.After(time.Second):
		t.Fatalf("shutdown not requested")
	}

	p.mu.Lock()
	ops := append([]WindowOp(nil), p.ops...)
	p.mu.Unlock()
	if len(ops) != 1 || ops[0] != WindowClose {
		t.Fatalf("window ops: %v", ops)
	}

	h.stop()
}

func TestRouter_AspectUsesRenderHeight(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingPresenter{height: 720}
	h := startRouter(t, p)

	_, _ = h.router.DispatchRemote(context.Background(), "aspect_ratio")
	_ = h.snapshot(t)

	calls := p.Calls()
	if len(calls) != 1 || calls[0] != "geometry=1280x720" {
		t.Fatalf("calls: %v", calls)
	}

	h.stop()
}

func TestRouter_ConcurrentSubmitsAreSerialized(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := startRouter(t, &recordingPresenter{})
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("clip%02d.mp4", i)
			_ = h.router.Submit(ctx, SourceStore, MediaArrived{FileName: name, FilePath: "/media/" + name})
		}(i)
	}
	wg.Wait()

	if snap := h.snapshot(t); len(snap.Items) != n {
		t.Fatalf("playlist len=%d, want %d", len(snap.Items), n)
	}

	h.stop()
}

func TestRouter_PanickingObserverDoesNotKillLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	var once sync.Once
	panicky := ObserverFunc(func(StateBroadcast) {
		once.Do(func() { panic("observer blew up") })
	})

	r := NewRouter(RouterConfig{}, discardLogger(), panicky)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, NewPlayerState(""), effectTargets{})
	}()

	_ = r.Submit(ctx, SourceLocal, ToggleMute{})
	snap, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot after panic: %v", err)
	}
	if !snap.Muted {
		t.Fatalf("mute toggle lost")
	}

	cancel()
	<-done
}

func TestRouter_TrySubmitQueueFull(t *testing.T) {
	r := NewRouter(RouterConfig{QueueSize: 1}, discardLogger())

	if err := r.TrySubmit(SourceIPC, Play{}); err != nil {
		t.Fatalf("first TrySubmit: %v", err)
	}
	if err := r.TrySubmit(SourceIPC, Play{}); !errors.Is(err, errQueueFull) {
		t.Fatalf("second TrySubmit err=%v, want errQueueFull", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Submit(ctx, SourceIPC, Play{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit on full queue err=%v", err)
	}
}
