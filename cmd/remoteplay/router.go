package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Command Router - the single serialization point
// ============================================================================
//
// Every input (local keys, presenter key bindings, HTTP, IPC, media arrivals,
// presenter observations) is submitted into one buffered queue. Run drains it
// on a single goroutine, so the controller never sees two commands interleave.
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands.
//   - The router loop is the only place that executes side effects.
//   - Synchronous effect failures are turned into Events and reduced before the
//     next queued input.
//   - A panic while handling one input is logged; the loop keeps running.
// ============================================================================

const defaultQueueSize = 64

type RouterConfig struct {
	QueueSize int
}

type Router struct {
	queue     chan TimedEvent
	observers []Observer
	logger    *slog.Logger
}

func NewRouter(cfg RouterConfig, logger *slog.Logger, observers ...Observer) *Router {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Router{
		queue:     make(chan TimedEvent, size),
		observers: observers,
		logger:    logger,
	}
}

// Submit queues ev, waiting for room until ctx is done.
func (r *Router) Submit(ctx context.Context, src Source, ev Event) error {
	select {
	case r.queue <- TimedEvent{Event: ev, Source: src, At: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues ev without waiting.
func (r *Router) TrySubmit(src Source, ev Event) error {
	select {
	case r.queue <- TimedEvent{Event: ev, Source: src, At: time.Now()}:
		return nil
	default:
		commandsDroppedTotal.WithLabelValues("queue_full").Inc()
		return errQueueFull
	}
}

// DispatchRemote parses a remote tag and queues it. Unknown tags are logged and
// dropped: dispatched is false and err is nil. err is only set when the tag was
// valid but could not be queued.
func (r *Router) DispatchRemote(ctx context.Context, tag string) (dispatched bool, err error) {
	ev, perr := ParseRemoteCommand(tag)
	if perr != nil {
		commandsDroppedTotal.WithLabelValues("unknown_command").Inc()
		r.logger.Warn("dropping remote command", "error", perr)
		return false, nil
	}
	if err := r.Submit(ctx, SourceRemote, ev); err != nil {
		return false, fmt.Errorf("dispatch %q: %w", tag, err)
	}
	return true, nil
}

// Report returns a reportFunc for presenters. It blocks until queued or ctx is done.
func (r *Router) Report(ctx context.Context) reportFunc {
	return func(ev Event) {
		if err := r.Submit(ctx, SourcePresenter, ev); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("presenter report dropped", "event", eventLabel(ev), "error", err)
		}
	}
}

// Snapshot requests a state snapshot through the loop.
func (r *Router) Snapshot(ctx context.Context) (StateSnapshot, error) {
	reply := make(chan StateSnapshot, 1)
	if err := r.Submit(ctx, SourceLocal, RequestStateSnapshot{Reply: reply}); err != nil {
		return StateSnapshot{}, err
	}

	waitCtx := ctx
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, 1*time.Second)
		defer cancel()
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-waitCtx.Done():
		return StateSnapshot{}, fmt.Errorf("snapshot: %w", waitCtx.Err())
	}
}

// Run is the dispatch loop. It exits when ctx is canceled.
func (r *Router) Run(ctx context.Context, state *PlayerState, targets effectTargets) {
	if state == nil {
		r.logger.Error("player state is nil")
		return
	}

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command

	reduce := func(ev Event, now time.Time) {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("recovered panic in dispatch", "event", eventLabel(ev), "panic", p)
			}
		}()

		rr := Reduce(state, ev, now)
		if rr.State != nil {
			state = rr.State
		}
		for _, n := range rr.Notices {
			r.logNotice(ev, n)
		}
		cmdQueue = append(cmdQueue, rr.Commands...)
		for _, b := range rr.Broadcasts {
			for _, o := range r.observers {
				o.Observe(b)
			}
		}
	}

	flushEvents := func(now time.Time) {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]
			reduce(ev, now)
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			r.execute(targets, cmd, func(obs Event) {
				eventQueue = append(eventQueue, obs)
			})

			flushEvents(time.Now())
		}
	}

	r.logger.Info("router running", "status", state.Status)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("router stopping (context canceled)")
			return

		case te := <-r.queue:
			commandsTotal.WithLabelValues(string(te.Source), eventLabel(te.Event)).Inc()
			r.logger.Debug("dispatch", "source", te.Source, "event", eventLabel(te.Event))

			eventQueue = append(eventQueue, te.Event)
			flushEvents(te.At)
			flushCommands()
		}
	}
}

func (r *Router) execute(t effectTargets, cmd Command, onEvent func(Event)) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("recovered panic in effect", "cmd", cmd.String(), "panic", p)
		}
	}()
	runEffect(t, cmd, r.logger, onEvent)
}

func (r *Router) logNotice(ev Event, err error) {
	var bindErr *AdapterBindError
	switch {
	case errors.Is(err, ErrEmptyPlaylist):
		r.logger.Debug("command ignored", "event", eventLabel(ev), "reason", err)
	case errors.As(err, &bindErr):
		r.logger.Error("media failed to load", "locator", bindErr.Locator, "token", bindErr.Token, "error", bindErr.Err)
	default:
		r.logger.Warn("command rejected", "event", eventLabel(ev), "error", err)
	}
}
