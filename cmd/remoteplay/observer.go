package main

import "log/slog"

// Observer receives state-change notifications after each reduction.
// Observe runs on the router goroutine and must not block.
type Observer interface {
	Observe(StateBroadcast)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(StateBroadcast)

func (f ObserverFunc) Observe(b StateBroadcast) { f(b) }

// channelObserver forwards broadcasts to a consumer goroutine (the WS broadcaster),
// dropping when the consumer falls behind.
type channelObserver struct {
	ch     chan<- StateBroadcast
	logger *slog.Logger
}

func newChannelObserver(ch chan<- StateBroadcast, logger *slog.Logger) channelObserver {
	return channelObserver{ch: ch, logger: logger}
}

func (o channelObserver) Observe(b StateBroadcast) {
	select {
	case o.ch <- b:
	default:
		broadcastsDroppedTotal.Inc()
		o.logger.Warn("broadcast queue full, dropping", "broadcast", eventLabel(b))
	}
}
