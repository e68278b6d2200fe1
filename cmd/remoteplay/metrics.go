package main

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoteplay_commands_total",
		Help: "Events dispatched through the router by source and event type",
	}, []string{"source", "event"})

	commandsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoteplay_commands_dropped_total",
		Help: "Commands dropped before reaching the controller by reason",
	}, []string{"reason"})

	broadcastsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remoteplay_broadcasts_dropped_total",
		Help: "State broadcasts dropped because the WS broadcaster fell behind",
	})

	presenterFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoteplay_presenter_failures_total",
		Help: "Presenter command failures by command",
	}, []string{"command"})

	bindFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remoteplay_bind_failures_total",
		Help: "Media binds that the presenter failed to load",
	})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "remoteplay_uploads_total",
		Help: "Media uploads by result",
	}, []string{"result"})

	playbackState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "remoteplay_playback_state",
		Help: "1 for the current playback status, 0 otherwise",
	}, []string{"status"})

	playlistLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "remoteplay_playlist_length",
		Help: "Number of items in the playlist",
	})

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "remoteplay_ws_clients",
		Help: "Connected state WebSocket clients",
	})
)

// eventLabel names an event for metric labels and logs ("main.Play" -> "play").
func eventLabel(ev any) string {
	name := fmt.Sprintf("%T", ev)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

func commandLabel(cmd Command) string {
	return strings.TrimPrefix(eventLabel(cmd), "cmd")
}

// metricsObserver mirrors state broadcasts into gauges.
type metricsObserver struct{}

func (metricsObserver) Observe(b StateBroadcast) {
	switch ev := b.(type) {
	case BroadcastStatusChanged:
		for _, st := range allStatuses {
			v := 0.0
			if st == ev.Status {
				v = 1
			}
			playbackState.WithLabelValues(string(st)).Set(v)
		}
	case BroadcastPlaylistChanged:
		playlistLength.Set(float64(len(ev.Items)))
	case BroadcastError:
		if ev.Kind == ErrorKindAdapterBind {
			bindFailuresTotal.Inc()
		}
	}
}
