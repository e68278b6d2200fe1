package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// errInputsStopped marks a reader failure that ends every device at once.
var errInputsStopped = errors.New("input reader stopped")

// inputEvent mirrors the Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// readInputEvents decodes events from r until a read fails. It blocks on
// read, so run it on its own goroutine.
func readInputEvents(r io.Reader, events chan<- inputEvent, readErr chan<- error) {
	buf := make([]byte, binary.Size(inputEvent{}))
	reader := bytes.NewReader(buf)

	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			readErr <- err
			return
		}

		reader.Reset(buf)
		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			continue
		}
		events <- ev
	}
}

// translateKey maps a key press to a local controller event.
func translateKey(ev inputEvent) (Event, bool) {
	if ev.Type != EV_KEY || ev.Value != evValuePress {
		return nil, false
	}

	switch ev.Code {
	case KEY_PLAYPAUSE, KEY_SPACE:
		return PauseResume{}, true
	case KEY_PLAYCD:
		return Play{}, true
	case KEY_PAUSECD:
		return Pause{}, true
	case KEY_STOPCD:
		return Stop{}, true
	case KEY_NEXTSONG, KEY_N:
		return Next{}, true
	case KEY_PREVIOUSSONG, KEY_P:
		return Previous{}, true
	case KEY_MUTE:
		return ToggleMute{}, true
	case KEY_M:
		return WindowCommand{Op: WindowToggleMaximize}, true
	case KEY_F:
		return ToggleFullscreen{}, true
	case KEY_ESC:
		return ExitFullscreen{}, true
	case KEY_A:
		return CycleAspectRatio{}, true
	default:
		return nil, false
	}
}

// runInput reads the given evdev devices and submits translated key presses
// as local commands. A failing device is dropped; the others keep working.
// readDevices reports one error per failed device, or one wrapping
// errInputsStopped when the whole reader fails.
func runInput(ctx context.Context, devices []string, submit submitFunc, logger *slog.Logger) error {
	if len(devices) == 0 {
		return nil
	}

	files := make([]*os.File, 0, len(devices))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	for _, dev := range devices {
		f, err := os.Open(dev)
		if err != nil {
			return fmt.Errorf("open input device %s: %w", dev, err)
		}
		files = append(files, f)
	}

	events := make(chan inputEvent, 64)
	readErr := make(chan error, len(files))
	done := make(chan struct{})
	defer close(done)

	readDevices(files, events, readErr, done)
	logger.Info("reading input devices", "devices", devices)

	return forwardKeys(ctx, events, readErr, len(files), submit, logger)
}

// forwardKeys submits translated key presses until ctx ends or every one of
// the devices has failed.
func forwardKeys(ctx context.Context, events <-chan inputEvent, readErr <-chan error, devices int, submit submitFunc, logger *slog.Logger) error {
	remaining := devices
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if ctx.Err() != nil || errors.Is(err, os.ErrClosed) {
				return nil
			}
			if errors.Is(err, errInputsStopped) {
				logger.Error("input reader stopped", "error", err)
				return nil
			}
			remaining--
			logger.Warn("input device stopped", "error", err, "remaining", remaining)
			if remaining <= 0 {
				logger.Error("all input devices stopped")
				return nil
			}

		case ev := <-events:
			cmd, ok := translateKey(ev)
			if !ok {
				continue
			}
			if err := submit(ctx, SourceLocal, cmd); err != nil {
				return nil
			}
		}
	}
}
