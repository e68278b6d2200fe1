package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ============================================================================
// remoteplay-ctl - Command-line IPC Client
// ============================================================================
// Sends commands to a running remoteplay over its unix socket.
//
// Usage:
//   remoteplay-ctl next
//   remoteplay-ctl load 2
//   remoteplay-ctl aspect 16:9
//   remoteplay-ctl pick ~/Videos/a.mkv ~/Videos/b.mkv
//   remoteplay-ctl state
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/remoteplay.sock)
// ============================================================================

const defaultSocketPath = "/tmp/remoteplay.sock"

// envelope and response mirror the player's IPC wire format.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

var errUsage = errors.New("usage")

// simpleCommands map CLI names onto payload-free wire types.
var simpleCommands = map[string]string{
	"play":            "play",
	"pause":           "pause",
	"pause-resume":    "pause_resume",
	"toggle":          "pause_resume",
	"stop":            "stop",
	"next":            "next",
	"previous":        "previous",
	"prev":            "previous",
	"mute":            "mute_unmute",
	"fullscreen":      "fullscreen",
	"exit-fullscreen": "exit_fullscreen",
	"quit":            "exit",
	"state":           "get_state",
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("remoteplay-ctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }
	socketPath := fs.String("socket", defaultSocketPath, "Unix domain socket path")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	if fs.NArg() == 0 || fs.Arg(0) == "help" {
		printUsage(stderr)
		if fs.NArg() == 0 {
			return 1
		}
		return 0
	}

	line, err := buildRequest(fs.Args())
	if err != nil {
		if errors.Is(err, errUsage) {
			printUsage(stderr)
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	resp, err := send(*socketPath, line)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if resp.Status != "ok" {
		fmt.Fprintf(stderr, "error: player: %s\n", resp.Error)
		return 1
	}

	if len(resp.State) > 0 {
		var pretty any
		if json.Unmarshal(resp.State, &pretty) == nil {
			b, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Fprintln(stdout, string(b))
			return 0
		}
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

// buildRequest turns CLI arguments into one IPC line.
func buildRequest(args []string) ([]byte, error) {
	name := args[0]
	rest := args[1:]

	if typ, ok := simpleCommands[name]; ok {
		return json.Marshal(envelope{Type: typ})
	}

	switch name {
	case "load", "remove":
		if len(rest) != 1 {
			return nil, fmt.Errorf("%s requires an index: %w", name, errUsage)
		}
		idx, err := strconv.Atoi(rest[0])
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("invalid index %q", rest[0])
		}
		return withData(name, map[string]int{"index": idx})

	case "aspect":
		if len(rest) == 0 {
			return json.Marshal(envelope{Type: "aspect_ratio"})
		}
		return withData("set_aspect_ratio", map[string]string{"mode": rest[0]})

	case "window":
		if len(rest) != 1 {
			return nil, fmt.Errorf("window requires an operation: %w", errUsage)
		}
		return withData("window", map[string]string{"op": rest[0]})

	case "remote":
		if len(rest) != 1 {
			return nil, fmt.Errorf("remote requires a command tag: %w", errUsage)
		}
		return withData("remote", map[string]string{"command": rest[0]})

	case "pick":
		if len(rest) == 0 {
			return nil, fmt.Errorf("pick requires at least one file: %w", errUsage)
		}
		paths := make([]string, 0, len(rest))
		for _, p := range rest {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", p, err)
			}
			paths = append(paths, abs)
		}
		return withData("pick_files", map[string][]string{"paths": paths})
	}

	return nil, fmt.Errorf("unknown command: %s: %w", name, errUsage)
}

func withData(typ string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", typ, err)
	}
	return json.Marshal(envelope{Type: typ, Data: raw})
}

func send(socketPath string, line []byte) (response, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return response{}, fmt.Errorf("send command: %w", err)
	}

	var resp response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `remoteplay-ctl - Control a running remoteplay via IPC

Usage:
  remoteplay-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  play, pause, pause-resume (toggle), stop
  next, previous (prev)
  load <index>            Play playlist entry <index> (0-based)
  remove <index>          Remove playlist entry <index>
  pick <file>...          Replace the playlist with files and play the first
  mute                    Toggle mute
  fullscreen              Toggle fullscreen
  exit-fullscreen         Leave fullscreen
  aspect [mode]           Cycle aspect ratio, or set it (e.g. 16:9, Default)
  window <op>             minimize-window|maximize-window|toggle-maximize|close-window
  remote <tag>            Send a tag exactly as the HTTP remote would
  state                   Print the player state as JSON
  quit                    Exit the player
  help                    Show this help message
`, defaultSocketPath)
}
