package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// remoteplay-watch follows a player's state websocket and prints one line per
// change. With -raw it prints the frames as received.

type frame struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type mediaItem struct {
	DisplayName string `json:"display_name"`
}

type stateData struct {
	Status       string      `json:"status"`
	CurrentIndex int         `json:"current_index"`
	Current      *mediaItem  `json:"current"`
	Items        []mediaItem `json:"items"`
	Muted        bool        `json:"muted"`
	AspectRatio  string      `json:"aspect_ratio"`
	Fullscreen   bool        `json:"fullscreen"`
	ServerAddr   string      `json:"server_addr"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3000/ws/state", "remoteplay state websocket URL")
		raw   = flag.Bool("raw", false, "Print frames as raw JSON")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	// The player pings every 20s; answering keeps the read deadline fresh.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if *raw {
				fmt.Println(string(message))
				continue
			}
			printFrame(os.Stdout, message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// printFrame writes a one-line summary of a state frame.
func printFrame(w io.Writer, message []byte) {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		fmt.Fprintf(w, "[TEXT] %s\n", message)
		return
	}

	var d stateData
	_ = json.Unmarshal(f.Data, &d)
	ts := f.Ts.Local().Format("15:04:05")

	switch f.Type {
	case "state_init":
		fmt.Fprintf(w, "%s [STATE] %s, %d item(s), aspect %s, muted %t", ts, d.Status, len(d.Items), d.AspectRatio, d.Muted)
		if d.ServerAddr != "" {
			fmt.Fprintf(w, ", uploads at http://%s", d.ServerAddr)
		}
		fmt.Fprintln(w)
		printPlaylist(w, d.Items, d.CurrentIndex)

	case "status_changed":
		line := fmt.Sprintf("%s [STATUS] %s", ts, strings.ToUpper(d.Status))
		if d.Current != nil {
			line += fmt.Sprintf(" #%d %s", d.CurrentIndex, d.Current.DisplayName)
		}
		fmt.Fprintln(w, line)

	case "playlist_changed":
		fmt.Fprintf(w, "%s [PLAYLIST] %d item(s)\n", ts, len(d.Items))
		printPlaylist(w, d.Items, d.CurrentIndex)

	case "mute_changed":
		status := "UNMUTED"
		if d.Muted {
			status = "MUTED"
		}
		fmt.Fprintf(w, "%s [MUTE] %s\n", ts, status)

	case "aspect_ratio_changed":
		fmt.Fprintf(w, "%s [ASPECT] %s\n", ts, d.AspectRatio)

	case "layout_changed":
		fmt.Fprintf(w, "%s [LAYOUT] fullscreen %t\n", ts, d.Fullscreen)

	case "error":
		var e struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(f.Data, &e)
		fmt.Fprintf(w, "%s [ERROR] %s: %s\n", ts, e.Kind, e.Message)

	default:
		fmt.Fprintf(w, "%s [%s] %s\n", ts, strings.ToUpper(f.Type), f.Data)
	}
}

func printPlaylist(w io.Writer, items []mediaItem, current int) {
	for i, it := range items {
		marker := " "
		if i == current {
			marker = ">"
		}
		fmt.Fprintf(w, "  %s %d. %s\n", marker, i, it.DisplayName)
	}
}
