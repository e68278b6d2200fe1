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
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Local scripts and remoteplay-ctl drive the player over a unix socket.
//
// Protocol: line-delimited JSON
//   - Client sends an event envelope:  {"type": "next"}
//                                      {"type": "load", "data": {"index": 2}}
//   - Remote tags are accepted as:     {"type": "remote", "data": {"command": "play"}}
//   - State is read with:              {"type": "get_state"}
//   - Server responds:                 {"status": "ok"} or {"status": "error", "error": "msg"}
//     get_state additionally carries  {"state": {...}}
// ============================================================================

const (
	ipcTypeRemote   = "remote"
	ipcTypeGetState = "get_state"
)

type IPCResponse struct {
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	State  *StateSnapshot `json:"state,omitempty"`
}

type ipcRemoteData struct {
	Command string `json:"command"`
}

// ipcSink is the router as seen by IPC connections.
type ipcSink interface {
	TrySubmit(src Source, ev Event) error
	Snapshot(ctx context.Context) (StateSnapshot, error)
}

// runIPCServer serves the socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, sink ipcSink, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Closing the listener unblocks Accept.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, sink, logger)
	}
}

func handleIPCConnection(ctx context.Context, conn net.Conn, sink ipcSink, logger *slog.Logger) {
	defer conn.Close()

	// Unblock the scanner on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		logger.Debug("IPC received", "line", string(line))

		resp := handleIPCLine(ctx, line, sink, logger)
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	logger.Debug("IPC connection closed")
}

// handleIPCLine answers one request line. Unknown remote tags are logged and
// dropped with an ok reply, the same as on the HTTP remote.
func handleIPCLine(ctx context.Context, line []byte, sink ipcSink, logger *slog.Logger) IPCResponse {
	var env EventEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return ipcError(fmt.Errorf("parse event: %w", err))
	}

	switch env.Type {
	case ipcTypeGetState:
		sctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		snap, err := sink.Snapshot(sctx)
		if err != nil {
			return ipcError(err)
		}
		return IPCResponse{Status: "ok", State: &snap}

	case ipcTypeRemote:
		var d ipcRemoteData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return ipcError(fmt.Errorf("parse remote command: %w", err))
		}
		ev, perr := ParseRemoteCommand(d.Command)
		if perr != nil {
			commandsDroppedTotal.WithLabelValues("unknown_command").Inc()
			logger.Warn("dropping remote command", "source", SourceIPC, "error", perr)
			return IPCResponse{Status: "ok"}
		}
		return ipcSubmit(sink, ev)
	}

	ev, err := decodeEnvelope(env)
	if err != nil {
		return ipcError(fmt.Errorf("parse event: %w", err))
	}
	return ipcSubmit(sink, ev)
}

func ipcSubmit(sink ipcSink, ev Event) IPCResponse {
	if err := sink.TrySubmit(SourceIPC, ev); err != nil {
		return ipcError(err)
	}
	return IPCResponse{Status: "ok"}
}

func ipcError(err error) IPCResponse {
	return IPCResponse{Status: "error", Error: err.Error()}
}

// ============================================================================
// IPC client
// ============================================================================

// SendIPCEvent sends an event to a running player and waits for the reply.
func SendIPCEvent(socketPath string, ev Event) error {
	data, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	resp, err := sendIPCLine(socketPath, data)
	if err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}
	return nil
}

func sendIPCLine(socketPath string, line []byte) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(string(line))); err != nil {
		return IPCResponse{}, fmt.Errorf("send event: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
