package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"next"}, `{"type":"next"}`},
		{[]string{"toggle"}, `{"type":"pause_resume"}`},
		{[]string{"state"}, `{"type":"get_state"}`},
		{[]string{"load", "2"}, `{"type":"load","data":{"index":2}}`},
		{[]string{"remove", "0"}, `{"type":"remove","data":{"index":0}}`},
		{[]string{"aspect"}, `{"type":"aspect_ratio"}`},
		{[]string{"aspect", "4:3"}, `{"type":"set_aspect_ratio","data":{"mode":"4:3"}}`},
		{[]string{"window", "minimize-window"}, `{"type":"window","data":{"op":"minimize-window"}}`},
		{[]string{"remote", "mute_unmute"}, `{"type":"remote","data":{"command":"mute_unmute"}}`},
		{[]string{"pick", "/v/a.mkv"}, `{"type":"pick_files","data":{"paths":["/v/a.mkv"]}}`},
	}
	for _, tt := range tests {
		got, err := buildRequest(tt.args)
		require.NoError(t, err, "%v", tt.args)
		assert.JSONEq(t, tt.want, string(got), "%v", tt.args)
	}

	for _, args := range [][]string{{"load"}, {"load", "-1"}, {"load", "x"}, {"window"}, {"pick"}, {"dance"}} {
		_, err := buildRequest(args)
		assert.Error(t, err, "%v", args)
	}
}

// serveOnce answers a single IPC request with reply and returns the line it got.
func serveOnce(t *testing.T, reply string) (string, <-chan string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "rpctl")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "ctl.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		got <- line
		_, _ = conn.Write([]byte(reply + "\n"))
	}()
	return path, got
}

func TestRun_SendsCommand(t *testing.T) {
	path, got := serveOnce(t, `{"status":"ok"}`)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-socket", path, "load", "1"}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "ok\n", stdout.String())
	assert.JSONEq(t, `{"type":"load","data":{"index":1}}`, <-got)
}

func TestRun_PrintsState(t *testing.T) {
	path, _ := serveOnce(t, `{"status":"ok","state":{"status":"playing","current_index":0}}`)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-socket", path, "state"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var state map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &state))
	assert.Equal(t, "playing", state["status"])
}

func TestRun_PlayerError(t *testing.T) {
	path, _ := serveOnce(t, `{"status":"error","error":"command queue full"}`)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-socket", path, "next"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "command queue full")
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")

	stderr.Reset()
	assert.Equal(t, 1, run([]string{"dance"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown command")
}
