package session

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attn-sh/ptyhost/internal/config"
	"github.com/attn-sh/ptyhost/internal/notify"
)

func collectDaemonMessages(t *testing.T, path string) <-chan map[string]any {
	t.Helper()
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	msgs := make(chan map[string]any, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			func(c net.Conn) {
				defer c.Close()
				line, err := bufio.NewReader(c).ReadBytes('\n')
				if err != nil {
					return
				}
				var m map[string]any
				if json.Unmarshal(line, &m) == nil {
					msgs <- m
				}
			}(conn)
		}
	}()
	return msgs
}

func TestWatchTranscriptsAdoptsMatchingFile(t *testing.T) {
	sessionsDir := t.TempDir()
	sock := filepath.Join(t.TempDir(), "attn.sock")
	msgs := collectDaemonMessages(t, sock)

	t.Setenv(config.EnvCodexSessionsDir, sessionsDir)
	t.Setenv(config.EnvSocketPath, sock)
	cfg := config.Load()

	rec := newRecorder()
	m := NewManager(cfg, rec, notify.New(cfg), nil)

	cwd := "/work/proj"
	sess := &Session{
		ID:        "s1",
		Cwd:       cwd,
		Agent:     AgentCodex,
		StartTime: time.Now(),
	}
	sess.UpdateInputHistory("fix the flaky test\r")
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	defer m.remove(sess.ID)

	go m.watchTranscripts(sess)

	// The transcript appears shortly after spawn, with the typed prompt
	// recorded as the latest user message.
	path := filepath.Join(sessionsDir, "2026", "08", "31", "rollout-1.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	lines := `{"type":"session_meta","payload":{"cwd":"` + cwd + `"}}` + "\n" +
		`{"type":"event_msg","payload":{"type":"user_message","message":"fix the flaky test"}}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	var stop map[string]any
	select {
	case stop = <-msgs:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stop notification")
	}
	assert.Equal(t, "stop", stop["cmd"])
	assert.Equal(t, "s1", stop["id"])
	assert.Equal(t, path, stop["transcript_path"])

	ev := rec.waitFor(t, EventTranscript)
	assert.True(t, ev.Matched)
	assert.Equal(t, path, sess.TranscriptPath())

	// A new assistant message on the adopted transcript triggers another
	// stop notification.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"event_msg","payload":{"type":"agent_message","message":"done, tests pass"}}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case stop = <-msgs:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for assistant stop notification")
	}
	assert.Equal(t, "stop", stop["cmd"])
	assert.Equal(t, path, stop["transcript_path"])
}

func TestWatchTranscriptsIgnoresOtherCwd(t *testing.T) {
	sessionsDir := t.TempDir()
	sock := filepath.Join(t.TempDir(), "attn.sock")
	msgs := collectDaemonMessages(t, sock)

	t.Setenv(config.EnvCodexSessionsDir, sessionsDir)
	t.Setenv(config.EnvSocketPath, sock)
	cfg := config.Load()

	rec := newRecorder()
	m := NewManager(cfg, rec, notify.New(cfg), nil)

	sess := &Session{
		ID:        "s1",
		Cwd:       "/work/proj",
		Agent:     AgentCodex,
		StartTime: time.Now(),
	}
	sess.UpdateInputHistory("hello there\r")
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	defer m.remove(sess.ID)

	go m.watchTranscripts(sess)

	path := filepath.Join(sessionsDir, "rollout-other.jsonl")
	lines := `{"type":"session_meta","payload":{"cwd":"/somewhere/else"}}` + "\n" +
		`{"type":"event_msg","payload":{"type":"user_message","message":"hello there"}}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	select {
	case msg := <-msgs:
		t.Fatalf("unexpected daemon message: %v", msg)
	case <-time.After(2 * time.Second):
	}
	assert.Empty(t, sess.TranscriptPath())
}
