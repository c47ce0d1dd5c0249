package session

import (
	"encoding/base64"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attn-sh/ptyhost/internal/config"
	"github.com/attn-sh/ptyhost/internal/detect"
	"github.com/attn-sh/ptyhost/internal/notify"
)

// recorder collects emitted events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
	wake   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{wake: make(chan struct{}, 64)}
}

func (r *recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *recorder) waitFor(t *testing.T, kind string) Event {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		r.mu.Lock()
		for _, ev := range r.events {
			if ev.Event == kind {
				r.mu.Unlock()
				return ev
			}
		}
		r.mu.Unlock()
		select {
		case <-r.wake:
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", kind)
		}
	}
}

func (r *recorder) waitForData(t *testing.T, payload string) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		r.mu.Lock()
		for _, ev := range r.events {
			if ev.Event != EventData {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(ev.Data)
			if err == nil && string(raw) == payload {
				r.mu.Unlock()
				return
			}
		}
		r.mu.Unlock()
		select {
		case <-r.wake:
		case <-deadline:
			t.Fatalf("timed out waiting for data payload %q", payload)
		}
	}
}

func mockManager(t *testing.T) (*Manager, *recorder) {
	t.Helper()
	t.Setenv(config.EnvMockPTY, "1")
	cfg := config.Load()
	rec := newRecorder()
	return NewManager(cfg, rec, notify.New(cfg), nil), rec
}

func TestMockSpawnEmitsBanner(t *testing.T) {
	m, rec := mockManager(t)

	pid, err := m.Spawn(SpawnArgs{ID: "s1", Cwd: "/tmp", Cols: 80, Rows: 24})
	require.NoError(t, err)
	assert.Equal(t, 0, pid)

	ev := rec.waitFor(t, EventData)
	assert.Equal(t, "s1", ev.ID)
	raw, err := base64.StdEncoding.DecodeString(ev.Data)
	require.NoError(t, err)
	assert.Equal(t, "attn mock pty: s1\r\n", string(raw))
}

func TestMockWriteEchoes(t *testing.T) {
	m, rec := mockManager(t)
	_, err := m.Spawn(SpawnArgs{ID: "s1", Cwd: "/tmp", Cols: 80, Rows: 24})
	require.NoError(t, err)

	require.NoError(t, m.Write("s1", "hello"))

	rec.waitForData(t, "hello")
}

func TestMockUnknownSessionErrors(t *testing.T) {
	m, _ := mockManager(t)

	assert.ErrorIs(t, m.Write("nope", "x"), ErrSessionNotFound)
	assert.ErrorIs(t, m.Resize("nope", 80, 24), ErrSessionNotFound)
	assert.ErrorIs(t, m.Kill("nope"), ErrSessionNotFound)
}

func TestMockKillEmitsExit(t *testing.T) {
	m, rec := mockManager(t)
	_, err := m.Spawn(SpawnArgs{ID: "s1", Cwd: "/tmp", Cols: 80, Rows: 24})
	require.NoError(t, err)

	require.NoError(t, m.Kill("s1"))

	ev := rec.waitFor(t, EventExit)
	assert.Equal(t, "s1", ev.ID)
	assert.ErrorIs(t, m.Kill("s1"), ErrSessionNotFound)
}

func TestNormalizeAgent(t *testing.T) {
	assert.Equal(t, AgentClaude, NormalizeAgent("Claude"))
	assert.Equal(t, AgentCodex, NormalizeAgent("codex"))
	assert.Equal(t, AgentCodex, NormalizeAgent(""))
	assert.Equal(t, AgentCodex, NormalizeAgent("something-else"))
}

func TestResumeFlags(t *testing.T) {
	id := "123e4567-e89b-4d3a-8456-426614174000"

	assert.Equal(t, " --resume '"+id+"' --fork-session",
		resumeFlags(SpawnArgs{ResumeSessionID: id, ForkSession: true}))
	assert.Equal(t, " --resume '"+id+"'",
		resumeFlags(SpawnArgs{ResumeSessionID: id}))
	assert.Equal(t, " --resume", resumeFlags(SpawnArgs{ResumePicker: true}))
	// Picker mode needs a session id to fork from; fork without one is
	// not a valid combination and produces no flags.
	assert.Equal(t, "", resumeFlags(SpawnArgs{ResumePicker: true, ForkSession: true}))
	assert.Equal(t, "", resumeFlags(SpawnArgs{}))
}

func TestUUIDValidation(t *testing.T) {
	assert.True(t, uuidRe.MatchString("123e4567-e89b-4d3a-8456-426614174000"))
	assert.False(t, uuidRe.MatchString("123E4567-E89B-4D3A-8456-426614174000"))
	assert.False(t, uuidRe.MatchString("not-a-uuid"))
	assert.False(t, uuidRe.MatchString("'; rm -rf /; '"))
	assert.False(t, uuidRe.MatchString("123e4567-e89b-4d3a-8456-426614174000 --extra"))
}

func TestShouldDetectState(t *testing.T) {
	cfg := &config.Config{DefaultAgent: "codex"}
	m := &Manager{cfg: cfg}

	yes, no := true, false

	// Explicit spawn override wins.
	assert.True(t, m.shouldDetectState(SpawnArgs{DetectState: &yes, Agent: "claude"}))
	assert.False(t, m.shouldDetectState(SpawnArgs{DetectState: &no, Agent: "codex"}))

	// Environment override next.
	cfg.StateDetection = &no
	assert.False(t, m.shouldDetectState(SpawnArgs{Agent: "codex"}))
	cfg.StateDetection = nil

	// Agent kind decides when named.
	assert.True(t, m.shouldDetectState(SpawnArgs{Agent: "codex"}))
	assert.True(t, m.shouldDetectState(SpawnArgs{Agent: "CODEX"}))
	assert.False(t, m.shouldDetectState(SpawnArgs{Agent: "claude"}))

	// Default agent decides otherwise.
	assert.True(t, m.shouldDetectState(SpawnArgs{}))
	cfg.DefaultAgent = "claude"
	assert.False(t, m.shouldDetectState(SpawnArgs{}))
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func TestKillReleasesMasterForStubbornChild(t *testing.T) {
	t.Setenv(config.EnvMockPTY, "0")
	cfg := config.Load()
	rec := newRecorder()
	m := NewManager(cfg, rec, notify.New(cfg), nil)

	pid, err := m.Spawn(SpawnArgs{ID: "s1", Cwd: t.TempDir(), Cols: 80, Rows: 24, Shell: true})
	require.NoError(t, err)
	require.Greater(t, pid, 0)

	// Wait for the shell prompt, then make the child ignore SIGTERM.
	rec.waitFor(t, EventData)
	require.NoError(t, m.Write("s1", "trap '' TERM\n"))
	time.Sleep(300 * time.Millisecond)

	require.NoError(t, m.Kill("s1"))

	// Dropping the master hangs the child up even though it traps TERM.
	deadline := time.Now().Add(3 * time.Second)
	for processAlive(pid) && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	assert.False(t, processAlive(pid), "child pid %d still alive after kill", pid)

	ev := rec.waitFor(t, EventExit)
	assert.Equal(t, "s1", ev.ID)
}

func TestPushStateDeduplicates(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "attn.sock")
	msgs := collectDaemonMessages(t, sock)
	t.Setenv(config.EnvSocketPath, sock)
	cfg := config.Load()
	m := NewManager(cfg, newRecorder(), notify.New(cfg), nil)
	sess := &Session{ID: "s1"}

	// Repeated classifications of the same state collapse to one message;
	// each distinct new state produces exactly one.
	last := detect.State("")
	last = m.pushState(sess, last, detect.StateWorking)
	last = m.pushState(sess, last, detect.StateWorking)
	last = m.pushState(sess, last, detect.StateWaitingInput)
	last = m.pushState(sess, last, detect.StateWaitingInput)
	last = m.pushState(sess, last, detect.StateWorking)
	assert.Equal(t, detect.StateWorking, last)

	want := []string{"working", "waiting_input", "working"}
	got := make([]string, 0, len(want))
	for range want {
		select {
		case msg := <-msgs:
			require.Equal(t, "state", msg["cmd"])
			require.Equal(t, "s1", msg["id"])
			got = append(got, msg["state"].(string))
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out; state messages so far: %v", got)
		}
	}
	assert.Equal(t, want, got)

	select {
	case msg := <-msgs:
		t.Fatalf("unexpected extra state message: %v", msg)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestListIncludesMockSessions(t *testing.T) {
	m, _ := mockManager(t)
	_, err := m.Spawn(SpawnArgs{ID: "s1", Cwd: "/tmp", Cols: 80, Rows: 24})
	require.NoError(t, err)

	assert.Equal(t, []string{"s1"}, m.List())
}
