package session

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/time/rate"

	"github.com/attn-sh/ptyhost/internal/ansi"
	"github.com/attn-sh/ptyhost/internal/config"
	"github.com/attn-sh/ptyhost/internal/detect"
	"github.com/attn-sh/ptyhost/internal/logging"
	"github.com/attn-sh/ptyhost/internal/notify"
	"github.com/attn-sh/ptyhost/internal/statedb"
)

var sessionLog = logging.ForComponent(logging.CompSession)

// readBufSize is large enough to coalesce PTY output at the OS level,
// keeping event frames coarse during fast scrollback.
const readBufSize = 16384

// maxTextTail bounds the stripped-text window kept for classification.
const maxTextTail = 2000

// classifyTailLines is how many trailing lines feed the classifier.
const classifyTailLines = 6

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SpawnArgs describes a session to create.
type SpawnArgs struct {
	ID   string `json:"id"`
	Cwd  string `json:"cwd"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`

	// Shell spawns a plain login shell instead of an agent.
	Shell bool `json:"shell,omitempty"`

	ResumeSessionID string `json:"resume_session_id,omitempty"`
	ResumePicker    bool   `json:"resume_picker,omitempty"`
	ForkSession     bool   `json:"fork_session,omitempty"`

	// DetectState overrides the environment-driven default when set.
	DetectState *bool `json:"detect_state,omitempty"`

	Agent            string `json:"agent,omitempty"`
	ClaudeExecutable string `json:"claude_executable,omitempty"`
	CodexExecutable  string `json:"codex_executable,omitempty"`
}

// Manager owns the session registry and the goroutines serving each
// session. All methods are safe for concurrent use.
type Manager struct {
	cfg      *config.Config
	emitter  Emitter
	notifier *notify.Notifier
	db       *statedb.StateDB // optional

	mu       sync.RWMutex
	sessions map[string]*Session
	mock     map[string]struct{}
}

// NewManager creates a manager. db may be nil to skip persistence.
func NewManager(cfg *config.Config, emitter Emitter, notifier *notify.Notifier, db *statedb.StateDB) *Manager {
	return &Manager{
		cfg:      cfg,
		emitter:  emitter,
		notifier: notifier,
		db:       db,
		sessions: make(map[string]*Session),
		mock:     make(map[string]struct{}),
	}
}

// Spawn creates a new PTY session and returns the child pid. In mock
// mode no process is started and the pid is 0.
func (m *Manager) Spawn(args SpawnArgs) (int, error) {
	detectEnabled := m.shouldDetectState(args) && !args.Shell

	if m.cfg.MockPTY {
		return 0, m.spawnMock(args.ID)
	}

	agent := NormalizeAgent(args.Agent)
	shellPath := loginShell()

	var cmd *exec.Cmd
	if args.Shell {
		cmd = exec.Command(shellPath, "-l")
	} else {
		if args.ResumeSessionID != "" && !uuidRe.MatchString(args.ResumeSessionID) {
			return 0, fmt.Errorf("invalid resume session id: %q", args.ResumeSessionID)
		}
		cmd = exec.Command(shellPath, "-l", "-c", "exec "+m.cfg.WrapperPath()+resumeFlags(args))
		cmd.Env = append(os.Environ(),
			"ATTN_INSIDE_APP=1",
			"ATTN_SESSION_ID="+args.ID,
			config.EnvAgent+"="+agent,
		)
		if args.ClaudeExecutable != "" {
			cmd.Env = append(cmd.Env, config.EnvClaudeExecutable+"="+args.ClaudeExecutable)
		}
		if args.CodexExecutable != "" {
			cmd.Env = append(cmd.Env, config.EnvCodexExecutable+"="+args.CodexExecutable)
		}
	}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, "TERM=xterm-256color")
	cmd.Dir = args.Cwd

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: args.Rows, Cols: args.Cols})
	if err != nil {
		return 0, fmt.Errorf("start pty: %w", err)
	}

	sess := &Session{
		ID:        args.ID,
		Cwd:       args.Cwd,
		Agent:     agent,
		StartTime: time.Now(),
		Shell:     args.Shell,
		master:    master,
		cmd:       cmd,
	}

	m.mu.Lock()
	m.sessions[args.ID] = sess
	m.mu.Unlock()

	if m.db != nil {
		kind := agent
		if args.Shell {
			kind = "shell"
		}
		if err := m.db.AddSession(args.ID, kind, args.Cwd, sess.StartTime); err != nil {
			sessionLog.Warn("statedb_add_failed", slog.String("id", args.ID), slog.Any("error", err))
		}
	}

	if agent == AgentCodex && !args.Shell {
		go m.watchTranscripts(sess)
	}

	go m.readLoop(sess, detectEnabled)

	sessionLog.Info("session_spawned",
		slog.String("id", args.ID),
		slog.String("agent", agent),
		slog.Bool("shell", args.Shell),
		slog.Bool("detect", detectEnabled),
		slog.Int("pid", cmd.Process.Pid))

	return cmd.Process.Pid, nil
}

// Write sends client input to the session's PTY. Codex input is also
// folded into the history used for transcript matching.
func (m *Manager) Write(id, data string) error {
	if m.cfg.MockPTY {
		if !m.mockExists(id) {
			return ErrSessionNotFound
		}
		m.emitter.Emit(dataEvent(id, []byte(data)))
		return nil
	}

	sess := m.get(id)
	if sess == nil {
		return ErrSessionNotFound
	}
	if sess.Agent == AgentCodex && !sess.Shell {
		sess.UpdateInputHistory(data)
	}
	if err := sess.write([]byte(data)); err != nil {
		return fmt.Errorf("write to pty: %w", err)
	}
	return nil
}

// Resize changes the PTY window size.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	if m.cfg.MockPTY {
		if !m.mockExists(id) {
			return ErrSessionNotFound
		}
		return nil
	}

	sess := m.get(id)
	if sess == nil {
		return ErrSessionNotFound
	}
	if err := pty.Setsize(sess.master, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	return nil
}

// Kill terminates the session's child process and removes it from the
// registry. The reader goroutine observes EOF and finishes cleanup.
func (m *Manager) Kill(id string) error {
	if m.cfg.MockPTY {
		m.mu.Lock()
		_, ok := m.mock[id]
		delete(m.mock, id)
		m.mu.Unlock()
		if !ok {
			return ErrSessionNotFound
		}
		m.emitter.Emit(exitEvent(id, 0))
		return nil
	}

	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	if proc := sess.cmd.Process; proc != nil {
		// SIGTERM lets the agent flush its transcript; hard kill is the
		// fallback for processes that ignore it.
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			_ = proc.Kill()
		}
	}
	// Releasing the master delivers a hangup to any child that ignored
	// the signal, and unblocks the reader goroutine so it finishes
	// cleanup through its EOF path.
	_ = sess.master.Close()
	sessionLog.Info("session_killed", slog.String("id", id))
	return nil
}

// List returns the ids of live sessions.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions)+len(m.mock))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	for id := range m.mock {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

func (m *Manager) mockExists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.mock[id]
	return ok
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// spawnMock registers a fake session that echoes a banner. Used by UI
// tests that need session plumbing without real processes.
func (m *Manager) spawnMock(id string) error {
	m.mu.Lock()
	m.mock[id] = struct{}{}
	m.mu.Unlock()

	go func() {
		time.Sleep(30 * time.Millisecond)
		m.emitter.Emit(dataEvent(id, []byte(fmt.Sprintf("attn mock pty: %s\r\n", id))))
	}()
	return nil
}

// shouldDetectState resolves whether state detection runs for a spawn:
// explicit request flag, then the environment override, then the agent
// kind (codex detects by default).
func (m *Manager) shouldDetectState(args SpawnArgs) bool {
	if args.DetectState != nil {
		return *args.DetectState
	}
	if m.cfg.StateDetection != nil {
		return *m.cfg.StateDetection
	}
	if args.Agent != "" {
		return strings.EqualFold(args.Agent, AgentCodex)
	}
	return strings.EqualFold(m.cfg.DefaultAgent, AgentCodex)
}

// resumeFlags builds the wrapper's resume arguments. The session id was
// validated against the uuid pattern before this point.
func resumeFlags(args SpawnArgs) string {
	switch {
	case args.ResumeSessionID != "" && args.ForkSession:
		return fmt.Sprintf(" --resume '%s' --fork-session", args.ResumeSessionID)
	case args.ResumeSessionID != "":
		return fmt.Sprintf(" --resume '%s'", args.ResumeSessionID)
	case args.ResumePicker && !args.ForkSession:
		return " --resume"
	default:
		return ""
	}
}

// loginShell finds the user's login shell: the passwd entry first, then
// $SHELL, then a hard default.
func loginShell() string {
	if u, err := user.Current(); err == nil {
		if shell := passwdShell(u.Username); shell != "" {
			return shell
		}
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/bash"
}

func passwdShell(username string) string {
	out, err := exec.Command("getent", "passwd", username).Output()
	if err != nil {
		return ""
	}
	fields := strings.Split(strings.TrimSpace(string(out)), ":")
	if len(fields) < 7 {
		return ""
	}
	return fields[6]
}

// readLoop streams PTY output as data events, carrying incomplete UTF-8
// and escape sequences over to the next read so clients never see a
// split sequence. When detection is enabled it also classifies the
// stripped text tail and reports state changes.
func (m *Manager) readLoop(sess *Session, detectEnabled bool) {
	heuristics, err := detect.LoadHeuristics(sess.Agent, m.cfg.HeuristicsPath())
	if err != nil {
		sessionLog.Warn("heuristics_load_failed", slog.String("id", sess.ID), slog.Any("error", err))
		heuristics = detect.Defaults()
	}

	buf := make([]byte, readBufSize)
	var carryover []byte
	var textTail string
	var lastState detect.State
	debugLimit := rate.NewLimiter(rate.Every(2*time.Second), 1)

	for {
		n, err := sess.master.Read(buf)
		if n > 0 {
			combined := append(carryover, buf[:n]...)
			carryover = nil

			boundary := ansi.FindSafeBoundary(combined)
			if boundary > 0 {
				m.emitter.Emit(dataEvent(sess.ID, combined[:boundary]))
			}

			if detectEnabled && boundary > 0 {
				cleaned := ansi.Strip(string(combined[:boundary]))
				if cleaned != "" {
					// Matched codex sessions get a chunk-level approval
					// scan on top of the windowed classifier: approval
					// prompts are transient and must not wait for the
					// tail window to settle.
					if sess.Agent == AgentCodex && sess.TranscriptPath() != "" &&
						detect.IsPendingApproval(cleaned) {
						lastState = m.pushState(sess, lastState, detect.StatePendingApproval)
					}

					textTail += cleaned
					if len(textTail) > maxTextTail {
						textTail = detect.TrimToLastChars(textTail, maxTextTail)
					}
					recent := detect.TailLines(textTail, classifyTailLines)
					if state, ok := heuristics.Classify(recent); ok {
						lastState = m.pushState(sess, lastState, state)
					} else if debugLimit.Allow() {
						sessionLog.Debug("classify_abstain", slog.String("id", sess.ID))
					}
				}
			}

			if boundary < len(combined) {
				carryover = combined[boundary:]
			}
		}
		if err != nil {
			break
		}
	}

	// EOF: flush whatever is left, even if incomplete.
	if len(carryover) > 0 {
		m.emitter.Emit(dataEvent(sess.ID, carryover))
	}

	_ = sess.master.Close()
	code := 0
	if err := sess.cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
	}

	m.emitter.Emit(exitEvent(sess.ID, code))
	m.remove(sess.ID)
	if m.db != nil {
		if err := m.db.EndSession(sess.ID, time.Now()); err != nil {
			sessionLog.Warn("statedb_end_failed", slog.String("id", sess.ID), slog.Any("error", err))
		}
	}
	sessionLog.Info("session_exited", slog.String("id", sess.ID), slog.Int("code", code))
}

// pushState reports a detected state if it differs from the last one.
func (m *Manager) pushState(sess *Session, last, next detect.State) detect.State {
	if next == last {
		return last
	}
	m.notifier.SendState(sess.ID, next)
	if m.db != nil {
		if err := m.db.RecordTransition(sess.ID, string(last), string(next), time.Now()); err != nil {
			sessionLog.Warn("statedb_transition_failed", slog.String("id", sess.ID), slog.Any("error", err))
		}
	}
	sessionLog.Debug("state_change",
		slog.String("id", sess.ID),
		slog.String("from", string(last)),
		slog.String("to", string(next)))
	return next
}
