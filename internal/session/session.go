// Package session hosts PTY-backed agent sessions: spawning, streaming
// output with escape-safe chunking, conversational state detection, and
// transcript matching for codex sessions.
package session

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by Write, Resize, and Kill when the id
// is unknown or the session already exited.
var ErrSessionNotFound = errors.New("session not found")

// Known agent kinds. Anything else normalizes to codex.
const (
	AgentCodex  = "codex"
	AgentClaude = "claude"
)

// NormalizeAgent maps a client-supplied agent name to a known kind.
func NormalizeAgent(agent string) string {
	switch strings.ToLower(agent) {
	case AgentClaude:
		return AgentClaude
	default:
		return AgentCodex
	}
}

// Session holds one live PTY session's resources and tracking state.
// The fixed identity fields (ID, Cwd, Agent, StartTime, Shell) are set
// at spawn and never change; mu guards the mutable tracking state.
type Session struct {
	ID        string
	Cwd       string
	Agent     string
	StartTime time.Time
	Shell     bool

	// master is the PTY master handle, used for writes and resizes.
	// writeMu serializes writes so interleaved client input stays whole.
	master  *os.File
	writeMu sync.Mutex

	cmd *exec.Cmd

	mu             sync.Mutex
	inputHistory   string
	inputEscape    bool
	transcriptPath string
}

// InputHistory returns a copy of the accumulated typed input.
func (s *Session) InputHistory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputHistory
}

// TranscriptPath returns the matched transcript file, or "" if none yet.
func (s *Session) TranscriptPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptPath
}

// setTranscriptPath records the matched transcript file. The first match
// wins; later calls are ignored.
func (s *Session) setTranscriptPath(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transcriptPath != "" {
		return false
	}
	s.transcriptPath = path
	return true
}

// write sends raw bytes to the PTY.
func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.master.Write(data)
	return err
}
