package detect

import (
	"strings"

	"github.com/attn-sh/ptyhost/internal/ansi"
)

// State is a detected conversational state of an agent session.
type State string

const (
	StateWorking         State = "working"
	StateWaitingInput    State = "waiting_input"
	StatePendingApproval State = "pending_approval"
	StateIdle            State = "idle"
)

// Classify strips ANSI sequences from text and returns the detected state.
// Precedence: pending approval, then waiting for input, then idle when a
// prompt is visible, then working when anything at all is on screen. The
// second return is false when the classifier abstains (blank screen);
// callers must not treat an abstention as a transition.
func (h *Heuristics) Classify(text string) (State, bool) {
	cleaned := ansi.Strip(text)
	lines := splitLines(cleaned)

	if IsPendingApproval(cleaned) {
		return StatePendingApproval, true
	}
	if h.IsWaitingInput(cleaned) {
		return StateWaitingInput, true
	}
	if h.HasPrompt(lines) {
		return StateIdle, true
	}
	if strings.TrimSpace(cleaned) != "" {
		return StateWorking, true
	}
	return "", false
}

// TailLines returns the last max lines of text joined by newlines.
func TailLines(text string, max int) string {
	lines := splitLines(text)
	if len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	return strings.Join(lines, "\n")
}

// TrimToLastChars returns at most max trailing characters (runes) of input.
func TrimToLastChars(input string, max int) string {
	runes := []rune(input)
	if len(runes) <= max {
		return input
	}
	return string(runes[len(runes)-max:])
}

// splitLines splits on newlines, trimming a trailing CR from each line and
// dropping the empty slot a trailing newline would produce.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
