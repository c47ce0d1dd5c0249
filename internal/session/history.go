package session

import (
	"unicode"
	"unicode/utf8"
)

// maxHistoryBytes caps the input history buffer. Matching against
// transcripts only needs recent prompts, not the whole session.
const maxHistoryBytes = 20000

// UpdateInputHistory folds typed input into the session's history,
// filtering terminal noise so the result resembles what the agent CLI
// actually received: escape sequences are dropped (arrow keys, function
// keys), backspace and DEL remove the previous character, carriage
// return becomes a newline, and other control characters are ignored.
func (s *Session) UpdateInputHistory(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range data {
		if s.inputEscape {
			// CSI-style sequences end on a letter or '~'.
			if isASCIIAlpha(ch) || ch == '~' {
				s.inputEscape = false
			}
			continue
		}
		switch {
		case ch == 0x1b:
			s.inputEscape = true
		case ch == 0x7f || ch == '\b':
			s.inputHistory = popRune(s.inputHistory)
		case ch == '\r':
			s.inputHistory += "\n"
		case unicode.IsControl(ch) && ch != '\n' && ch != '\t':
			// drop
		default:
			s.inputHistory += string(ch)
		}
	}

	if len(s.inputHistory) > maxHistoryBytes {
		s.inputHistory = trimHistory(s.inputHistory, maxHistoryBytes)
	}
}

func isASCIIAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func popRune(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}

// trimHistory keeps the last maxLen bytes, advancing past any partial
// rune at the cut point.
func trimHistory(history string, maxLen int) string {
	if len(history) <= maxLen {
		return history
	}
	start := len(history) - maxLen
	for start < len(history) && !utf8.RuneStart(history[start]) {
		start++
	}
	return history[start:]
}
