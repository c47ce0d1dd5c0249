// Package detect classifies agent terminal output into conversational
// states using text heuristics over ANSI-stripped content. The heuristics
// have known false-positive/negative tolerance; they are pattern matching,
// not language understanding.
package detect

import (
	"strings"
	"unicode/utf8"
)

// IsPromptLine reports whether the line's first non-whitespace character is
// a prompt glyph.
func (h *Heuristics) IsPromptLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(trimmed)
	for _, g := range h.PromptGlyphs {
		if first == g {
			return true
		}
	}
	return false
}

// IsAssistantLine reports whether the line is a finished assistant reply:
// it starts with a bullet glyph and the text after the bullet is not a
// transient working-status verb.
func (h *Heuristics) IsAssistantLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return false
	}
	first, size := utf8.DecodeRuneInString(trimmed)
	bullet := false
	for _, g := range h.AssistantGlyphs {
		if first == g {
			bullet = true
			break
		}
	}
	if !bullet {
		return false
	}

	rest := strings.ToLower(strings.TrimLeft(trimmed[size:], " \t"))
	for _, verb := range h.WorkingVerbs {
		if strings.HasPrefix(rest, verb) {
			return false
		}
	}
	return true
}

// LastAssistantText scans lines bottom-up and returns the text of the most
// recent assistant line, with any inline prompt or status marker tail
// truncated off. Returns false when no assistant text remains.
func (h *Heuristics) LastAssistantText(lines []string) (string, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if !h.IsAssistantLine(trimmed) {
			continue
		}
		_, size := utf8.DecodeRuneInString(trimmed)
		text := strings.TrimSpace(trimmed[size:])
		// Codex often appends the prompt and status bar to the reply line.
		for _, marker := range h.PromptMarkers {
			if idx := strings.Index(text, marker); idx >= 0 {
				text = text[:idx]
			}
		}
		for _, marker := range h.StatusMarkers {
			if idx := strings.Index(text, marker); idx >= 0 {
				text = text[:idx]
			}
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, true
		}
	}
	return "", false
}

// HasPrompt reports whether any line is a prompt line or carries an inline
// prompt marker.
func (h *Heuristics) HasPrompt(lines []string) bool {
	for _, line := range lines {
		if h.IsPromptLine(line) {
			return true
		}
		for _, marker := range h.PromptMarkers {
			if strings.Contains(line, marker) {
				return true
			}
		}
	}
	return false
}

// IsPendingApproval reports whether the text shows a command-approval
// dialog. Matches the explicit codex approval banner, or an approval
// keyword paired with a yes/no cue, or a reason line paired with an
// explicit proceed/deny option.
func IsPendingApproval(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "would you like to run the following command") {
		return true
	}

	hasKeyword := containsAny(lower,
		"approve", "approval", "permission", "allow", "confirm", "proceed",
		"run this command", "execute command", "run command")
	hasPrompt := containsAny(lower,
		"y/n", "[y/n", "(y/n", "[y/n]", "y or n", "yes/no",
		"press y", "type y", "press enter to confirm")
	hasReason := strings.Contains(lower, "reason:")
	hasOption := containsAny(lower,
		"yes, proceed", "don't ask again", "dont ask again", "no, and tell")

	return (hasKeyword && hasPrompt) || (hasReason && hasOption)
}

// IsWaitingInput reports whether the tail of the terminal text indicates
// the agent is waiting for the user to type something.
func (h *Heuristics) IsWaitingInput(text string) bool {
	lower := strings.ToLower(text)
	if containsAny(lower,
		"enter your response", "type your response",
		"your response:", "your reply:", "input:") {
		return true
	}

	nonEmpty := nonEmptyLines(text)
	if len(nonEmpty) == 0 {
		return false
	}

	last := nonEmpty[len(nonEmpty)-1]
	if strings.HasSuffix(last, "You:") || strings.HasSuffix(last, "User:") {
		return true
	}

	if h.IsPromptLine(last) {
		if assistant, ok := h.LastAssistantText(nonEmpty); ok {
			return h.requestsInput(assistant, text, nonEmpty)
		}
		// Bare prompt with no reply above it: the agent is asking.
		return true
	}

	// The status bar can render after the prompt; look at the last 4 lines
	// for a prompt plus a status marker.
	tail := nonEmpty
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	hasPromptLine := false
	hasStatus := false
	for _, line := range tail {
		if h.IsPromptLine(line) {
			hasPromptLine = true
		}
		for _, marker := range h.StatusMarkers {
			if strings.Contains(line, marker) {
				hasStatus = true
			}
		}
	}
	if hasPromptLine && hasStatus {
		if assistant, ok := h.LastAssistantText(nonEmpty); ok {
			return h.requestsInput(assistant, text, nonEmpty)
		}
		return true
	}

	return false
}

// requestsInput reports whether the assistant text is asking the user for
// something: a question mark, a known request phrase, or a numbered list
// paired with a selection trigger anywhere in the visible text.
func (h *Heuristics) requestsInput(assistantText, fullText string, lines []string) bool {
	if strings.Contains(assistantText, "?") {
		return true
	}

	lowerAssistant := strings.ToLower(assistantText)
	for _, phrase := range h.RequestPhrases {
		if strings.Contains(lowerAssistant, phrase) {
			return true
		}
	}

	if hasNumberedList(lines) {
		lowerFull := strings.ToLower(fullText)
		for _, trigger := range h.ListTriggers {
			if strings.Contains(lowerFull, trigger) {
				return true
			}
		}
	}

	return false
}

// hasNumberedList reports whether any line starts with "<digit>.".
func hasNumberedList(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if len(trimmed) >= 2 && trimmed[0] >= '0' && trimmed[0] <= '9' && trimmed[1] == '.' {
			return true
		}
	}
	return false
}

// nonEmptyLines splits text on newlines, trims trailing CR/LF, and drops
// blank lines, preserving leading whitespace.
func nonEmptyLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
