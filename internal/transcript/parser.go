// Package transcript reads the append-only JSONL session logs that agent
// CLIs write, correlating a live terminal session with its conversation.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// envelope is the outer shape of a codex session-log record.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// eventPayload is an "event_msg" payload: a typed event with a flat message.
type eventPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// responsePayload is a "response_item" payload: a role-attributed message
// whose content is a list of text-bearing blocks.
type responsePayload struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sessionMeta struct {
	Type    string `json:"type"`
	Payload struct {
		Cwd string `json:"cwd"`
	} `json:"payload"`
}

// SessionMetaCwd reads the first line of a session log and returns the
// working directory it declares. Returns false for files whose first record
// is not session metadata.
func SessionMetaCwd(path string) (string, bool) {
	file, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	line, err := reader.ReadBytes('\n')
	if len(line) == 0 && err != nil {
		return "", false
	}

	var meta sessionMeta
	if json.Unmarshal(bytes.TrimSpace(line), &meta) != nil {
		return "", false
	}
	if meta.Type != "session_meta" || meta.Payload.Cwd == "" {
		return "", false
	}
	return meta.Payload.Cwd, true
}

// ExtractUserMessage returns the user-authored text of a record, if any.
func ExtractUserMessage(line []byte) (string, bool) {
	var env envelope
	if json.Unmarshal(line, &env) != nil {
		return "", false
	}

	switch env.Type {
	case "event_msg":
		var payload eventPayload
		if json.Unmarshal(env.Payload, &payload) != nil {
			return "", false
		}
		if payload.Type == "user_message" && payload.Message != "" {
			return payload.Message, true
		}
	case "response_item":
		var payload responsePayload
		if json.Unmarshal(env.Payload, &payload) != nil {
			return "", false
		}
		if payload.Type == "message" && payload.Role == "user" {
			return extractTextContent(payload.Content)
		}
	}
	return "", false
}

// ExtractAssistantMessage returns the agent-authored text of a record, if any.
func ExtractAssistantMessage(line []byte) (string, bool) {
	var env envelope
	if json.Unmarshal(line, &env) != nil {
		return "", false
	}

	switch env.Type {
	case "event_msg":
		var payload eventPayload
		if json.Unmarshal(env.Payload, &payload) != nil {
			return "", false
		}
		if payload.Type == "agent_message" && payload.Message != "" {
			return payload.Message, true
		}
	case "response_item":
		var payload responsePayload
		if json.Unmarshal(env.Payload, &payload) != nil {
			return "", false
		}
		if payload.Type == "message" && payload.Role == "assistant" {
			return extractTextContent(payload.Content)
		}
	}
	return "", false
}

// extractTextContent handles content that is either a plain string or an
// array of text blocks whose entries concatenate in order.
func extractTextContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var str string
	if json.Unmarshal(raw, &str) == nil && strings.TrimSpace(str) != "" {
		return str, true
	}

	var blocks []contentBlock
	if json.Unmarshal(raw, &blocks) != nil {
		return "", false
	}
	var parts []string
	for _, block := range blocks {
		switch block.Type {
		case "input_text", "output_text", "text":
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
	}
	joined := strings.Join(parts, "\n")
	if strings.TrimSpace(joined) == "" {
		return "", false
	}
	return joined, true
}

// TailScan is the result of one incremental pass over a session log.
type TailScan struct {
	// LastUser is the most recent user-authored message seen in the
	// scanned range ("" when none).
	LastUser string

	// LastAssistant is the most recent agent-authored message seen in the
	// scanned range ("" when none).
	LastAssistant string

	// Offset is the byte position to resume the next scan from.
	Offset int64
}

// ScanFrom reads a session log from offset to EOF, extracting the most
// recent user and assistant messages in that range. Lines that are not
// valid JSON are skipped.
func ScanFrom(path string, offset int64) (TailScan, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailScan{}, fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailScan{}, fmt.Errorf("seek transcript: %w", err)
	}

	scan := TailScan{Offset: offset}
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			scan.Offset += int64(len(line))
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				if text, ok := ExtractUserMessage(trimmed); ok {
					scan.LastUser = text
				}
				if text, ok := ExtractAssistantMessage(trimmed); ok {
					scan.LastAssistant = text
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return scan, nil
			}
			return scan, fmt.Errorf("read transcript: %w", err)
		}
	}
}
