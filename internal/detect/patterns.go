package detect

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/attn-sh/ptyhost/internal/logging"
)

var detectLog = logging.ForComponent(logging.CompDetect)

// Heuristics holds the per-agent detection tables. The values are tuned
// against one agent's terminal conventions (bullet glyphs, chevron prompts);
// porting to another agent's UI means swapping tables, not code.
type Heuristics struct {
	// PromptGlyphs are characters that start a prompt line.
	PromptGlyphs []rune

	// AssistantGlyphs are bullet characters that start an assistant reply line.
	AssistantGlyphs []rune

	// WorkingVerbs mark bullet lines that are transient status, not replies.
	WorkingVerbs []string

	// PromptMarkers are inline prompt substrings (agents often append the
	// prompt to the same line as the last reply).
	PromptMarkers []string

	// StatusMarkers are inline status-bar substrings.
	StatusMarkers []string

	// RequestPhrases indicate the assistant is asking the user for input.
	RequestPhrases []string

	// ListTriggers paired with a numbered list indicate a selection request.
	ListTriggers []string
}

// DefaultHeuristics returns the built-in detection tables for a known agent.
// Returns nil for agents with no defaults.
func DefaultHeuristics(agent string) *Heuristics {
	switch strings.ToLower(agent) {
	case "codex":
		return &Heuristics{
			PromptGlyphs:    []rune{'>', '›', '❯', '»', '❱'},
			AssistantGlyphs: []rune{'•', '·', '●'},
			WorkingVerbs:    []string{"working", "thinking", "running", "executing"},
			PromptMarkers:   []string{" › ", " > ", "❯ ", "» ", "❱ "},
			StatusMarkers:   []string{"context left", "for shortcuts"},
			RequestPhrases: []string{
				"let me know what",
				"let me know if",
				"tell me what else",
				"tell me what to do",
				"what should i do",
				"what would you like",
				"what do you want",
				"how can i help",
				"can you",
				"could you",
				"do you want",
			},
			ListTriggers: []string{"pick one", "choose", "select", "tell me"},
		}
	default:
		return nil
	}
}

// Defaults returns the codex tables, the tuning target for this detector.
func Defaults() *Heuristics {
	return DefaultHeuristics("codex")
}

// heuristicsFile is the TOML shape for user overrides, keyed by agent:
//
//	[agents.codex]
//	prompt_markers = ["❯ "]
//	status_markers = ["context left"]
type heuristicsFile struct {
	Agents map[string]heuristicsOverride `toml:"agents"`
}

type heuristicsOverride struct {
	PromptGlyphs    string   `toml:"prompt_glyphs"`
	AssistantGlyphs string   `toml:"assistant_glyphs"`
	WorkingVerbs    []string `toml:"working_verbs"`
	PromptMarkers   []string `toml:"prompt_markers"`
	StatusMarkers   []string `toml:"status_markers"`
	RequestPhrases  []string `toml:"request_phrases"`
	ListTriggers    []string `toml:"list_triggers"`
}

// LoadHeuristics returns the tables for agent, applying overrides from the
// TOML file at path when it exists. Non-empty override fields replace the
// corresponding default table wholesale.
func LoadHeuristics(agent, path string) (*Heuristics, error) {
	base := DefaultHeuristics(agent)
	if base == nil {
		base = Defaults()
	}
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, fmt.Errorf("read heuristics file: %w", err)
	}

	var file heuristicsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse heuristics file %s: %w", path, err)
	}

	override, ok := file.Agents[strings.ToLower(agent)]
	if !ok {
		return base, nil
	}

	merged := *base
	if override.PromptGlyphs != "" {
		merged.PromptGlyphs = []rune(override.PromptGlyphs)
	}
	if override.AssistantGlyphs != "" {
		merged.AssistantGlyphs = []rune(override.AssistantGlyphs)
	}
	if len(override.WorkingVerbs) > 0 {
		merged.WorkingVerbs = override.WorkingVerbs
	}
	if len(override.PromptMarkers) > 0 {
		merged.PromptMarkers = override.PromptMarkers
	}
	if len(override.StatusMarkers) > 0 {
		merged.StatusMarkers = override.StatusMarkers
	}
	if len(override.RequestPhrases) > 0 {
		merged.RequestPhrases = override.RequestPhrases
	}
	if len(override.ListTriggers) > 0 {
		merged.ListTriggers = override.ListTriggers
	}
	detectLog.Debug("loaded heuristics overrides", "agent", agent, "path", path)
	return &merged, nil
}
