// Package config collects all environment-driven configuration into one
// value constructed at startup, so components receive it explicitly instead
// of reading the process environment at arbitrary points.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables recognized by the PTY host.
const (
	EnvSocketPath       = "ATTN_SOCKET_PATH"
	EnvConfigPath       = "ATTN_CONFIG_PATH"
	EnvMockPTY          = "ATTN_MOCK_PTY"
	EnvStateDetection   = "ATTN_PTY_STATE_DETECTION"
	EnvAgent            = "ATTN_AGENT"
	EnvClaudeExecutable = "ATTN_CLAUDE_EXECUTABLE"
	EnvCodexExecutable  = "ATTN_CODEX_EXECUTABLE"
	EnvCodexSessionsDir = "ATTN_CODEX_SESSIONS_DIR"
	EnvHeuristicsPath   = "ATTN_HEURISTICS_PATH"
	EnvDBPath           = "ATTN_DB_PATH"
)

// fileConfig is the JSON shape of ~/.attn/config.json. Only socket_path is
// consumed here; the daemon owns the rest of the file.
type fileConfig struct {
	SocketPath string `json:"socket_path"`
}

// Config holds resolved configuration for one process.
type Config struct {
	// Home is the user home directory ("" when it cannot be determined).
	Home string

	// MockPTY substitutes bookkeeping-only sessions for real PTYs.
	MockPTY bool

	// StateDetection is the process-wide detection override; nil means
	// "decide per agent kind".
	StateDetection *bool

	// DefaultAgent is the agent kind assumed when a spawn names none.
	DefaultAgent string

	// ClaudeExecutable / CodexExecutable override the agent binaries
	// launched by the wrapper.
	ClaudeExecutable string
	CodexExecutable  string

	envSocketPath  string
	fileSocketPath string

	codexSessionsDir string
	heuristicsPath   string
	dbPath           string
}

// Load builds a Config from the environment and the JSON config file.
func Load() *Config {
	home, _ := os.UserHomeDir()

	mock := parseBoolEnv(EnvMockPTY)

	cfg := &Config{
		Home:             home,
		MockPTY:          mock != nil && *mock,
		StateDetection:   parseBoolEnv(EnvStateDetection),
		DefaultAgent:     strings.TrimSpace(os.Getenv(EnvAgent)),
		ClaudeExecutable: os.Getenv(EnvClaudeExecutable),
		CodexExecutable:  os.Getenv(EnvCodexExecutable),
		envSocketPath:    os.Getenv(EnvSocketPath),
		codexSessionsDir: os.Getenv(EnvCodexSessionsDir),
		heuristicsPath:   os.Getenv(EnvHeuristicsPath),
		dbPath:           os.Getenv(EnvDBPath),
	}
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = "codex"
	}

	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" && home != "" {
		configPath = filepath.Join(home, ".attn", "config.json")
	}
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			var file fileConfig
			if json.Unmarshal(data, &file) == nil {
				cfg.fileSocketPath = file.SocketPath
			}
		}
	}

	return cfg
}

// Dir returns the base directory for attn files.
func (c *Config) Dir() string {
	if c.Home == "" {
		return filepath.Join(os.TempDir(), ".attn")
	}
	return filepath.Join(c.Home, ".attn")
}

// SocketPath resolves the daemon notification socket path.
// Priority: env override, socket_path from the config file, the default
// path if it exists, the legacy path if it exists, then the default path
// regardless.
func (c *Config) SocketPath() string {
	if c.envSocketPath != "" {
		return c.envSocketPath
	}
	if c.fileSocketPath != "" {
		return c.fileSocketPath
	}

	defaultPath := filepath.Join(c.Dir(), "attn.sock")
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath
	}
	if c.Home != "" {
		legacyPath := filepath.Join(c.Home, ".attn.sock")
		if _, err := os.Stat(legacyPath); err == nil {
			return legacyPath
		}
	}
	return defaultPath
}

// CodexSessionsRoot returns the directory tree codex writes session
// transcripts under.
func (c *Config) CodexSessionsRoot() string {
	if c.codexSessionsDir != "" {
		return c.codexSessionsDir
	}
	if c.Home == "" {
		return ""
	}
	return filepath.Join(c.Home, ".codex", "sessions")
}

// HeuristicsPath returns the optional TOML heuristics override file.
func (c *Config) HeuristicsPath() string {
	if c.heuristicsPath != "" {
		return c.heuristicsPath
	}
	return filepath.Join(c.Dir(), "heuristics.toml")
}

// DBPath returns the state-transition database path.
func (c *Config) DBPath() string {
	if c.dbPath != "" {
		return c.dbPath
	}
	return filepath.Join(c.Dir(), "ptyhost.db")
}

// LogDir returns the directory for rotating log files.
func (c *Config) LogDir() string {
	return c.Dir()
}

// WrapperPath returns the agent wrapper executable: ~/.local/bin/attn when
// present, otherwise a bare name resolved through PATH by the login shell.
func (c *Config) WrapperPath() string {
	if c.Home != "" {
		candidate := filepath.Join(c.Home, ".local", "bin", "attn")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "attn"
}

// parseBoolEnv interprets common boolean spellings; nil means unset or
// unrecognized.
func parseBoolEnv(name string) *bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		v := true
		return &v
	case "0", "false", "no", "off":
		v := false
		return &v
	default:
		return nil
	}
}
