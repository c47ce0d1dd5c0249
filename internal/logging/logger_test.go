package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitDiscardWhenNotDebug(t *testing.T) {
	Init(Config{})
	defer Shutdown()

	// Must not panic and must return a usable logger.
	Logger().Info("discarded")
}

func TestInitWritesJSONToLogDir(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "debug", Debug: true})
	defer Shutdown()

	Logger().Info("hello", "k", "v")

	data, err := os.ReadFile(filepath.Join(dir, "ptyhost.log"))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	require.Equal(t, "hello", entry["msg"])
	require.Equal(t, "v", entry["k"])
}

func TestForComponentBindsLate(t *testing.T) {
	// Component logger created before Init must pick up the real handler.
	log := ForComponent(CompSession)

	dir := t.TempDir()
	Init(Config{LogDir: dir, Debug: true})
	defer Shutdown()

	log.Info("late bind")

	data, err := os.ReadFile(filepath.Join(dir, "ptyhost.log"))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	require.Equal(t, CompSession, entry["component"])
}
