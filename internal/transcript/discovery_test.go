package transcript

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSessionFile(t *testing.T, dir, name, cwd string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := `{"type":"session_meta","payload":{"cwd":"` + cwd + `"}}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestListSessionFilesRecursive(t *testing.T) {
	root := t.TempDir()
	a := writeSessionFile(t, root, "2026/08/30/rollout-1.jsonl", "/p1")
	b := writeSessionFile(t, root, "rollout-2.jsonl", "/p2")
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	files := ListSessionFiles(root)
	assert.ElementsMatch(t, []string{a, b}, files)
}

func TestListSessionFilesEmptyRoot(t *testing.T) {
	assert.Nil(t, ListSessionFiles(""))
	assert.Empty(t, ListSessionFiles(filepath.Join(t.TempDir(), "absent")))
}

func TestIsCandidateFiltersByMtimeAndCwd(t *testing.T) {
	root := t.TempDir()
	path := writeSessionFile(t, root, "rollout.jsonl", "/work/proj")

	now := time.Now()

	assert.True(t, IsCandidate(path, now, now, "/work/proj"))
	// Within the 5 minute grace window before session start.
	assert.True(t, IsCandidate(path, now.Add(-4*time.Minute), now, "/work/proj"))
	// Too old.
	assert.False(t, IsCandidate(path, now.Add(-6*time.Minute), now, "/work/proj"))
	// Wrong directory.
	assert.False(t, IsCandidate(path, now, now, "/work/other"))
}

func TestNormalizeInput(t *testing.T) {
	assert.Equal(t, "line one\nline two\nline three",
		NormalizeInput("line one\r\nline two\rline three\n"))
}

func TestHistoryContains(t *testing.T) {
	history := "earlier stuff\nline one\nline two\nline three\n"
	assert.True(t, HistoryContains(history, "line one\r\nline two\r\nline three"))
	assert.False(t, HistoryContains(history, "absent text"))
	assert.False(t, HistoryContains(history, ""))
	assert.False(t, HistoryContains(history, "\n\n"))
}
