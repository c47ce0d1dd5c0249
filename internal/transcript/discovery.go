package transcript

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// candidateWindow is how far before a session's start time a transcript
// file may have been modified and still be considered a match candidate.
// Agent CLIs create the log slightly before the UI hands control over.
const candidateWindow = 5 * time.Minute

// ListSessionFiles walks root recursively and returns every .jsonl file.
// Unreadable directories are skipped.
func ListSessionFiles(root string) []string {
	if root == "" {
		return nil
	}
	var files []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	return files
}

// IsCandidate reports whether a file modified at modTime may belong to a
// session started at startTime with the given working directory. The cwd
// check opens the file, so the cheap mtime filter runs first.
func IsCandidate(path string, modTime, startTime time.Time, cwd string) bool {
	if modTime.Before(startTime.Add(-candidateWindow)) {
		return false
	}
	metaCwd, ok := SessionMetaCwd(path)
	if !ok {
		return false
	}
	return metaCwd == cwd
}

// NormalizeInput canonicalizes text for substring matching between typed
// input and transcript content: CRLF and lone CR become LF, and trailing
// newlines are trimmed.
func NormalizeInput(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimRight(text, "\n")
}

// HistoryContains reports whether text appears verbatim in the session's
// input history, after normalizing line endings on both sides.
func HistoryContains(history, text string) bool {
	normalized := NormalizeInput(text)
	if normalized == "" {
		return false
	}
	return strings.Contains(NormalizeInput(history), normalized)
}
