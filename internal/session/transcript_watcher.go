package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/attn-sh/ptyhost/internal/logging"
	"github.com/attn-sh/ptyhost/internal/transcript"
)

var transcriptLog = logging.ForComponent(logging.CompTranscript)

// pollInterval paces transcript scans when filesystem events are quiet.
// Agent CLIs append in bursts, so a sub-second poll keeps stop
// notifications snappy without hammering the disk.
const pollInterval = 750 * time.Millisecond

// watchTranscripts pairs a codex session with its on-disk transcript and
// reports turn completions. It exits when the session leaves the
// registry.
//
// Matching works by elimination: every .jsonl under the sessions root
// whose mtime and recorded cwd fit the session is scanned incrementally;
// the first file whose latest user message appears in the session's
// typed input history is adopted. After adoption only that file is
// scanned, and each new assistant message triggers a stop notification.
func (m *Manager) watchTranscripts(sess *Session) {
	offsets := make(map[string]int64)
	matchedPath := ""
	lastAssistant := ""
	assistantSeen := false

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// fsnotify wakes the loop early when the sessions root changes;
	// scanLimit keeps event storms from turning into rescan storms.
	wake, stopWatch := watchSessionsRoot(m.cfg.CodexSessionsRoot())
	defer stopWatch()
	scanLimit := rate.NewLimiter(rate.Every(250*time.Millisecond), 1)

	for {
		if m.get(sess.ID) == nil {
			return
		}

		root := m.cfg.CodexSessionsRoot()
		if root == "" {
			<-ticker.C
			continue
		}

		files := transcript.ListSessionFiles(root)
		if len(files) == 0 {
			<-ticker.C
			continue
		}

		if matchedPath == "" {
			matchedPath = sess.TranscriptPath()
		}

		for _, path := range files {
			if _, tracked := offsets[path]; tracked {
				continue
			}
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if transcript.IsCandidate(path, info.ModTime(), sess.StartTime, sess.Cwd) {
				offsets[path] = 0
			}
		}

		paths := make([]string, 0, len(offsets))
		if matchedPath != "" {
			paths = append(paths, matchedPath)
		} else {
			for path := range offsets {
				paths = append(paths, path)
			}
		}

		for _, path := range paths {
			offset, tracked := offsets[path]
			if !tracked {
				continue
			}
			scan, err := transcript.ScanFrom(path, offset)
			if err != nil {
				offsets[path] = 0
				continue
			}
			offsets[path] = scan.Offset

			if matchedPath == "" && scan.LastUser != "" &&
				transcript.HistoryContains(sess.InputHistory(), scan.LastUser) {
				matchedPath = path
				m.adoptTranscript(sess, path)
			}

			if matchedPath == path && scan.LastAssistant != "" {
				if !assistantSeen || scan.LastAssistant != lastAssistant {
					assistantSeen = true
					lastAssistant = scan.LastAssistant
					m.notifier.SendStop(sess.ID, path)
				}
			}
		}

		select {
		case <-ticker.C:
		case <-wake:
			_ = scanLimit.Wait(context.Background())
		}
	}
}

func (m *Manager) adoptTranscript(sess *Session, path string) {
	if !sess.setTranscriptPath(path) {
		return
	}
	m.emitter.Emit(transcriptEvent(sess.ID))
	m.notifier.SendStop(sess.ID, path)
	if m.db != nil {
		if err := m.db.SetTranscriptPath(sess.ID, path); err != nil {
			transcriptLog.Warn("statedb_transcript_failed", slog.String("id", sess.ID), slog.Any("error", err))
		}
	}
	transcriptLog.Info("transcript_matched",
		slog.String("id", sess.ID),
		slog.String("path", path))
}

// watchSessionsRoot returns a channel that receives whenever files under
// root change, plus a stop function. The watcher covers root and its day
// directories; failure to watch degrades to pure polling.
func watchSessionsRoot(root string) (<-chan struct{}, func()) {
	wake := make(chan struct{}, 1)
	if root == "" {
		return wake, func() {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		transcriptLog.Debug("fsnotify_unavailable", slog.Any("error", err))
		return wake, func() {}
	}

	addDirs(watcher, root)

	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				// New day directories appear as the clock rolls over.
				if ev.Op.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						addDirs(watcher, ev.Name)
					}
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return wake, func() { _ = watcher.Close() }
}

// addDirs registers dir and its subdirectories with the watcher.
func addDirs(watcher *fsnotify.Watcher, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			_ = watcher.Add(path)
		}
		return nil
	})
}
