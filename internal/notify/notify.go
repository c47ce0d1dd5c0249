// Package notify delivers session state changes to the attn daemon over
// its unix socket. Delivery is fire and forget: the daemon being absent
// is normal and never surfaces as an error to callers.
package notify

import (
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/attn-sh/ptyhost/internal/config"
	"github.com/attn-sh/ptyhost/internal/detect"
	"github.com/attn-sh/ptyhost/internal/logging"
)

var notifyLog = logging.ForComponent(logging.CompNotify)

const (
	dialTimeout  = 500 * time.Millisecond
	writeTimeout = 500 * time.Millisecond

	// Socket path resolution stats the filesystem, so cache the result
	// briefly. A daemon restart that moves the socket picks up within this.
	pathCacheTTL = 2 * time.Second
)

// stateMessage tells the daemon a session changed conversational state.
type stateMessage struct {
	Cmd   string `json:"cmd"`
	ID    string `json:"id"`
	State string `json:"state"`
}

// stopMessage tells the daemon a session's agent finished a turn.
// TranscriptPath is included when known so the daemon can read the
// final assistant message without asking back.
type stopMessage struct {
	Cmd            string `json:"cmd"`
	ID             string `json:"id"`
	TranscriptPath string `json:"transcript_path,omitempty"`
}

// Notifier writes newline-delimited JSON messages to the daemon socket.
// Safe for concurrent use.
type Notifier struct {
	cfg *config.Config

	pathSf singleflight.Group

	mu         sync.RWMutex
	cachedPath string
	cachedAt   time.Time
}

func New(cfg *config.Config) *Notifier {
	return &Notifier{cfg: cfg}
}

// SendState reports a classified state for the session. Errors are
// logged at debug and swallowed.
func (n *Notifier) SendState(id string, state detect.State) {
	n.send(stateMessage{Cmd: "state", ID: id, State: string(state)})
}

// SendStop reports that the session's agent appears to have completed a
// response. transcriptPath may be empty.
func (n *Notifier) SendStop(id, transcriptPath string) {
	n.send(stopMessage{Cmd: "stop", ID: id, TranscriptPath: transcriptPath})
}

func (n *Notifier) send(msg any) {
	path := n.socketPath()
	if path == "" {
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		notifyLog.Debug("notify_marshal_failed", slog.Any("error", err))
		return
	}
	payload = append(payload, '\n')

	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		// Daemon not running. Expected, stay quiet.
		notifyLog.Debug("notify_dial_failed", slog.String("socket", path), slog.Any("error", err))
		return
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(payload); err != nil {
		notifyLog.Debug("notify_write_failed", slog.String("socket", path), slog.Any("error", err))
	}
}

// socketPath resolves the daemon socket. Resolution stats the config
// dir, so concurrent callers are deduplicated: many sessions changing
// state at once produce a single lookup.
func (n *Notifier) socketPath() string {
	n.mu.RLock()
	if n.cachedPath != "" && time.Since(n.cachedAt) < pathCacheTTL {
		path := n.cachedPath
		n.mu.RUnlock()
		return path
	}
	n.mu.RUnlock()

	v, _, _ := n.pathSf.Do("socket", func() (interface{}, error) {
		n.mu.RLock()
		if n.cachedPath != "" && time.Since(n.cachedAt) < pathCacheTTL {
			path := n.cachedPath
			n.mu.RUnlock()
			return path, nil
		}
		n.mu.RUnlock()

		path := n.cfg.SocketPath()
		n.mu.Lock()
		n.cachedPath = path
		n.cachedAt = time.Now()
		n.mu.Unlock()
		return path, nil
	})
	path, _ := v.(string)
	return path
}
