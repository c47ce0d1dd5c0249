package web

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/attn-sh/ptyhost/internal/session"
)

// clientRequest is one command frame from a frontend.
type clientRequest struct {
	Type  string `json:"type"` // spawn, write, resize, kill
	ReqID int    `json:"req_id,omitempty"`

	Spawn *session.SpawnArgs `json:"spawn,omitempty"`

	ID   string `json:"id,omitempty"`
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// serverFrame is one frame to a frontend: either a command result or a
// pushed session event.
type serverFrame struct {
	Type  string `json:"type"` // result, event
	ReqID int    `json:"req_id,omitempty"`
	Pid   int    `json:"pid,omitempty"`
	Error string `json:"error,omitempty"`

	Event *session.Event `json:"event,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// wsConnWriter serializes writes to one websocket connection: the event
// pump and the request handler both write frames.
type wsConnWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	writer := &wsConnWriter{conn: conn}
	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case ev := <-events:
				frame := serverFrame{Type: "event", Event: &ev}
				if err := writer.WriteJSON(frame); err != nil {
					return
				}
			case <-done:
				return
			case <-s.baseCtx.Done():
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		var req clientRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				webLog.Debug("ws_read_failed", slog.String("error", err.Error()))
			}
			return
		}
		s.dispatch(writer, req)
	}
}

func (s *Server) dispatch(writer *wsConnWriter, req clientRequest) {
	result := serverFrame{Type: "result", ReqID: req.ReqID}

	switch req.Type {
	case "spawn":
		if req.Spawn == nil {
			result.Error = "spawn args required"
			break
		}
		pid, err := s.manager.Spawn(*req.Spawn)
		if err != nil {
			result.Error = err.Error()
			break
		}
		result.Pid = pid
	case "write":
		if err := s.manager.Write(req.ID, req.Data); err != nil {
			result.Error = writeErrorString(err)
		}
	case "resize":
		if err := s.manager.Resize(req.ID, req.Cols, req.Rows); err != nil {
			result.Error = writeErrorString(err)
		}
	case "kill":
		if err := s.manager.Kill(req.ID); err != nil {
			result.Error = writeErrorString(err)
		}
	default:
		result.Error = "unknown request type: " + req.Type
	}

	_ = writer.WriteJSON(result)
}

func writeErrorString(err error) string {
	if errors.Is(err, session.ErrSessionNotFound) {
		return "session not found"
	}
	return err.Error()
}
