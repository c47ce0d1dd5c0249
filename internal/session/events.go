package session

import "encoding/base64"

// Event kinds delivered to attached clients.
const (
	EventData       = "data"
	EventExit       = "exit"
	EventTranscript = "transcript"
)

// Event is one frame of session output or lifecycle change. Data events
// carry base64-encoded raw terminal bytes so the payload survives JSON
// transport unmangled.
type Event struct {
	Event   string `json:"event"`
	ID      string `json:"id"`
	Data    string `json:"data,omitempty"`
	Code    int    `json:"code"`
	Matched bool   `json:"matched,omitempty"`
}

// Emitter receives session events. Implementations must be safe for
// concurrent use; reader goroutines emit from multiple sessions at once.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

func dataEvent(id string, raw []byte) Event {
	return Event{
		Event: EventData,
		ID:    id,
		Data:  base64.StdEncoding.EncodeToString(raw),
	}
}

func exitEvent(id string, code int) Event {
	return Event{Event: EventExit, ID: id, Code: code}
}

func transcriptEvent(id string) Event {
	return Event{Event: EventTranscript, ID: id, Matched: true}
}
