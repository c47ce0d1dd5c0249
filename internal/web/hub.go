package web

import (
	"sync"

	"github.com/attn-sh/ptyhost/internal/session"
)

// Hub fans session events out to connected clients. It implements
// session.Emitter so the manager stays unaware of transport.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan session.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan session.Event]struct{})}
}

// Emit delivers an event to every subscriber. Slow subscribers drop
// events rather than stall the PTY reader goroutines. A dropped data
// frame loses those bytes for that subscriber; a client that falls this
// far behind must reattach to get a coherent screen.
func (h *Hub) Emit(ev session.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers an event channel. The returned function removes
// the subscription and drains it.
func (h *Hub) Subscribe() (<-chan session.Event, func()) {
	ch := make(chan session.Event, 256)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		for {
			select {
			case <-ch:
			default:
				return
			}
		}
	}
	return ch, cancel
}
