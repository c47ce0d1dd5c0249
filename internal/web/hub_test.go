package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/attn-sh/ptyhost/internal/session"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Emit(session.Event{Event: session.EventData, ID: "s1"})

	select {
	case ev := <-ch:
		assert.Equal(t, "s1", ev.ID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	cancel()

	hub.Emit(session.Event{Event: session.EventData, ID: "s1"})

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event after unsubscribe: %v", ev)
		}
	default:
	}
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < 400; i++ {
		hub.Emit(session.Event{Event: session.EventData, ID: "s1"})
	}

	// The buffer caps delivery; Emit never blocked to get here.
	assert.LessOrEqual(t, len(ch), 256)
}
