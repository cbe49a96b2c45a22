package editor

import "sync"

type EventType string

const (
	EventStatus EventType = "status"
	EventAI     EventType = "ai"
	EventClosed EventType = "closed"
)

// Event is pushed to websocket subscribers of a session
type Event struct {
	Type   EventType   `json:"type"`
	Status *SaveStatus `json:"status,omitempty"`
	AI     *AISnapshot `json:"ai,omitempty"`
}

// Hub fans session events out to subscribers. Slow subscribers lose events
// rather than block the session.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel of events and a function that ends the subscription
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close sends a final closed event and ends all subscriptions
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		select {
		case ch <- Event{Type: EventClosed}:
		default:
		}
		close(ch)
		delete(h.subs, ch)
	}
}
