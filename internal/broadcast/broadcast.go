// Package broadcast fans conversation change events out to in-process subscribers.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"
)

const EventConversationUpdated = "conversation_updated"

// Event announces that a conversation changed.
type Event struct {
	Type           string    `json:"type"`
	ConversationID int64     `json:"conversation_id"`
	MessageCount   int       `json:"message_count"`
	At             time.Time `json:"at"`
}

// ConversationUpdated builds the standard change event.
func ConversationUpdated(convID int64, count int, at time.Time) Event {
	return Event{Type: EventConversationUpdated, ConversationID: convID, MessageCount: count, At: at}
}

// Publisher accepts events.
type Publisher interface {
	Publish(Event)
}

// Hub delivers each event to every subscriber without blocking. A subscriber
// whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: map[int]chan Event{}}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (h *Hub) Subscribe(buf int) (<-chan Event, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Event, buf)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		if !offer(ch, ev) {
			h.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped for full buffers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func offer[T any](ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}
