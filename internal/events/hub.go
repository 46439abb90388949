// Package events is an in-process activity feed for webhook deliveries and
// job lifecycle changes, streamed to clients over SSE.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Activity types published by the service.
const (
	TypeWebhookCompleted = "webhook.completed"
	TypeWebhookRejected  = "webhook.rejected"
	TypeWebhookFailed    = "webhook.failed"
	TypeJobClaimed       = "job.claimed"
	TypeJobCompleted     = "job.completed"
	TypeJobRequeued      = "job.requeued"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
// IDs are assigned under mu, so every subscriber sees them in order.
type Hub struct {
	mu     sync.Mutex
	lastID int64
	ring   []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish records an event and fans it out. Slow subscribers drop events
// rather than block the publisher.
func (h *Hub) Publish(eventType string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	h.lastID++
	ev := Event{
		ID:   h.lastID,
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.pushLocked(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribeLocked()
}

// SubscribeSince returns the buffered events after lastID together with a
// live subscription. Both are taken under one lock: the channel carries only
// events newer than the last replayed one.
func (h *Hub) SubscribeSince(lastID int64) ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := h.snapshotLocked(lastID)
	ch, cancel := h.subscribeLocked()
	return replay, ch, cancel
}

func (h *Hub) subscribeLocked() (<-chan Event, func()) {
	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 32)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked(lastID)
}

func (h *Hub) snapshotLocked(lastID int64) []Event {
	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
