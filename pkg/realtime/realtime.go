// Package realtime fans explorer state changes out to any number of
// listeners, such as WebSocket sessions of the page shell.
//
// Delivery is best effort: every listener owns a buffered channel and an
// event is dropped for a listener whose buffer is full. A slow browser tab
// never stalls the explorer. There is no replay; late listeners start from a
// state snapshot instead.
package realtime

import (
	"sync"
	"time"
)

// Event types published by the explorer.
const (
	TypeEra       = "era"
	TypeQuery     = "query"
	TypeRender    = "render"
	TypeHighlight = "highlight"
	TypeError     = "error"
	// TypeHeartbeat keeps idle streams alive. It is written by transports,
	// never published on the hub.
	TypeHeartbeat = "heartbeat"
)

// StateEvent is the envelope written to listeners.
//
// Fields:
//   - Type:  one of the Type* constants.
//   - Token: request token of the fetch the event belongs to, when any.
//   - Time:  publication time (UTC).
//   - Data:  type specific payload, JSON encodable.
type StateEvent struct {
	Type  string    `json:"type"`
	Token uint64    `json:"token,omitempty"`
	Time  time.Time `json:"time"`
	Data  any       `json:"data,omitempty"`
}

// NewEvent stamps a new event with the current time.
func NewEvent(typ string, token uint64, data any) StateEvent {
	return StateEvent{Type: typ, Token: token, Time: time.Now().UTC(), Data: data}
}

// Hub is an in-memory fan-out dispatcher. It is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan StateEvent
	nextID    uint64
	bufSize   int
	published uint64
	dropped   uint64
}

// NewHub constructs a hub with the given per-listener buffer size.
// If bufSize <= 0, a default of 32 is used.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{
		listeners: make(map[uint64]chan StateEvent),
		bufSize:   bufSize,
	}
}

// Register adds a new listener and returns its id and receive channel.
// Callers must later Unregister(id) to release resources.
func (h *Hub) Register() (uint64, <-chan StateEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan StateEvent, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes the listener and closes its channel. Unknown ids are
// ignored, so it is safe to call more than once.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Publish delivers ev to every listener without blocking.
func (h *Hub) Publish(ev StateEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published++
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
			h.dropped++
		}
	}
}

// Size returns the current number of listeners.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Stats returns how many events were published and how many per-listener
// deliveries were dropped.
func (h *Hub) Stats() (published, dropped uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.published, h.dropped
}
