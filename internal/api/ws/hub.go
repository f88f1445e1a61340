package ws

import "sync"

type subscription struct {
	ch chan Message
}

// Hub fans messages out to subscribers. Broadcast never blocks: a subscriber
// that cannot keep up drops messages rather than stalling the engine.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

func (h *Hub) Subscribe(buffer int) *subscription {
	sub := &subscription{ch: make(chan Message, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
		}
	}
}
