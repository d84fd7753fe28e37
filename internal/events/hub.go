package events

import (
	"sync"
)

type Subscriber struct {
	ID             string
	NotificationID string // Filter by notification ID (empty = all)
	UserID         string // Filter by recipient user ID (empty = all)
	Kind           Kind   // Filter by event kind (empty = all)
	Events         chan Event
}

type Hub struct {
	subscribers map[string]*Subscriber
	mu          sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
	}
}

func (h *Hub) Subscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID] = sub
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.Events)
		delete(h.subscribers, id)
	}
}

func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if h.matchesFilter(sub, event) {
			select {
			case sub.Events <- event:
			default:
				// Non-blocking: skip if subscriber buffer is full
			}
		}
	}
}

func (h *Hub) matchesFilter(sub *Subscriber, event Event) bool {
	if sub.Kind != "" && sub.Kind != event.Kind {
		return false
	}
	if sub.NotificationID != "" && sub.NotificationID != event.NotificationID {
		return false
	}
	if sub.UserID != "" && sub.UserID != event.UserID {
		return false
	}
	return true
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
