package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/events"
)

// Hub maintains active websocket clients: end users receiving in-app
// notifications, keyed by user ID, plus operator dashboard connections that
// receive the full delivery/alert event stream.
type Hub struct {
	users      map[string]map[*Client]bool
	operators  map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// Message is the wire frame pushed to connected clients.
type Message struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

func NewHub() *Hub {
	return &Hub{
		users:      make(map[string]map[*Client]bool),
		operators:  make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run owns the client registry until ctx is done via closed channels on
// shutdown; callers stop it by closing the process.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.operator {
		h.operators[client] = true
	} else {
		conns := h.users[client.userID]
		if conns == nil {
			conns = make(map[*Client]bool)
			h.users[client.userID] = conns
		}
		conns[client] = true
	}
	slog.Info("websocket client connected",
		slog.String("code", "WS_CONNECT"),
		slog.String("user_id", client.userID),
		slog.Bool("operator", client.operator),
	)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.operator {
		if _, ok := h.operators[client]; ok {
			delete(h.operators, client)
			close(client.send)
		}
		return
	}
	if conns, ok := h.users[client.userID]; ok {
		if _, ok := conns[client]; ok {
			delete(conns, client)
			close(client.send)
		}
		if len(conns) == 0 {
			delete(h.users, client.userID)
		}
	}
}

// SendToUser pushes a message to every live connection of userID. Returns
// false when the user has no connection, so the websocket channel adapter can
// report an offline failure instead of dropping the message silently.
func (h *Hub) SendToUser(userID string, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal websocket message", slog.String("code", "WS_ERROR"), slog.Any("error", err))
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.users[userID]
	if len(conns) == 0 {
		return false
	}
	delivered := false
	for client := range conns {
		select {
		case client.send <- data:
			delivered = true
		default:
			// Slow consumer: drop rather than block the sender.
		}
	}
	return delivered
}

// Connected reports whether userID has at least one live connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// StreamEvents forwards pipeline events to operator connections. Intended to
// run as a goroutine over a subscription to the events hub.
func (h *Hub) StreamEvents(ch <-chan events.Event) {
	for ev := range ch {
		h.broadcastOperators(Message{
			Type:      string(ev.Kind),
			Payload:   ev,
			Timestamp: ev.Timestamp,
		})
	}
}

func (h *Hub) broadcastOperators(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.operators {
		select {
		case client.send <- data:
		default:
		}
	}
}
