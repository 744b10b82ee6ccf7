// internal/websocket/hub.go
package websocket

import (
	"context"
	"log"
	"sync"

	wstypes "sessiongate-service/internal/domain/websocket"
	"sessiongate-service/internal/domain/session"
)

// Hub keys connections by session token: a displacement targets one
// session, not every connection the user has.
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	events chan *sessionEvent
}

type sessionEvent struct {
	token   string
	message *wstypes.WSMessage
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan *sessionEvent, 256),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

// SessionEnded pushes a termination event to whoever still holds the
// session's connection. Delivery is best effort: the liveness poll is
// the guaranteed path, this one just arrives faster.
func (h *Hub) SessionEnded(token string, reason session.EndReason) {
	msg := wstypes.NewMessage(wstypes.EventTypeSessionEnded, wstypes.SessionEndedData{
		Reason:  string(reason),
		Message: endedMessage(reason),
	})

	select {
	case h.events <- &sessionEvent{token: token, message: msg}:
	default:
		log.Printf("websocket event queue full, dropping session_ended push")
	}
}

func endedMessage(reason session.EndReason) string {
	switch reason {
	case session.EndReasonNewLogin:
		return "Your account was opened on another device, so this session has ended."
	case session.EndReasonLogout:
		return "You have been logged out."
	default:
		return "Your session has ended."
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.sessionToken] == nil {
		h.clients[client.sessionToken] = make(map[*Client]bool)
	}
	h.clients[client.sessionToken][client] = true

	log.Printf("Client connected: user=%d, total=%d", client.userID, h.totalClients())

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"user_id": client.userID,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.sessionToken]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.sessionToken)
			}

			log.Printf("Client disconnected: user=%d, total=%d", client.userID, h.totalClients())
		}
	}
}

func (h *Hub) deliver(ev *sessionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[ev.token] {
		client.SendMessage(ev.message)
	}
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
}
