package websocket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

// Hub tracks live realtime clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	// sessions counts reserved session slots per user.
	sessions map[string]int
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{}), sessions: make(map[string]int)}
}

// TryAcquire reserves a session slot for userID unless limit are already held.
// A non-positive limit means no limit. Every successful call needs a Release.
func (h *Hub) TryAcquire(userID string, limit int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit > 0 && h.sessions[userID] >= limit {
		return false
	}
	h.sessions[userID]++
	return true
}

func (h *Hub) Release(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[userID] <= 1 {
		delete(h.sessions, userID)
		return
	}
	h.sessions[userID]--
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.WithCtx(client.ctx).Debug("New client registered", zap.Int("clients", n))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	if ok {
		client.Close()
		log.WithCtx(client.ctx).Debug("Client unregistered")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionsFor counts the session slots held by userID.
func (h *Hub) SessionsFor(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID]
}

// CloseAll ends every session, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if !client.IsClosed() {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()
	for _, client := range clients {
		client.cancel()
	}
}
