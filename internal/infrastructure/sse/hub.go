package sse

import (
	"sync"

	"github.com/aet-hub/aet-hub/internal/domain/notification"
)

// ClientGauge observes the number of connected clients.
type ClientGauge interface {
	SetSSEClients(n int)
}

// Hub manages SSE clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*notification.Client

	// sendMu serializes broadcasts so every client sees messages in call order.
	sendMu sync.Mutex
	gauge  ClientGauge
}

func NewHub(gauge ClientGauge) *Hub {
	return &Hub{
		clients: make(map[string]*notification.Client),
		gauge:   gauge,
	}
}

func (h *Hub) Register(client *notification.Client) {
	h.mu.Lock()
	if old, ok := h.clients[client.ID]; ok && old != client {
		old.Close()
	}
	h.clients[client.ID] = client
	n := len(h.clients)
	h.mu.Unlock()
	h.observe(n)
}

// Unregister closes client. The registry entry is only removed while it still points at
// client, so a stale connection cannot evict the one that replaced it.
func (h *Hub) Unregister(client *notification.Client) {
	client.Close()
	h.mu.Lock()
	if cur, ok := h.clients[client.ID]; ok && cur == client {
		delete(h.clients, client.ID)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.observe(n)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(message *notification.Message) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.RLock()
	clients := make([]*notification.Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var closed []*notification.Client
	for _, c := range clients {
		if err := c.Send(message); err == notification.ErrClientClosed {
			closed = append(closed, c)
		}
	}
	if len(closed) == 0 {
		return
	}

	h.mu.Lock()
	for _, c := range closed {
		if cur, ok := h.clients[c.ID]; ok && cur == c {
			delete(h.clients, c.ID)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.observe(n)
}

// Stop closes every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
	h.mu.Unlock()
	h.observe(0)
}

func (h *Hub) observe(n int) {
	if h.gauge != nil {
		h.gauge.SetSSEClients(n)
	}
}
