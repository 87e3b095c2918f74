package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Hub tracks the live clients of the process so they can be counted and shut
// down together. It is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	connected prometheus.Gauge
}

// NewHub creates a Hub and registers its connected-clients gauge on reg. A nil
// reg leaves the gauge unregistered.
func NewHub(reg prometheus.Registerer) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connected_clients",
			Help: "WebSocket clients currently connected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(h.connected)
	}
	return h
}

// Register adds c and removes it again once its pumps stop.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.connected.Inc()
	log.Debug().Str("component", "ws").Str("client", c.ID).Str("user_id", c.UserID).Msg("client registered")

	go func() {
		<-c.Done()
		h.unregister(c)
	}()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.mu.Unlock()
	if ok {
		h.connected.Dec()
		log.Debug().Str("component", "ws").Str("client", c.ID).Msg("client unregistered")
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll asks every client to close with a going-away frame.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
}
