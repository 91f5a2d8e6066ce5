package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"shopwatch/internal/ledger"
)

// AlertHub pushes newly raised alerts to every connected websocket client
type AlertHub struct {
	clients map[*client]bool
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewAlertHub creates an empty hub
func NewAlertHub(logger *zap.Logger) *AlertHub {
	return &AlertHub{
		clients: make(map[*client]bool),
		logger:  logger,
	}
}

func (h *AlertHub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("websocket client registered", zap.String("remote", c.remote), zap.Int("total", total))
}

func (h *AlertHub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Info("websocket client unregistered", zap.String("remote", c.remote))
	}
}

// Run forwards alerts until ctx ends or the channel closes, then
// disconnects every client.
func (h *AlertHub) Run(ctx context.Context, alerts <-chan ledger.Entry) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-alerts:
			if !ok {
				return
			}
			h.Broadcast(entry)
		}
	}
}

// Broadcast sends an alert to all clients. A client whose buffer is full
// is disconnected.
func (h *AlertHub) Broadcast(entry ledger.Entry) {
	data, err := json.Marshal(NewAlertMessage(entry))
	if err != nil {
		h.logger.Error("failed to marshal alert message", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", zap.String("remote", c.remote))
		h.unregister(c)
	}
}

// ClientCount returns the number of connected clients
func (h *AlertHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *AlertHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
