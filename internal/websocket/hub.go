package websocket

import (
	"sync"

	"ai-docchat/internal/pkg/logger"
)

// Hub tracks the live connections of every open chat view.
// When the last connection of a view goes away, the view is reported idle so its session can be torn down.
type Hub struct {
	// viewID -> connections (a view may be open in several tabs)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex

	onIdle func(viewID string)
	logger logger.ILogger
}

func NewHub(log logger.ILogger, onIdle func(viewID string)) *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		onIdle:     onIdle,
		logger:     log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ViewID] = append(h.clients[client.ViewID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"view_id": client.ViewID})

		case client := <-h.unregister:
			h.remove(client)

		case <-h.stop:
			h.mu.Lock()
			for viewID, clients := range h.clients {
				for _, c := range clients {
					c.closeSend()
				}
				delete(h.clients, viewID)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.ViewID]
	if !ok {
		h.mu.Unlock()
		return
	}

	for i, c := range clients {
		if c == client {
			h.clients[client.ViewID] = append(clients[:i], clients[i+1:]...)
			client.closeSend()
			break
		}
	}

	idle := len(h.clients[client.ViewID]) == 0
	if idle {
		delete(h.clients, client.ViewID)
	}
	h.mu.Unlock()

	if idle {
		h.logger.Info("Hub", "Last client left view", map[string]interface{}{"view_id": client.ViewID})
		if h.onIdle != nil {
			go h.onIdle(client.ViewID)
		}
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stop:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}

// Stop closes every connection's outbound channel and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Connected returns how many connections a view currently has.
func (h *Hub) Connected(viewID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[viewID])
}
