package main

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/vl4deee11/bichinhos/sim"
)

type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *Client) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub is the set of connected viewers.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	logger  *log.Logger
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{clients: make(map[*Client]struct{}), logger: logger}
}

func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) list() []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		list = append(list, c)
	}
	return list
}

// Broadcast sends v to every client, dropping the ones that fail.
func (h *Hub) Broadcast(v interface{}) {
	for _, c := range h.list() {
		if err := c.Send(v); err != nil {
			h.logger.Warn("client send failed", "remote", c.conn.RemoteAddr(), "err", err)
			h.Remove(c)
		}
	}
}

// Pump forwards snapshots from states to all clients until ctx is done.
func (h *Hub) Pump(ctx context.Context, states <-chan sim.State) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-states:
			h.Broadcast(st)
		}
	}
}

func (h *Hub) CloseAll() {
	for _, c := range h.list() {
		h.Remove(c)
	}
}
