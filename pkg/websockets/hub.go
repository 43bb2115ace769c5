package websockets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

type connection struct {
	mu   sync.Mutex
	conn Conn
}

// Hub keeps the live connections of this process, grouped by user.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[string]*connection
	logger *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		conns:  make(map[string]map[string]*connection),
		logger: logger,
	}
}

var (
	_ ConnectionManager = (*Hub)(nil)
	_ Publisher         = (*Hub)(nil)
)

func (h *Hub) AddConnection(_ context.Context, userID, connectionID string, conn Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[string]*connection)
	}
	h.conns[userID][connectionID] = &connection{conn: conn}
	return nil
}

func (h *Hub) RemoveConnection(_ context.Context, userID, connectionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns[userID], connectionID)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
	return nil
}

// ConnectionCount returns how many live connections a user has.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Publish sends a message to every connection of the user. A user with no live
// connection is not an error; connections that fail to write are dropped.
func (h *Hub) Publish(ctx context.Context, userID string, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	h.mu.RLock()
	targets := make(map[string]*connection, len(h.conns[userID]))
	for id, c := range h.conns[userID] {
		targets[id] = c
	}
	h.mu.RUnlock()

	for connectionID, c := range targets {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, payload)
		c.mu.Unlock()
		if err != nil {
			h.logger.Info("stale connection found, deleting", "userId", userID, "connectionId", connectionID, "error", err)
			_ = c.conn.Close()
			if err := h.RemoveConnection(ctx, userID, connectionID); err != nil {
				h.logger.Error("failed to delete stale connection", "error", err)
			}
		}
	}
	return nil
}
