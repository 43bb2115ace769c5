package websockets

import (
	"context"
)

// Conn is the part of a WebSocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ConnectionManager defines the interface for managing WebSocket connections.
type ConnectionManager interface {
	AddConnection(ctx context.Context, userID, connectionID string, conn Conn) error
	RemoveConnection(ctx context.Context, userID, connectionID string) error
}

// Publisher defines the interface for publishing messages to one user's clients.
type Publisher interface {
	Publish(ctx context.Context, userID string, message Message) error
}
