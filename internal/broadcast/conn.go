package broadcast

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrHubStopped         = errors.New("hub stopped")
	ErrTooManyConnections = errors.New("too many connections")
	ErrSendBufferFull     = errors.New("send buffer full")
	ErrConnectionClosed   = errors.New("connection closed")
)

// Conn is a registered client connection as the hub sees it.
// Send and Ping must not block; Close must be safe to call more than once.
type Conn interface {
	ID() uuid.UUID
	Send(data []byte) error
	Ping() error
	Close() error
}

// gracefulCloser is implemented by connections that can say goodbye with a
// close frame before the transport goes away.
type gracefulCloser interface {
	CloseGracefully(reason string) error
}
