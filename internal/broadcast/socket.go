package broadcast

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultSendBuffer   = 16
	DefaultWriteTimeout = 5 * time.Second
	maxMessageSize      = 64 * 1024
)

// SocketOptions configures a Socket. Zero values fall back to defaults.
type SocketOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
}

// Socket adapts a gorilla connection to Conn. Writes happen on a dedicated
// goroutine; Send and Ping only enqueue.
type Socket struct {
	id           uuid.UUID
	connection   *websocket.Conn
	writeTimeout time.Duration
	sendChannel  chan []byte
	pingChannel  chan struct{}
	doneChannel  chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// NewSocket wraps connection and starts its writer.
func NewSocket(connection *websocket.Conn, opts SocketOptions) *Socket {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	s := &Socket{
		id:           uuid.New(),
		connection:   connection,
		writeTimeout: opts.WriteTimeout,
		sendChannel:  make(chan []byte, opts.SendBuffer),
		pingChannel:  make(chan struct{}, 1),
		doneChannel:  make(chan struct{}),
	}
	connection.SetReadLimit(maxMessageSize)
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Socket) ID() uuid.UUID { return s.id }

// Send queues data for the writer. It fails when the buffer is full or the
// socket is closed.
func (s *Socket) Send(data []byte) error {
	select {
	case <-s.doneChannel:
		return ErrConnectionClosed
	default:
	}

	select {
	case s.sendChannel <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Ping queues a transport ping. A ping still waiting to be written absorbs
// this one.
func (s *Socket) Ping() error {
	select {
	case <-s.doneChannel:
		return ErrConnectionClosed
	default:
	}

	select {
	case s.pingChannel <- struct{}{}:
	default:
	}
	return nil
}

// OnPong installs fn as the pong handler. Pongs are only seen while ReadLoop runs.
func (s *Socket) OnPong(fn func()) {
	s.connection.SetPongHandler(func(string) error {
		fn()
		return nil
	})
}

// ReadLoop delivers every data frame to onMessage until the connection fails
// or is closed. The returned error is nil for a normal close.
func (s *Socket) ReadLoop(onMessage func([]byte)) error {
	for {
		_, data, err := s.connection.ReadMessage()
		if err != nil {
			if isExpectedClose(err) {
				return nil
			}
			return err
		}
		onMessage(data)
	}
}

// Close stops the writer and closes the transport.
func (s *Socket) Close() error {
	s.shutdown()
	s.wg.Wait()
	return nil
}

// CloseGracefully sends a close frame with reason before closing.
func (s *Socket) CloseGracefully(reason string) error {
	s.stopOnce.Do(func() {
		close(s.doneChannel)

		// The writer must be gone before the close frame is written.
		s.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		s.updateWriteDeadline()
		_ = s.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = s.connection.Close()
	})
	s.wg.Wait()
	return nil
}

func (s *Socket) shutdown() {
	s.stopOnce.Do(func() {
		close(s.doneChannel)
		_ = s.connection.Close()
	})
}

func (s *Socket) run() {
	defer s.wg.Done()

	for {
		select {
		case msg := <-s.sendChannel:
			s.updateWriteDeadline()
			if err := s.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("Write failed, closing socket", "connection_id", s.id.String(), "error", err)
				s.shutdown()
				return
			}
		case <-s.pingChannel:
			s.updateWriteDeadline()
			if err := s.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Ping failed, closing socket", "connection_id", s.id.String(), "error", err)
				s.shutdown()
				return
			}
		case <-s.doneChannel:
			return
		}
	}
}

func (s *Socket) updateWriteDeadline() {
	_ = s.connection.SetWriteDeadline(time.Now().Add(s.writeTimeout))
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed)
}
