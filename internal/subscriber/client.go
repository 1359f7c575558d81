package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AlphaB135/scg-noti-sub001/internal/domain"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/retry"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/version"
	"github.com/AlphaB135/scg-noti-sub001/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultMinReconnectDelay = time.Second
	DefaultMaxReconnectDelay = 30 * time.Second

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// ErrNotConnected is returned by Ping and Subscribe between sessions.
var ErrNotConnected = errors.New("not connected")

// Handlers receive decoded server envelopes. Nil handlers are skipped. All
// handlers run on the read goroutine and must not block for long.
type Handlers struct {
	OnConnectionStatus   func(protocol.ConnectionStatus)
	OnNotificationUpdate func(domain.NotificationUpdateEvent)
	OnError              func(protocol.Error)
	OnPong               func()

	// OnConnect and OnDisconnect bracket every session. A client that keeps
	// local state should refetch it in OnConnect; updates sent while it was
	// away are not replayed.
	OnConnect    func()
	OnDisconnect func(err error)
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	URL               string
	Header            http.Header
	Handlers          Handlers
	MinReconnectDelay time.Duration
	MaxReconnectDelay time.Duration
	// ReadTimeout closes a session that hears nothing, not even a transport
	// ping, for this long. Zero disables it.
	ReadTimeout time.Duration
	Clock       clockwork.Clock
	Dialer      *websocket.Dialer
}

// Client maintains a subscription to a notification server.
type Client struct {
	opts    Options
	clock   clockwork.Clock
	dialer  *websocket.Dialer
	header  http.Header
	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("subscriber: URL is required")
	}
	if opts.MinReconnectDelay <= 0 {
		opts.MinReconnectDelay = DefaultMinReconnectDelay
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}

	header := opts.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", version.UserAgent("subscriber"))
	}

	return &Client{opts: opts, clock: opts.Clock, dialer: dialer, header: header}, nil
}

// Run keeps a session open until ctx is cancelled, reconnecting with
// exponential backoff. The delay resets after every successful handshake.
func (c *Client) Run(ctx context.Context) error {
	backoff := retry.NewBackoff(c.opts.MinReconnectDelay, c.opts.MaxReconnectDelay)

	for {
		err := c.session(ctx, backoff)
		if ctx.Err() != nil {
			return nil
		}

		delay := backoff.Next()
		slog.Warn("Notification stream disconnected, reconnecting", "url", c.opts.URL, "error", err, "delay", delay)
		if err := retry.Sleep(ctx, c.clock, delay); err != nil {
			return nil
		}
	}
}

// IsConnected reports whether a session is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Ping sends an application level PING; the server answers with PONG.
func (c *Client) Ping() error {
	data, err := protocol.EncodeInbound(protocol.KindPing)
	if err != nil {
		return err
	}
	return c.write(data)
}

// Subscribe sends a SUBSCRIBE frame. The server currently delivers every
// update to every client regardless of topics.
func (c *Client) Subscribe(topics ...string) error {
	data, err := protocol.EncodeInbound(protocol.KindSubscribe, topics...)
	if err != nil {
		return err
	}
	return c.write(data)
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (c *Client) session(ctx context.Context, backoff *retry.Backoff) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.opts.URL, c.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to dial: %w", err)
	}
	backoff.Reset()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutting down"),
			time.Now().Add(writeTimeout))
		c.writeMu.Unlock()
		_ = conn.Close()
	})

	slog.Info("Notification stream connected", "url", c.opts.URL)
	if c.opts.Handlers.OnConnect != nil {
		c.opts.Handlers.OnConnect()
	}

	err = c.readLoop(conn)

	stop()
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()

	if c.opts.Handlers.OnDisconnect != nil {
		c.opts.Handlers.OnDisconnect(err)
	}
	return err
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	c.extendReadDeadline(conn)
	conn.SetPingHandler(func(appData string) error {
		c.extendReadDeadline(conn)
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.extendReadDeadline(conn)
		c.dispatch(data)
	}
}

func (c *Client) extendReadDeadline(conn *websocket.Conn) {
	if c.opts.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	}
}

func (c *Client) dispatch(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		slog.Warn("Skipping undecodable frame", "error", err, "size", len(data))
		return
	}

	h := c.opts.Handlers
	switch m := msg.(type) {
	case protocol.ConnectionStatus:
		if h.OnConnectionStatus != nil {
			h.OnConnectionStatus(m)
		}
	case protocol.NotificationUpdate:
		if h.OnNotificationUpdate != nil {
			h.OnNotificationUpdate(m.Event)
		}
	case protocol.Error:
		if h.OnError != nil {
			h.OnError(m)
		}
	case protocol.Pong:
		if h.OnPong != nil {
			h.OnPong()
		}
	}
}
