package broadcast

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	"github.com/AlphaB135/scg-noti-sub001/internal/protocol"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultMaxConnections    = 10000

	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	commandBuffer  = 256
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	conn   Conn
	userID string
	errCh  chan error
}

type unregisterCmd struct {
	baseHubCmd
	id uuid.UUID
}

type markAliveCmd struct {
	baseHubCmd
	id uuid.UUID
}

type broadcastCmd struct {
	baseHubCmd
	data    []byte
	replyCh chan int
}

type sizeCmd struct {
	baseHubCmd
	replyCh chan int
}

type stopCmd struct {
	baseHubCmd
}

// Options configures a Hub. Zero values fall back to defaults.
type Options struct {
	HeartbeatInterval time.Duration
	MaxConnections    int
	Clock             clockwork.Clock
	Metrics           *metrics.WebSocketMetrics
}

// Hub tracks live connections, runs the heartbeat and fans out broadcasts.
type Hub struct {
	cmdCh             chan hubCmd
	clock             clockwork.Clock
	heartbeat         clockwork.Ticker
	heartbeatInterval time.Duration
	maxConnections    int
	registry          *registry
	greeting          []byte
	metrics           *metrics.WebSocketMetrics
	done              chan struct{}
	stopOnce          sync.Once
}

// NewHub starts the hub goroutine and its heartbeat ticker.
func NewHub(opts Options) (*Hub, error) {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultMaxConnections
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	greeting, err := protocol.Encode(protocol.Connected())
	if err != nil {
		return nil, fmt.Errorf("failed to encode greeting: %w", err)
	}

	h := &Hub{
		cmdCh:             make(chan hubCmd, commandBuffer),
		clock:             opts.Clock,
		heartbeat:         opts.Clock.NewTicker(opts.HeartbeatInterval),
		heartbeatInterval: opts.HeartbeatInterval,
		maxConnections:    opts.MaxConnections,
		registry:          newRegistry(),
		greeting:          greeting,
		metrics:           opts.Metrics,
		done:              make(chan struct{}),
	}
	go h.run()
	return h, nil
}

// Register adds conn to the registry and sends it the CONNECTION_STATUS
// greeting. The greeting is queued before any broadcast can reach conn.
func (h *Hub) Register(conn Conn, userID string) error {
	errCh := make(chan error, 1)
	if err := h.submit(registerCmd{conn: conn, userID: userID, errCh: errCh}); err != nil {
		return err
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-h.done:
		return ErrHubStopped
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister drops the connection with the given id. Unknown ids are ignored.
func (h *Hub) Unregister(id uuid.UUID) {
	_ = h.submit(unregisterCmd{id: id})
}

// MarkAlive records a pong from the connection with the given id.
func (h *Hub) MarkAlive(id uuid.UUID) {
	_ = h.submit(markAliveCmd{id: id})
}

// Broadcast queues data on every registered connection and returns how many
// accepted it. Connections that fail are dropped; their errors stay here.
func (h *Hub) Broadcast(data []byte) (int, error) {
	replyCh := make(chan int, 1)
	if err := h.submit(broadcastCmd{data: data, replyCh: replyCh}); err != nil {
		return 0, err
	}

	select {
	case n := <-replyCh:
		return n, nil
	case <-h.done:
		return 0, ErrHubStopped
	}
}

// Size returns the number of registered connections, or 0 once stopped.
func (h *Hub) Size() int {
	replyCh := make(chan int, 1)
	if err := h.submit(sizeCmd{replyCh: replyCh}); err != nil {
		return 0
	}

	select {
	case n := <-replyCh:
		return n
	case <-h.done:
		return 0
	}
}

// Stop closes every connection and stops the heartbeat. No heartbeat round or
// command runs after Stop returns. Calling Stop again is a no-op.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		if err := h.submit(stopCmd{}); err != nil {
			return
		}

		timeout := h.clock.NewTimer(stopTimeout)
		defer timeout.Stop()

		select {
		case <-h.done:
			slog.Info("Hub stopped gracefully")
		case <-timeout.Chan():
			slog.Error("Hub stop timeout exceeded", "timeout", stopTimeout)
		}
	})
}

func (h *Hub) submit(cmd hubCmd) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.cmdCh <- cmd:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer h.heartbeat.Stop()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAll("server error")
		}
	}()

	for {
		select {
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				c.errCh <- h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.id)
			case markAliveCmd:
				if e, ok := h.registry.get(c.id); ok {
					e.alive = true
				}
			case broadcastCmd:
				c.replyCh <- h.handleBroadcast(c.data)
			case sizeCmd:
				c.replyCh <- h.registry.size()
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-h.heartbeat.Chan():
			h.handleHeartbeat()
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) error {
	if h.registry.size() >= h.maxConnections {
		slog.Warn("Rejecting connection: max connections reached", "max_connections", h.maxConnections)
		h.recordConnection("rejected")
		return fmt.Errorf("%w: limit is %d", ErrTooManyConnections, h.maxConnections)
	}

	id := c.conn.ID()
	h.registry.add(c.conn, c.userID)

	if err := c.conn.Send(h.greeting); err != nil {
		h.registry.remove(id)
		h.recordConnection("failed")
		return fmt.Errorf("failed to send greeting: %w", err)
	}

	h.recordConnection("accepted")
	h.updateGauge()
	slog.Debug("Client registered", "connection_id", id.String(), "user_id", c.userID, "total_clients", h.registry.size())
	return nil
}

func (h *Hub) handleUnregister(id uuid.UUID) {
	if _, ok := h.registry.remove(id); !ok {
		return
	}
	h.updateGauge()
	slog.Debug("Client unregistered", "connection_id", id.String(), "remaining_clients", h.registry.size())
}

func (h *Hub) handleBroadcast(data []byte) int {
	start := h.clock.Now()

	var failed []*entry
	delivered := 0
	h.registry.forEach(func(e *entry) {
		if err := e.conn.Send(data); err != nil {
			slog.Warn("Failed to send to client", "connection_id", e.conn.ID().String(), "error", err)
			failed = append(failed, e)
			return
		}
		delivered++
	})

	for _, e := range failed {
		h.drop(e)
	}

	if h.metrics != nil {
		h.metrics.MessagesPublished.Inc()
		h.metrics.SendFailures.Add(float64(len(failed)))
		h.metrics.BroadcastDuration.Observe(h.clock.Since(start).Seconds())
	}
	if len(failed) > 0 {
		h.updateGauge()
	}
	return delivered
}

// handleHeartbeat evicts entries that did not answer the previous ping and
// pings the rest. A connection therefore survives between one and two
// intervals without a pong.
func (h *Hub) handleHeartbeat() {
	var evict []*entry
	h.registry.forEach(func(e *entry) {
		if !e.alive {
			evict = append(evict, e)
			return
		}
		e.alive = false
		if err := e.conn.Ping(); err != nil {
			slog.Debug("Heartbeat ping failed", "connection_id", e.conn.ID().String(), "error", err)
			evict = append(evict, e)
		}
	})

	for _, e := range evict {
		slog.Info("Evicting unresponsive client", "connection_id", e.conn.ID().String())
		h.drop(e)
	}

	if len(evict) > 0 {
		if h.metrics != nil {
			h.metrics.HeartbeatEvictions.Add(float64(len(evict)))
		}
		h.updateGauge()
	}
}

// drop removes e and closes its transport. Close errors are irrelevant here.
func (h *Hub) drop(e *entry) {
	h.registry.remove(e.conn.ID())
	_ = e.conn.Close()
}

func (h *Hub) handleStop() {
	total := h.registry.size()
	slog.Info("Hub shutting down", "total_clients", total)
	h.closeAll("server shutting down")
	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}

// closeAll closes every connection with the given reason and empties the registry.
func (h *Hub) closeAll(reason string) {
	h.registry.forEach(func(e *entry) {
		if g, ok := e.conn.(gracefulCloser); ok {
			_ = g.CloseGracefully(reason)
		} else {
			_ = e.conn.Close()
		}
		h.registry.remove(e.conn.ID())
	})
	h.updateGauge()
}

func (h *Hub) updateGauge() {
	if h.metrics != nil {
		h.metrics.ActiveConnections.Set(float64(h.registry.size()))
	}
}

func (h *Hub) recordConnection(result string) {
	if h.metrics != nil {
		h.metrics.ConnectionsTotal.WithLabelValues(result).Inc()
	}
}
