package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AlphaB135/scg-noti-sub001/internal/domain"
	"github.com/AlphaB135/scg-noti-sub001/internal/protocol"
)

const publishTimeout = 2 * time.Second

// Fanout delivers an encoded frame to every local connection.
type Fanout interface {
	Broadcast(data []byte) (int, error)
}

// Backplane relays an encoded frame to every instance, this one included.
type Backplane interface {
	Publish(ctx context.Context, data []byte) error
}

// Notifier implements domain.NotificationPublisher. Until a Fanout is attached
// every publish is a logged no-op.
type Notifier struct {
	backplane Backplane

	mu     sync.RWMutex
	fanout Fanout
}

var _ domain.NotificationPublisher = (*Notifier)(nil)

// NewNotifier creates a Notifier. backplane may be nil for a single instance.
func NewNotifier(backplane Backplane) *Notifier {
	return &Notifier{backplane: backplane}
}

// Attach makes f the local delivery target.
func (n *Notifier) Attach(f Fanout) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fanout = f
}

// Detach stops local delivery; later publishes become no-ops.
func (n *Notifier) Detach() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fanout = nil
}

func (n *Notifier) attached() Fanout {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fanout
}

// PublishNotificationUpdate serializes event once and fans it out to every
// instance. Only an invalid event is reported; delivery problems are logged.
func (n *Notifier) PublishNotificationUpdate(ctx context.Context, event domain.NotificationUpdateEvent) error {
	fanout, data, err := n.prepare(ctx, event)
	if err != nil || fanout == nil {
		return err
	}

	if n.backplane != nil {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		err := n.backplane.Publish(ctx, data)
		if err == nil {
			return nil
		}
		slog.WarnContext(ctx, "Backplane publish failed, delivering locally", "notification_id", event.ID, "error", err)
	}

	n.deliver(ctx, fanout, data)
	return nil
}

// PublishLocal is PublishNotificationUpdate without the backplane. Sources
// that already reach every instance, such as Postgres NOTIFY, use it so each
// client sees a change once.
func (n *Notifier) PublishLocal(ctx context.Context, event domain.NotificationUpdateEvent) error {
	fanout, data, err := n.prepare(ctx, event)
	if err != nil || fanout == nil {
		return err
	}
	n.deliver(ctx, fanout, data)
	return nil
}

// prepare validates and encodes event. A nil Fanout with a nil error means
// there is nowhere to deliver.
func (n *Notifier) prepare(ctx context.Context, event domain.NotificationUpdateEvent) (Fanout, []byte, error) {
	if err := event.Validate(); err != nil {
		return nil, nil, err
	}

	fanout := n.attached()
	if fanout == nil {
		slog.WarnContext(ctx, "Notification update dropped: fan-out not initialized", "notification_id", event.ID)
		return nil, nil, nil
	}

	data, err := protocol.Encode(protocol.NotificationUpdate{Event: event})
	if err != nil {
		return nil, nil, fmt.Errorf("encode notification update: %w", err)
	}
	return fanout, data, nil
}

// Deliver hands a frame received from the backplane to local connections.
func (n *Notifier) Deliver(ctx context.Context, data []byte) {
	fanout := n.attached()
	if fanout == nil {
		slog.DebugContext(ctx, "Backplane message dropped: fan-out not initialized")
		return
	}
	n.deliver(ctx, fanout, data)
}

func (n *Notifier) deliver(ctx context.Context, fanout Fanout, data []byte) {
	delivered, err := fanout.Broadcast(data)
	if err != nil {
		slog.WarnContext(ctx, "Local fan-out failed", "error", err)
		return
	}
	slog.DebugContext(ctx, "Notification update delivered", "connections", delivered)
}
