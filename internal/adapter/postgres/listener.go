package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	"github.com/AlphaB135/scg-noti-sub001/internal/domain"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/retry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultNotifyChannel = "notification_changed"

	eventSource      = "postgres"
	reconnectInitial = time.Second
	reconnectMax     = 30 * time.Second
	unlistenTimeout  = 2 * time.Second
)

// LocalPublisher delivers an update to this instance's connections only.
// NOTIFY already reaches every listening instance.
type LocalPublisher interface {
	PublishLocal(ctx context.Context, event domain.NotificationUpdateEvent) error
}

// Listener turns NOTIFY payloads on a channel into notification updates.
// It holds one pooled connection for as long as Run is active.
type Listener struct {
	pool      *pgxpool.Pool
	channel   string
	publisher LocalPublisher
	metrics   *metrics.EventSourceMetrics
	clock     clockwork.Clock
}

// NewListener creates a Listener. m and clock may be nil.
func NewListener(pool *pgxpool.Pool, channel string, publisher LocalPublisher, m *metrics.EventSourceMetrics, clock clockwork.Clock) *Listener {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Listener{pool: pool, channel: channel, publisher: publisher, metrics: m, clock: clock}
}

// Run listens until ctx is cancelled, reconnecting with backoff whenever the
// connection is lost. It returns nil on cancellation.
func (l *Listener) Run(ctx context.Context) error {
	backoff := retry.NewBackoff(reconnectInitial, reconnectMax)

	for {
		err := l.listen(ctx, backoff)
		if ctx.Err() != nil {
			return nil
		}

		delay := backoff.Next()
		slog.Warn("Database listener disconnected, reconnecting", "channel", l.channel, "error", err, "delay", delay)
		if l.metrics != nil {
			l.metrics.Reconnects.Inc()
		}
		if err := retry.Sleep(ctx, l.clock, delay); err != nil {
			return nil
		}
	}
}

func (l *Listener) listen(ctx context.Context, backoff *retry.Backoff) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	defer l.release(conn)

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}
	backoff.Reset()
	slog.Info("Database listener started", "channel", l.channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.handle(ctx, n.Payload)
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	var event domain.NotificationUpdateEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		slog.Warn("Discarding malformed notification payload", "channel", l.channel, "error", err)
		l.count("malformed")
		return
	}

	if err := l.publisher.PublishLocal(ctx, event); err != nil {
		slog.Warn("Failed to publish notification from database", "id", event.ID, "error", err)
		if errors.Is(err, domain.ErrInvalidEvent) {
			l.count("invalid")
		} else {
			l.count("error")
		}
		return
	}
	l.count("accepted")
}

// release unlistens before handing the connection back. A connection that
// cannot be cleaned is destroyed instead.
func (l *Listener) release(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), unlistenTimeout)
	defer cancel()

	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		_ = conn.Conn().Close(ctx)
	}
	conn.Release()
}

func (l *Listener) count(result string) {
	if l.metrics != nil {
		l.metrics.Events.WithLabelValues(eventSource, result).Inc()
	}
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Notify announces event on channel through the notify_notification_update
// function. Call it within the transaction that changed the notification so
// listeners only hear about committed changes.
func Notify(ctx context.Context, db Execer, channel string, event domain.NotificationUpdateEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if _, err := db.Exec(ctx, "SELECT notify_notification_update($1, $2::jsonb)", channel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify %s: %w", channel, err)
	}
	return nil
}
