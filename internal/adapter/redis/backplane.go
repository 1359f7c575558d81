package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AlphaB135/scg-noti-sub001/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const DefaultChannel = "notifications:updates"

// Backplane relays encoded frames between instances over Redis pub/sub.
// Every instance, the publisher included, receives each frame once.
type Backplane struct {
	rdb     *goredis.Client
	channel string
	metrics *metrics.BackplaneMetrics
}

// NewBackplane creates a Backplane on channel. m may be nil.
func NewBackplane(rdb *goredis.Client, channel string, m *metrics.BackplaneMetrics) *Backplane {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Backplane{rdb: rdb, channel: channel, metrics: m}
}

// Publish sends data to every subscribed instance.
func (b *Backplane) Publish(ctx context.Context, data []byte) error {
	err := b.rdb.Publish(ctx, b.channel, data).Err()
	b.countPublish(err)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe joins the channel and waits for Redis to confirm, so nothing
// published after it returns is missed.
func (b *Backplane) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	return &Subscription{pubsub: pubsub, channel: b.channel, metrics: b.metrics}, nil
}

func (b *Backplane) countPublish(err error) {
	if b.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	b.metrics.Published.WithLabelValues(result).Inc()
}

// Subscription is a confirmed backplane subscription.
type Subscription struct {
	pubsub  *goredis.PubSub
	channel string
	metrics *metrics.BackplaneMetrics
}

// Run hands every received frame to deliver until ctx is done. go-redis
// re-subscribes on its own after connection loss.
func (s *Subscription) Run(ctx context.Context, deliver func(context.Context, []byte)) {
	defer func() { _ = s.pubsub.Close() }()

	ch := s.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Payload == "" {
				slog.Warn("Empty backplane message", "channel", s.channel)
				continue
			}
			if s.metrics != nil {
				s.metrics.Received.Inc()
			}
			deliver(ctx, []byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}
