package domain

import "context"

// NotificationPublisher is the contract CRUD handlers use to announce that a
// notification changed. Implementations fan the event out to connected clients.
type NotificationPublisher interface {
	PublishNotificationUpdate(ctx context.Context, event NotificationUpdateEvent) error
}
