package service

import (
	"context"
)

// EventPublisher publishes delivered notifications to the outbound message bus.
type EventPublisher interface {
	// PublishNotification publishes one account notification.
	PublishNotification(ctx context.Context, notification *Notification) error

	// Close releases any resources held by the publisher
	Close() error
}
