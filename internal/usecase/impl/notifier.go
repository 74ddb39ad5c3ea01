package impl

import (
	"context"
	"time"

	"portal/internal/domain/service"

	"github.com/google/uuid"
)

// notifier hands notifications to the dispatcher on the background runner, so a slow or
// unreachable broker never delays the response.
type notifier struct {
	dispatcher service.NotificationDispatcher
	runner     service.BackgroundRunner
}

func newNotifier(dispatcher service.NotificationDispatcher, runner service.BackgroundRunner) *notifier {
	return &notifier{dispatcher: dispatcher, runner: runner}
}

func (n *notifier) notify(ctx context.Context, accountID uuid.UUID, event, message string, data map[string]string) {
	n.notifyUntil(ctx, accountID, event, message, data, time.Time{})
}

// notifyUntil is notify for messages carrying a short-lived credential; the worker drops
// them once expiresAt has passed.
func (n *notifier) notifyUntil(
	ctx context.Context,
	accountID uuid.UUID,
	event, message string,
	data map[string]string,
	expiresAt time.Time,
) {
	if n == nil || n.dispatcher == nil || n.runner == nil {
		return
	}

	// The id is fixed before the first attempt so retried enqueues deduplicate.
	notification := &service.Notification{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Event:     event,
		Message:   message,
		Data:      data,
	}
	if !expiresAt.IsZero() {
		notification.ExpiresAt = &expiresAt
	}

	n.runner.Submit(ctx, "notify:"+event, func(jobCtx context.Context) error {
		return n.dispatcher.Dispatch(jobCtx, notification)
	})
}
