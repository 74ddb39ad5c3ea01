// Package handler contains the asynq task handlers run by the worker.
package handler

import (
	"context"
	"log/slog"

	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/service"
	"portal/internal/errors"
	"portal/internal/infra/queue"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// NotificationHandlerParams holds dependencies for NotificationHandler, injected by Fx.
type NotificationHandlerParams struct {
	fx.In

	Publisher service.EventPublisher
	Clock     service.Clock
	Logger    *slog.Logger
}

// NotificationHandler delivers queued account notifications to the outbound publisher.
type NotificationHandler struct {
	publisher service.EventPublisher
	clock     service.Clock
	logger    *slog.Logger
}

// NewNotificationHandler is the constructor for NotificationHandler.
func NewNotificationHandler(params NotificationHandlerParams) *NotificationHandler {
	return &NotificationHandler{
		publisher: params.Publisher,
		clock:     params.Clock,
		logger:    params.Logger,
	}
}

// ProcessTask implements asynq.Handler. Publish failures are returned so asynq retries with
// its own backoff; malformed payloads are skipped and expired ones are dropped.
func (h *NotificationHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	notification, err := queue.ParseNotificationTask(task)
	if err != nil {
		h.logger.WarnContext(ctx, "Dropping malformed notification task", slog.Any("error", err))

		return err
	}

	requestID := notification.RequestID
	if requestID == "" {
		requestID = notification.ID
	}
	retried, _ := asynq.GetRetryCount(ctx)
	logger := h.logger.With(
		slog.String("request_id", requestID),
		slog.String("notification_id", notification.ID),
		slog.String("event", notification.Event),
		slog.Int("retry", retried),
	)
	ctx = deliverycontext.WithRequestID(ctx, requestID)
	ctx = deliverycontext.WithLogger(ctx, logger)

	// Completing the task removes the payload, and with it any expired credential, from Redis.
	if notification.Expired(h.clock.Now()) {
		logger.InfoContext(ctx, "Dropping expired notification")

		return nil
	}

	if err := h.publisher.PublishNotification(ctx, notification); err != nil {
		logger.WarnContext(ctx, "Notification publish failed", slog.Any("error", err))

		return errors.Wrap(err, "publish notification")
	}

	logger.InfoContext(ctx, "Notification delivered",
		slog.String("account_id", notification.AccountID.String()),
	)

	return nil
}
