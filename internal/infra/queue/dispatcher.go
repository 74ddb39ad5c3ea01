package queue

import (
	"context"
	"log/slog"

	"portal/config"
	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/service"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type asynqDispatcher struct {
	client   enqueuer
	queue    string
	maxRetry int
	logger   *slog.Logger
}

// DispatcherParams holds dependencies for the notification dispatcher
type DispatcherParams struct {
	fx.In

	Lc     fx.Lifecycle
	Config *config.Config
	Logger *slog.Logger
}

// NewNotificationDispatcher creates the asynq-backed dispatcher and closes its client on shutdown.
func NewNotificationDispatcher(params DispatcherParams) service.NotificationDispatcher {
	client := asynq.NewClient(RedisClientOpt(params.Config.Redis))

	params.Lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			params.Logger.Info("Closing notification queue client")

			return errors.WithStack(client.Close())
		},
	})

	return newDispatcher(client, params.Config.Notification, params.Logger)
}

func newDispatcher(client enqueuer, cfg *config.NotificationConfig, logger *slog.Logger) *asynqDispatcher {
	return &asynqDispatcher{
		client:   client,
		queue:    cfg.Queue,
		maxRetry: cfg.MaxRetry,
		logger:   logger,
	}
}

// Dispatch enqueues notification. The notification id doubles as the asynq task id, so a
// retried enqueue of the same notification is a no-op.
func (d *asynqDispatcher) Dispatch(ctx context.Context, notification *service.Notification) error {
	if notification == nil {
		return errors.New("notification is nil")
	}
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.RequestID == "" {
		notification.RequestID = deliverycontext.GetRequestIDFromContext(ctx)
	}

	task, err := NewNotificationTask(notification)
	if err != nil {
		return err
	}

	logger := deliverycontext.GetLoggerOrDefault(ctx, d.logger)

	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.MaxRetry(d.maxRetry),
		asynq.TaskID(notification.ID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.DebugContext(ctx, "Notification already enqueued", slog.String("notification_id", notification.ID))

		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to enqueue notification")
	}

	logger.DebugContext(ctx, "Notification enqueued",
		slog.String("notification_id", notification.ID),
		slog.String("event", notification.Event),
		slog.String("queue", info.Queue),
	)

	return nil
}
