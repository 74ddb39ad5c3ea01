// Package queue moves account notifications through asynq so delivery happens in the worker.
package queue

import (
	"encoding/json"

	"portal/config"
	"portal/internal/domain/service"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
)

// TypeAccountNotification is the asynq task type carrying one service.Notification.
const TypeAccountNotification = "notification:account"

// RedisClientOpt maps the shared Redis settings onto asynq's connection options.
func RedisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewNotificationTask encodes notification as a task payload.
func NewNotificationTask(notification *service.Notification) (*asynq.Task, error) {
	if notification == nil {
		return nil, errors.New("notification is nil")
	}
	if notification.AccountID == uuid.Nil {
		return nil, errors.New("notification account id is required")
	}
	if notification.Event == "" {
		return nil, errors.New("notification event is required")
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal notification")
	}

	return asynq.NewTask(TypeAccountNotification, body), nil
}

// ParseNotificationTask decodes a task payload. Malformed payloads are wrapped with
// asynq.SkipRetry because retrying cannot fix them.
func ParseNotificationTask(task *asynq.Task) (*service.Notification, error) {
	var notification service.Notification
	if err := json.Unmarshal(task.Payload(), &notification); err != nil {
		return nil, errors.Wrapf(asynq.SkipRetry, "malformed notification payload: %v", err)
	}
	if notification.AccountID == uuid.Nil || notification.Event == "" {
		return nil, errors.Wrap(asynq.SkipRetry, "notification payload missing account id or event")
	}

	return &notification, nil
}
