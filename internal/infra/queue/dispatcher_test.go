package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"portal/config"
	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/service"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)

	return &asynq.TaskInfo{Queue: "notifications"}, nil
}

func newTestDispatcher(client enqueuer) *asynqDispatcher {
	return newDispatcher(client, &config.NotificationConfig{Queue: "notifications", MaxRetry: 3},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatch_EnqueuesRoundTrippablePayload(t *testing.T) {
	client := &fakeEnqueuer{}
	dispatcher := newTestDispatcher(client)

	ctx := deliverycontext.WithRequestID(context.Background(), "req-42")
	notification := &service.Notification{
		AccountID: uuid.New(),
		Event:     service.EventPasswordChanged,
		Message:   "Your password was changed",
	}

	require.NoError(t, dispatcher.Dispatch(ctx, notification))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, TypeAccountNotification, client.tasks[0].Type())

	decoded, err := ParseNotificationTask(client.tasks[0])
	require.NoError(t, err)
	assert.NotEmpty(t, decoded.ID)
	assert.Equal(t, "req-42", decoded.RequestID)
	assert.Equal(t, notification.AccountID, decoded.AccountID)
	assert.Equal(t, service.EventPasswordChanged, decoded.Event)
}

func TestDispatch_TaskIDConflictIsNotAnError(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeEnqueuer{err: asynq.ErrTaskIDConflict})

	err := dispatcher.Dispatch(context.Background(), &service.Notification{
		ID:        "fixed",
		AccountID: uuid.New(),
		Event:     service.EventTwoFactorEnabled,
	})
	assert.NoError(t, err)
}

func TestDispatch_PropagatesBrokerErrors(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeEnqueuer{err: errors.New("connection refused")})

	err := dispatcher.Dispatch(context.Background(), &service.Notification{
		AccountID: uuid.New(),
		Event:     service.EventTwoFactorDisabled,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDispatch_RejectsIncompleteNotifications(t *testing.T) {
	dispatcher := newTestDispatcher(&fakeEnqueuer{})

	assert.Error(t, dispatcher.Dispatch(context.Background(), nil))
	assert.Error(t, dispatcher.Dispatch(context.Background(), &service.Notification{Event: service.EventAccountLocked}))
	assert.Error(t, dispatcher.Dispatch(context.Background(), &service.Notification{AccountID: uuid.New()}))
}

func TestParseNotificationTask_MalformedPayloadSkipsRetry(t *testing.T) {
	_, err := ParseNotificationTask(asynq.NewTask(TypeAccountNotification, []byte("{not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	_, err = ParseNotificationTask(asynq.NewTask(TypeAccountNotification, []byte(`{"event":"x"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
