package worker

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"portal/config"
	"portal/internal/errors"
	"portal/internal/usecase"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxtest"
)

type countingSessions struct {
	usecase.SessionUsecase
	calls atomic.Int32
	err   error
}

func (s *countingSessions) CleanupExpired(context.Context) (int64, error) {
	s.calls.Add(1)

	return 3, s.err
}

func newTestJanitor(t *testing.T, sessions usecase.SessionUsecase, interval time.Duration) (*sessionJanitor, *fxtest.Lifecycle) {
	t.Helper()

	lc := fxtest.NewLifecycle(t)
	d := NewSessionJanitor(JanitorParams{
		Lc:       lc,
		Cfg:      &config.Config{Notification: &config.NotificationConfig{SessionCleanupInterval: interval}},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sessions: sessions,
	})

	return d.(*sessionJanitor), lc
}

func TestSessionJanitor_SweepsUntilStopped(t *testing.T) {
	sessions := &countingSessions{}
	j, lc := newTestJanitor(t, sessions, 10*time.Millisecond)
	lc.RequireStart()

	done := make(chan error, 1)
	go func() { done <- j.Serve(context.Background()) }()

	assert.Eventually(t, func() bool { return sessions.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	lc.RequireStop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestSessionJanitor_FailureDoesNotStopLoop(t *testing.T) {
	sessions := &countingSessions{err: errors.New("store offline")}
	j, _ := newTestJanitor(t, sessions, time.Hour)

	j.runOnce(context.Background())
	j.runOnce(context.Background())

	assert.Equal(t, int32(2), sessions.calls.Load())
}

func TestSessionJanitor_DefaultInterval(t *testing.T) {
	j, _ := newTestJanitor(t, &countingSessions{}, 0)

	assert.Equal(t, time.Hour, j.interval)
}
