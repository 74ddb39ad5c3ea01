package background

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"portal/config"
	"portal/internal/domain/service"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (r *recordingReporter) CaptureError(_ context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.errs)
}

func testConfig() config.BackgroundConfig {
	return config.BackgroundConfig{
		Workers:        2,
		QueueSize:      16,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPool_RunsSubmittedJobs(t *testing.T) {
	pool := NewPool(testConfig(), discardLogger(), nil)
	pool.Start()

	var ran atomic.Int32
	for range 10 {
		ok := pool.Submit(context.Background(), "count", func(context.Context) error {
			ran.Add(1)

			return nil
		})
		require.True(t, ok)
	}

	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
}

func TestPool_RetriesUntilSuccess(t *testing.T) {
	reporter := &recordingReporter{}
	pool := NewPool(testConfig(), discardLogger(), reporter)
	pool.Start()

	var attempts atomic.Int32
	pool.Submit(context.Background(), "flaky", func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}

		return nil
	})

	// Stop cuts backoff sleeps short, so wait for the retries first.
	require.Eventually(t, func() bool { return attempts.Load() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
	assert.Zero(t, reporter.count())
}

func TestPool_ReportsTerminalFailure(t *testing.T) {
	reporter := &recordingReporter{}
	pool := NewPool(testConfig(), discardLogger(), reporter)
	pool.Start()

	var attempts atomic.Int32
	pool.Submit(context.Background(), "broken", func(context.Context) error {
		attempts.Add(1)

		return errors.New("store down")
	})

	require.Eventually(t, func() bool { return reporter.count() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
	require.Len(t, reporter.errs, 1)
	assert.Equal(t, "broken", reporter.tags[0]["job"])
}

func TestPool_RecoversFromPanics(t *testing.T) {
	reporter := &recordingReporter{}
	cfg := testConfig()
	cfg.MaxRetries = 0
	pool := NewPool(cfg, discardLogger(), reporter)
	pool.Start()

	pool.Submit(context.Background(), "panics", func(context.Context) error {
		panic("boom")
	})

	require.NoError(t, pool.Stop(context.Background()))
	require.Len(t, reporter.errs, 1)
	assert.Contains(t, reporter.errs[0].Error(), "boom")
}

func TestPool_DropsWhenQueueIsFull(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1
	pool := NewPool(cfg, discardLogger(), nil)
	// Workers are not started, so the single slot fills up.

	assert.True(t, pool.Submit(context.Background(), "first", func(context.Context) error { return nil }))
	assert.False(t, pool.Submit(context.Background(), "second", func(context.Context) error { return nil }))

	pool.Start()
	require.NoError(t, pool.Stop(context.Background()))
}

func TestPool_RejectsAfterStop(t *testing.T) {
	pool := NewPool(testConfig(), discardLogger(), nil)
	pool.Start()
	require.NoError(t, pool.Stop(context.Background()))

	assert.False(t, pool.Submit(context.Background(), "late", func(context.Context) error { return nil }))
	assert.ErrorIs(t, pool.Stop(context.Background()), ErrPoolStopped)
}

func TestPool_JobOutlivesCallerCancellation(t *testing.T) {
	pool := NewPool(testConfig(), discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	var jobErr error
	pool.Submit(ctx, "detached", func(jobCtx context.Context) error {
		jobErr = jobCtx.Err()

		return nil
	})
	cancel()

	pool.Start()
	require.NoError(t, pool.Stop(context.Background()))
	assert.NoError(t, jobErr)
}

func TestModule_RunsJobsWithinTheAppLifecycle(t *testing.T) {
	cfg := testConfig()
	var runner service.BackgroundRunner

	app := fxtest.New(t,
		Module,
		fx.Supply(&config.Config{Background: &cfg}),
		fx.Provide(
			discardLogger,
			func() service.ErrorReporter { return &recordingReporter{} },
		),
		fx.Populate(&runner),
	)
	app.RequireStart()

	var ran atomic.Bool
	require.True(t, runner.Submit(context.Background(), "module", func(context.Context) error {
		ran.Store(true)

		return nil
	}))
	assert.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)

	app.RequireStop()
}
