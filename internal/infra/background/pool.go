// Package background runs fire-and-forget jobs on a bounded worker pool with retry and backoff.
package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"portal/config"
	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// ErrPoolStopped is returned by Stop when called twice.
var ErrPoolStopped = errors.New("background pool already stopped")

type job struct {
	ctx  context.Context
	name string
	fn   func(ctx context.Context) error
}

// Pool is a fixed set of workers draining a bounded queue.
type Pool struct {
	cfg      config.BackgroundConfig
	logger   *slog.Logger
	reporter service.ErrorReporter

	mu      sync.RWMutex
	jobs    chan job
	quit    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

var _ service.BackgroundRunner = (*Pool)(nil)

// Params defines the required parameters
type Params struct {
	fx.In
	fx.Lifecycle

	Config   *config.Config
	Logger   *slog.Logger
	Reporter service.ErrorReporter
}

// New creates the pool and ties its workers to the fx lifecycle.
func New(params Params) service.BackgroundRunner {
	pool := NewPool(*params.Config.Background, params.Logger, params.Reporter)

	params.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			pool.Start()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return pool.Stop(ctx)
		},
	})

	return pool
}

// NewPool builds an unstarted pool. reporter may be nil.
func NewPool(cfg config.BackgroundConfig, logger *slog.Logger, reporter service.ErrorReporter) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}

	return &Pool{
		cfg:      cfg,
		logger:   logger,
		reporter: reporter,
		jobs:     make(chan job, cfg.QueueSize),
		quit:     make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for range p.cfg.Workers {
		p.wg.Add(1)
		go p.work()
	}
}

// Stop refuses new jobs, cuts pending backoff sleeps short and waits for queued jobs to drain
// or ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()

		return ErrPoolStopped
	}
	p.stopped = true
	close(p.quit)
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "background pool did not drain")
	}
}

// Submit never blocks. A full queue drops the job and logs it.
func (p *Pool) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	logger := deliverycontext.GetLoggerOrDefault(ctx, p.logger)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		logger.ErrorContext(ctx, "Background job dropped, pool is stopped", slog.String("job", name))

		return false
	}

	select {
	case p.jobs <- job{ctx: context.WithoutCancel(ctx), name: name, fn: fn}:
		return true
	default:
		logger.ErrorContext(ctx, "Background job dropped, queue is full",
			slog.String("job", name),
			slog.Int("queue_size", p.cfg.QueueSize),
		)

		return false
	}
}

func (p *Pool) work() {
	defer p.wg.Done()

	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	logger := deliverycontext.GetLoggerOrDefault(j.ctx, p.logger)
	backoff := p.cfg.InitialBackoff

	var err error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.WarnContext(j.ctx, "Background job failed, retrying",
				slog.String("job", j.name),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.Any("error", err),
			)
			if !p.sleep(backoff) {
				break
			}
			backoff = min(backoff*2, p.cfg.MaxBackoff)
		}

		if err = p.attempt(j); err == nil {
			return
		}
	}

	logger.ErrorContext(j.ctx, "Background job failed permanently",
		slog.String("job", j.name),
		slog.Any("error", err),
	)
	if p.reporter != nil {
		p.reporter.CaptureError(j.ctx, err, map[string]string{"job": j.name})
	}
}

func (p *Pool) attempt(j job) (err error) {
	ctx := j.ctx
	if p.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("background job panicked: %v", r)
		}
	}()

	return j.fn(ctx)
}

// sleep waits d unless the pool is stopping. It reports whether the full wait elapsed.
func (p *Pool) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-p.quit:
		return false
	}
}

// Module provides the background pool FX module
//
//nolint:gochecknoglobals
var Module = fx.Options(
	fx.Provide(New),
)
