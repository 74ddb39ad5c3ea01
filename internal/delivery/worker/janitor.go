package worker

import (
	"context"
	"log/slog"
	"time"

	"portal/config"
	"portal/internal/delivery"
	"portal/internal/domain/lifecycle"
	"portal/internal/usecase"

	"go.uber.org/fx"
)

const defaultCleanupInterval = time.Hour

// JanitorParams holds dependencies for the session janitor
type JanitorParams struct {
	fx.In

	Lc       fx.Lifecycle
	Cfg      *config.Config
	Logger   *slog.Logger
	Sessions usecase.SessionUsecase
}

// sessionJanitor periodically deletes expired session records.
type sessionJanitor struct {
	sessions usecase.SessionUsecase
	logger   *slog.Logger
	interval time.Duration
	quit     chan struct{}
}

// NewSessionJanitor creates the expired-session sweeper.
func NewSessionJanitor(params JanitorParams) delivery.Delivery {
	interval := defaultCleanupInterval
	if params.Cfg.Notification != nil && params.Cfg.Notification.SessionCleanupInterval > 0 {
		interval = params.Cfg.Notification.SessionCleanupInterval
	}

	j := &sessionJanitor{
		sessions: params.Sessions,
		logger:   params.Logger.With(slog.String("component", "session_janitor")),
		interval: interval,
		quit:     make(chan struct{}),
	}

	params.Lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			close(j.quit)

			return nil
		},
	})

	return j
}

// Serve sweeps once at startup and then on every tick until stopped.
func (j *sessionJanitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("Session janitor started", slog.Duration("interval", j.interval))
	j.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			j.runOnce(ctx)
		case <-j.quit:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (j *sessionJanitor) runOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
	defer cancel()

	removed, err := j.sessions.CleanupExpired(sweepCtx)
	if err != nil {
		j.logger.Warn("Expired session cleanup failed", slog.Any("error", err))

		return
	}
	if removed > 0 {
		j.logger.Info("Expired sessions removed", slog.Int64("count", removed))
	}
}
