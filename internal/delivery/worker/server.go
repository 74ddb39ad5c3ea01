// Package worker runs the asynq consumer that delivers account notifications.
package worker

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"portal/config"
	"portal/internal/delivery"
	"portal/internal/delivery/middleware"
	"portal/internal/delivery/worker/handler"
	"portal/internal/domain/lifecycle"
	"portal/internal/domain/service"
	"portal/internal/errors"
	"portal/internal/infra/queue"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
)

type workerServer struct {
	cfg    *config.Config
	logger *slog.Logger
	health *echo.Echo
	tasks  *asynq.Server
	mux    *asynq.ServeMux
}

// ServerParams holds dependencies for the worker server
type ServerParams struct {
	fx.In

	Lc                  fx.Lifecycle
	Cfg                 *config.Config
	Logger              *slog.Logger
	Reporter            service.ErrorReporter
	NotificationHandler *handler.NotificationHandler
}

// NewServer creates the asynq consumer and a health endpoint for the orchestrator.
func NewServer(params ServerParams) (delivery.Delivery, error) {
	notificationCfg := params.Cfg.Notification
	if notificationCfg == nil || notificationCfg.Queue == "" {
		return nil, errors.New("notification queue is not configured")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.Recover())
	e.Use(middleware.NewRequestIDMiddleware(params.Logger).Process)
	e.Use(middleware.NewAccessLogger(params.Logger, params.Cfg))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	concurrency := notificationCfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	tasks := asynq.NewServer(queue.RedisClientOpt(params.Cfg.Redis), asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{notificationCfg.Queue: 1},
		Logger:          newAsynqLogger(params.Logger),
		ShutdownTimeout: lifecycle.DefaultTimeout,
		ErrorHandler:    newTaskErrorHandler(params.Logger, params.Reporter),
	})

	mux := asynq.NewServeMux()
	mux.Handle(queue.TypeAccountNotification, params.NotificationHandler)

	srv := &workerServer{
		cfg:    params.Cfg,
		logger: params.Logger,
		health: e,
		tasks:  tasks,
		mux:    mux,
	}

	params.Lc.Append(fx.Hook{
		OnStop: srv.stop,
	})

	return srv, nil
}

// Serve starts the task consumer and then blocks on the health server.
func (s *workerServer) Serve(ctx context.Context) error {
	if err := s.tasks.Start(s.mux); err != nil {
		return errors.Wrap(err, "failed to start task server")
	}
	s.logger.Info("Notification consumer started", slog.String("queue", s.cfg.Notification.Queue))

	hostPort := net.JoinHostPort("0.0.0.0", strconv.Itoa(s.cfg.HTTP.Port))
	s.logger.Info("Starting Worker HTTP server", slog.String("host_port", hostPort))
	if err := s.health.Start(hostPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithStack(err)
	}

	return nil
}

// stop drains in-flight tasks first so none are cut off while the health check still reports ok.
func (s *workerServer) stop(ctx context.Context) error {
	s.logger.Info("Shutting down notification consumer")
	s.tasks.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
	defer cancel()

	s.logger.Info("Shutting down Worker HTTP server")

	return errors.WithStack(s.health.Shutdown(shutdownCtx))
}

// newTaskErrorHandler logs every failed attempt and reports the ones asynq will not retry.
func newTaskErrorHandler(logger *slog.Logger, reporter service.ErrorReporter) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		taskID, _ := asynq.GetTaskID(ctx)

		attrs := []any{
			slog.String("task_type", task.Type()),
			slog.String("task_id", taskID),
			slog.Int("retry", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err),
		}

		if retried < maxRetry && !errors.Is(err, asynq.SkipRetry) {
			logger.WarnContext(ctx, "Task failed, will retry", attrs...)

			return
		}

		logger.ErrorContext(ctx, "Task failed permanently", attrs...)
		if reporter != nil {
			reporter.CaptureError(ctx, err, map[string]string{
				"task_type": task.Type(),
				"task_id":   taskID,
			})
		}
	})
}
