package main

import (
	"context"
	"log/slog"
	"os"

	"portal/config"
	"portal/internal/delivery"
	"portal/internal/delivery/worker"
	"portal/internal/delivery/worker/handler"
	"portal/internal/domain/service"
	"portal/internal/infra/auth"
	logs "portal/internal/infra/log"
	"portal/internal/infra/observability"
	"portal/internal/infra/persistence/postgres"
	"portal/internal/infra/pubsub"
	"portal/internal/usecase/impl"

	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func main() {
	fx.New(
		fx.Provide(
			config.New,
			logs.New,
			context.Background,
			postgres.New,
			observability.New,
		),
		pubsub.Module,
		fx.Provide(
			postgres.NewAccountRepository,
			postgres.NewSessionRepository,
			service.NewSystemClock,
			auth.NewJWTService,
			impl.NewSessionManager,
			handler.NewNotificationHandler,
		),
		fx.Provide(
			fx.Annotate(
				worker.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
			fx.Annotate(
				worker.NewSessionJanitor,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
		fx.Invoke(
			startServer,
		),
	).Run()
}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start worker", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}
}
