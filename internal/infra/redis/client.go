// Package redis wires the shared Redis connection used for rate-limit counters.
package redis

import (
	"context"
	"log/slog"

	"portal/config"
	"portal/internal/domain/lifecycle"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Params defines the required parameters
type Params struct {
	fx.In
	fx.Lifecycle

	Config *config.Config
	Logger *slog.Logger
}

// New creates the Redis client. An unreachable server at start-up is logged, not fatal:
// the rate limiter fails open and recovers once Redis is back.
func New(params Params) goredis.UniversalClient {
	client := goredis.NewClient(&goredis.Options{
		Addr:     params.Config.Redis.Addr,
		Password: params.Config.Redis.Password,
		DB:       params.Config.Redis.DB,
	})

	params.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			ctx, cancel := context.WithTimeout(startCtx, lifecycle.DefaultTimeout)
			defer cancel()

			if err := client.Ping(ctx).Err(); err != nil {
				params.Logger.Warn("Redis unreachable at start-up, rate limiting will fail open",
					slog.String("addr", params.Config.Redis.Addr),
					slog.Any("error", err),
				)

				return nil
			}
			params.Logger.Info("Redis connected", slog.String("addr", params.Config.Redis.Addr))

			return nil
		},
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})

	return client
}
