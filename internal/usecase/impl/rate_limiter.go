package impl

import (
	"context"
	"log/slog"
	"time"

	"portal/config"
	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/entity"
	"portal/internal/domain/service"
	"portal/internal/usecase"

	"go.uber.org/fx"
)

const unknownClient = "unknown"

// rateLimiter implements the RateLimitUsecase interface over a shared CounterStore.
// It keeps no per-request state of its own.
type rateLimiter struct {
	store   service.CounterStore
	clock   service.Clock
	buckets map[string]config.BucketConfig
	timeout time.Duration
	logger  *slog.Logger
}

// RateLimiterParams holds dependencies for RateLimiter, injected by Fx.
type RateLimiterParams struct {
	fx.In

	Store  service.CounterStore
	Clock  service.Clock
	Config *config.Config
	Logger *slog.Logger
}

// NewRateLimiter is the constructor for rateLimiter.
func NewRateLimiter(params RateLimiterParams) usecase.RateLimitUsecase {
	buckets := config.DefaultBuckets()
	if params.Config.RateLimit != nil {
		for name, bucket := range params.Config.RateLimit.Buckets {
			if bucket.Limit > 0 && bucket.Window > 0 {
				buckets[name] = bucket
			}
		}
	}

	var timeout time.Duration
	if params.Config.Auth != nil {
		timeout = params.Config.Auth.StoreTimeout
	}

	return &rateLimiter{
		store:   params.Store,
		clock:   params.Clock,
		buckets: buckets,
		timeout: timeout,
		logger:  params.Logger,
	}
}

// Check counts one request against bucket for identifier. Unknown buckets get the generic
// mutation budget under their own key. Counter store failures admit the request.
func (rl *rateLimiter) Check(ctx context.Context, identifier, bucket string) entity.RateLimitDecision {
	limits, ok := rl.buckets[bucket]
	if !ok {
		limits = rl.buckets[entity.BucketMutation]
	}
	if identifier == "" {
		identifier = unknownClient
	}

	storeCtx, cancel := withStoreTimeout(ctx, rl.timeout)
	defer cancel()

	result, err := rl.store.Hit(storeCtx, counterKey(bucket, identifier), limits.Limit, limits.Window, rl.clock.Now())
	if err != nil {
		deliverycontext.GetLoggerOrDefault(ctx, rl.logger).WarnContext(ctx, "Rate limiter failing open, counter store unavailable",
			slog.String("bucket", bucket),
			slog.Any("error", err),
		)

		return entity.RateLimitDecision{
			Allowed:    true,
			Limit:      limits.Limit,
			Remaining:  limits.Limit,
			FailedOpen: true,
		}
	}

	return entity.RateLimitDecision{
		Allowed:    result.Allowed,
		Limit:      limits.Limit,
		Remaining:  max(limits.Limit-result.Count, 0),
		RetryAfter: result.RetryAfter,
	}
}

func counterKey(bucket, identifier string) string {
	return "ratelimit:" + bucket + ":" + identifier
}
