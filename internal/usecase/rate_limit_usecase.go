package usecase

import (
	"context"

	"portal/internal/domain/entity"
)

// RateLimitUsecase admits or rejects a request for a (bucket, identifier) pair.
// It fails open: when the counter store is unreachable the request is admitted.
type RateLimitUsecase interface {
	Check(ctx context.Context, identifier, bucket string) entity.RateLimitDecision
}
