package impl

import (
	"context"
	"testing"
	"time"

	"portal/internal/domain/entity"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_LoginBucket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := range 5 {
		decision := env.rateLimiter.Check(ctx, "203.0.113.7", entity.BucketLogin)
		assert.True(t, decision.Allowed, "call %d", i+1)
		assert.Equal(t, 5, decision.Limit)
		assert.Equal(t, 4-i, decision.Remaining)
	}

	denied := env.rateLimiter.Check(ctx, "203.0.113.7", entity.BucketLogin)
	assert.False(t, denied.Allowed)
	assert.Zero(t, denied.Remaining)
	assert.Equal(t, time.Minute, denied.RetryAfter)

	other := env.rateLimiter.Check(ctx, "203.0.113.8", entity.BucketLogin)
	assert.True(t, other.Allowed, "identifiers are counted separately")

	env.clock.Advance(time.Minute + time.Second)
	assert.True(t, env.rateLimiter.Check(ctx, "203.0.113.7", entity.BucketLogin).Allowed)
}

func TestRateLimiter_BucketsAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for range 3 {
		env.rateLimiter.Check(ctx, "203.0.113.7", entity.BucketPasswordReset)
	}
	assert.False(t, env.rateLimiter.Check(ctx, "203.0.113.7", entity.BucketPasswordReset).Allowed)
	assert.True(t, env.rateLimiter.Check(ctx, "203.0.113.7", entity.BucketLogin).Allowed)
}

func TestRateLimiter_UnknownBucketUsesMutationBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	decision := env.rateLimiter.Check(ctx, "203.0.113.7", "grades_export")
	assert.True(t, decision.Allowed)
	assert.Equal(t, 20, decision.Limit)

	for range 19 {
		env.rateLimiter.Check(ctx, "203.0.113.7", "grades_export")
	}
	assert.False(t, env.rateLimiter.Check(ctx, "203.0.113.7", "grades_export").Allowed)
	assert.True(t, env.rateLimiter.Check(ctx, "203.0.113.7", entity.BucketMutation).Allowed,
		"unknown buckets do not share the mutation counter")
}

func TestRateLimiter_EmptyIdentifierIsCounted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for range 5 {
		env.rateLimiter.Check(ctx, "", entity.BucketLogin)
	}
	assert.False(t, env.rateLimiter.Check(ctx, "", entity.BucketLogin).Allowed)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.counters.FailWith(errors.New("connection refused"))

	for range 10 {
		decision := env.rateLimiter.Check(context.Background(), "203.0.113.7", entity.BucketLogin)
		assert.True(t, decision.Allowed)
		assert.True(t, decision.FailedOpen)
	}

	env.counters.FailWith(nil)
	decision := env.rateLimiter.Check(context.Background(), "203.0.113.7", entity.BucketLogin)
	assert.True(t, decision.Allowed)
	assert.False(t, decision.FailedOpen)
	assert.Equal(t, 4, decision.Remaining)
}
