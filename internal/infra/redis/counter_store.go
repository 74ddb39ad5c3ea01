package redis

import (
	"context"
	"time"

	"portal/internal/domain/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// slidingWindowScript keeps one sorted-set member per admitted request, scored by its
// timestamp in milliseconds. Prune, count and conditional add run as one atomic script.
//
// KEYS[1] window key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] limit, ARGV[4] unique member
// returns {allowed (0|1), count, retry_after_ms}
var slidingWindowScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])

if count < limit then
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], window)
	return {1, count + 1, 0}
end

local retry = 0
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if oldest[2] then
	retry = tonumber(oldest[2]) + window - now
end
return {0, count, retry}
`)

type counterStore struct {
	client goredis.Scripter
}

// NewCounterStore returns the Redis-backed sliding-window counter store.
func NewCounterStore(client goredis.UniversalClient) service.CounterStore {
	return &counterStore{client: client}
}

// Hit runs the sliding-window script for key.
func (s *counterStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*service.CounterResult, error) {
	member := uuid.NewString()

	values, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		member,
	).Int64Slice()
	if err != nil {
		return nil, errors.Wrap(err, "sliding window script failed")
	}
	if len(values) != 3 {
		return nil, errors.Errorf("sliding window script returned %d values", len(values))
	}

	return &service.CounterResult{
		Allowed:    values[0] == 1,
		Count:      int(values[1]),
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}
