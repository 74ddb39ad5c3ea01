package service

import (
	"context"
	"time"
)

// CounterResult is the state of a sliding window after one hit.
type CounterResult struct {
	Count      int           // Hits inside the window, including this one if it was admitted.
	Allowed    bool          // Whether this hit fit within the limit.
	RetryAfter time.Duration // When rejected, time until the oldest hit leaves the window.
}

// CounterStore is the network-accessible atomic sliding-window primitive behind the rate limiter.
type CounterStore interface {
	// Hit records one request under key if fewer than limit hits fall within window ending at now.
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*CounterResult, error)
}
