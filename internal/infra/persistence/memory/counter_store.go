package memory

import (
	"context"
	"sync"
	"time"

	"portal/internal/domain/service"
)

// CounterStore is an in-process sliding-window log. It mirrors the Redis script's semantics:
// prune entries older than the window, admit when fewer than limit remain.
type CounterStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	err  error
}

var _ service.CounterStore = (*CounterStore)(nil)

// NewCounterStore returns an empty store.
func NewCounterStore() *CounterStore {
	return &CounterStore{hits: make(map[string][]time.Time)}
}

// FailWith makes every subsequent Hit return err; nil restores normal operation.
func (s *CounterStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Hit records one request under key when the window has room.
func (s *CounterStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*service.CounterResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	cutoff := now.Add(-window)
	kept := s.hits[key][:0]
	for _, at := range s.hits[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= limit {
		s.hits[key] = kept
		retryAfter := time.Duration(0)
		if len(kept) > 0 {
			retryAfter = kept[0].Add(window).Sub(now)
		}

		return &service.CounterResult{Count: len(kept), Allowed: false, RetryAfter: retryAfter}, nil
	}

	kept = append(kept, now)
	s.hits[key] = kept

	return &service.CounterResult{Count: len(kept), Allowed: true}, nil
}
