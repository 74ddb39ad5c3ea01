package service

import "context"

// BackgroundRunner executes fire-and-forget work off the request path.
type BackgroundRunner interface {
	// Submit enqueues fn under name and returns immediately. It reports false when the job was
	// dropped because the queue is full or the runner is shutting down.
	// fn receives a context that keeps ctx's values but not its cancellation.
	Submit(ctx context.Context, name string, fn func(ctx context.Context) error) bool
}
