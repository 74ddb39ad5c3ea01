package service

import "context"

// ErrorReporter forwards unexpected failures to an external error tracker.
type ErrorReporter interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
}
