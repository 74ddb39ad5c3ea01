// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"time"

	domainerrors "portal/internal/domain/errors"

	"github.com/pkg/errors"
)

// withStoreTimeout bounds a store call so a stuck backend surfaces as Unavailable instead of hanging.
func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

// isUnavailable reports whether err means the store could not serve the request.
func isUnavailable(err error) bool {
	var dbErr *domainerrors.DatabaseExecuteError

	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.As(err, &dbErr)
}

// storeError classifies a failed store call. Timeouts and driver failures become ErrUnavailable;
// anything else is kept as an unexpected failure.
func storeError(err error, message string) error {
	if isUnavailable(err) {
		return errors.Wrapf(domainerrors.ErrUnavailable, "%s: %v", message, err)
	}

	return errors.Wrap(err, message)
}

// isExpected reports whether err is one of the typed, user-facing outcomes.
func isExpected(err error) bool {
	var baseErr *domainerrors.BaseError

	return errors.As(err, &baseErr)
}
