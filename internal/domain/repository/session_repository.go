package repository

import (
	"context"
	"time"

	"portal/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSessionNotFound is returned when an account has no session record.
var ErrSessionNotFound = errors.New("session record not found")

// SessionRepository stores the single refresh session of each account.
type SessionRepository interface {
	// UpsertByAccount creates or overwrites the account's session record.
	UpsertByAccount(ctx context.Context, record *entity.SessionRecord) error

	// FindByAccount returns the account's session record or ErrSessionNotFound.
	FindByAccount(ctx context.Context, accountID uuid.UUID) (*entity.SessionRecord, error)

	// CompareAndSwap replaces the stored hash and expiry only if the stored hash still equals
	// oldHash and the record has not expired at now. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, accountID uuid.UUID, oldHash string, next *entity.SessionRecord, now time.Time) (bool, error)

	// DeleteByAccount removes the account's session record. Deleting a missing record is not an error.
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) error

	// DeleteExpired removes every record expired at now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
