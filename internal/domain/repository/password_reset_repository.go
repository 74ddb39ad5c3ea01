package repository

import (
	"context"
	"time"

	"portal/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrPasswordResetNotFound is returned when a reset token is unknown, expired or already used.
var ErrPasswordResetNotFound = errors.New("password reset not found")

// PasswordResetRepository stores one outstanding reset grant per account.
type PasswordResetRepository interface {
	// Upsert creates or replaces the account's reset grant.
	Upsert(ctx context.Context, reset *entity.PasswordReset) error

	// Consume atomically deletes the grant matching tokenHash if it is still valid at now
	// and returns the owning account id.
	Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error)
}
