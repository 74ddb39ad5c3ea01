package usecase

import (
	"context"

	"portal/internal/domain/entity"

	"github.com/google/uuid"
)

// SessionUsecase issues, rotates and revokes the single refresh session of an account.
type SessionUsecase interface {
	// Issue signs a new pair and overwrites the account's session record.
	Issue(ctx context.Context, identity entity.Identity) (*entity.TokenPair, error)

	// Refresh rotates a pair. Concurrent refreshes of the same token produce exactly one winner.
	Refresh(ctx context.Context, refreshToken string) (*entity.TokenPair, *entity.Identity, error)

	// VerifyAccess validates an access token without touching the store.
	VerifyAccess(accessToken string) (*entity.Identity, error)

	// Revoke deletes the account's session record. Revoking a missing session is not an error.
	Revoke(ctx context.Context, accountID uuid.UUID) error

	// CleanupExpired removes expired session records and reports how many were deleted.
	CleanupExpired(ctx context.Context) (int64, error)
}
