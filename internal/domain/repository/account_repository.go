// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"time"

	"portal/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Domain-specific errors for account persistence.
var (
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when the normalized email is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrPendingSecretMismatch is returned when the pending TOTP secret changed or vanished before promotion.
	ErrPendingSecretMismatch = errors.New("pending two-factor secret mismatch")
)

// AccountRepository defines the persistence operations the authentication core needs on accounts.
// Every mutating method is a single atomic statement against the shared store.
type AccountRepository interface {
	// Create persists a new account. Returns ErrAccountExists on duplicate email.
	Create(ctx context.Context, account *entity.Account) error

	// FindByEmail retrieves an account by its normalized email.
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)

	// FindByID retrieves an account by id.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Account, error)

	// IncrementFailedAttempts atomically bumps the failed-attempt counter and, when the new
	// count reaches policy.Threshold, sets the lock expiry to now+policy.Duration.
	// A lock that already expired restarts the count at one.
	IncrementFailedAttempts(ctx context.Context, id uuid.UUID, policy entity.LockoutPolicy, now time.Time) (*entity.LockoutState, error)

	// ResetFailedAttempts zeroes the counter and clears any lock.
	ResetFailedAttempts(ctx context.Context, id uuid.UUID) error

	// UpdatePassword replaces the password hash.
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	// SetPendingTwoFactorSecret stores (overwrites) the unconfirmed TOTP secret.
	SetPendingTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string) error

	// EnableTwoFactor promotes pendingSecret to the active secret, but only while it is still
	// the stored pending secret. Returns ErrPendingSecretMismatch otherwise.
	EnableTwoFactor(ctx context.Context, id uuid.UUID, pendingSecret string) error

	// DisableTwoFactor clears the active and pending secrets and the enabled flag.
	DisableTwoFactor(ctx context.Context, id uuid.UUID) error

	// ReplaceRecoveryCodes swaps the recovery-code set for the given hashes.
	// Callers run it inside a transaction together with EnableTwoFactor.
	ReplaceRecoveryCodes(ctx context.Context, id uuid.UUID, codeHashes []string) error

	// ConsumeRecoveryCode atomically removes one matching code and reports whether it existed.
	ConsumeRecoveryCode(ctx context.Context, id uuid.UUID, codeHash string) (bool, error)

	// DeleteRecoveryCodes removes the whole recovery-code set.
	DeleteRecoveryCodes(ctx context.Context, id uuid.UUID) error
}
