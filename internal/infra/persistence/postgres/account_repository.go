// Package postgres contains the concrete implementation of the persistence layer using GORM and PostgreSQL.
package postgres

import (
	"context"
	"time"

	"portal/internal/domain/entity"
	"portal/internal/domain/repository"
	"portal/internal/infra/persistence/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// incrementFailedAttemptsSQL bumps the counter and trips the lock in one statement.
// Every SET expression sees the pre-update row, so concurrent failures serialize on the row lock
// and each observes the previous one's count.
const incrementFailedAttemptsSQL = `
UPDATE accounts SET
	failed_attempts = CASE
		WHEN lock_until IS NOT NULL AND lock_until <= @now THEN 1
		ELSE failed_attempts + 1
	END,
	lock_until = CASE
		WHEN lock_until IS NOT NULL AND lock_until > @now THEN lock_until
		WHEN (CASE WHEN lock_until IS NOT NULL AND lock_until <= @now THEN 1 ELSE failed_attempts + 1 END) >= @threshold THEN @lock_until
		ELSE NULL
	END,
	updated_at = @now
WHERE id = @id
RETURNING failed_attempts, lock_until`

// accountRepository implements the domain.AccountRepository interface using GORM.
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository is the constructor for accountRepository.
// It returns the repository as a domain.AccountRepository interface, adhering to dependency inversion.
func NewAccountRepository(db *gorm.DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

// Create persists a new account.
func (repo *accountRepository) Create(ctx context.Context, account *entity.Account) error {
	accountM := fromAccountDomain(account)

	if err := repo.db.WithContext(ctx).Omit("RecoveryCodes").Create(accountM).Error; err != nil {
		if isUniqueConstraintViolation(err) {
			return repository.ErrAccountExists
		}

		return wrapStoreError(err, "failed to create account")
	}

	// Update the entity with generated values
	account.ID = accountM.ID
	account.CreatedAt = accountM.CreatedAt
	account.UpdatedAt = accountM.UpdatedAt

	return nil
}

// FindByEmail retrieves a single account by its normalized email.
func (repo *accountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return repo.findOne(ctx, "email = ?", entity.NormalizeEmail(email))
}

// FindByID retrieves a single account by id.
func (repo *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Account, error) {
	return repo.findOne(ctx, "id = ?", id)
}

func (repo *accountRepository) findOne(ctx context.Context, query string, arg any) (*entity.Account, error) {
	var accountM model.AccountModel
	err := repo.db.WithContext(ctx).Where(query, arg).Take(&accountM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrAccountNotFound
		}

		return nil, wrapStoreError(err, "failed to find account")
	}

	return toAccountDomain(&accountM), nil
}

// IncrementFailedAttempts records a failed password check atomically.
func (repo *accountRepository) IncrementFailedAttempts(
	ctx context.Context,
	id uuid.UUID,
	policy entity.LockoutPolicy,
	now time.Time,
) (*entity.LockoutState, error) {
	var row struct {
		FailedAttempts int
		LockUntil      *time.Time
	}

	result := repo.db.WithContext(ctx).Raw(incrementFailedAttemptsSQL, map[string]any{
		"id":         id,
		"now":        now,
		"threshold":  policy.Threshold,
		"lock_until": now.Add(policy.Duration),
	}).Scan(&row)
	if result.Error != nil {
		return nil, wrapStoreError(result.Error, "failed to increment failed attempts")
	}
	if result.RowsAffected == 0 {
		return nil, repository.ErrAccountNotFound
	}

	return &entity.LockoutState{FailedAttempts: row.FailedAttempts, LockUntil: row.LockUntil}, nil
}

// ResetFailedAttempts zeroes the counter and clears the lock.
func (repo *accountRepository) ResetFailedAttempts(ctx context.Context, id uuid.UUID) error {
	return repo.update(ctx, id, map[string]any{
		"failed_attempts": 0,
		"lock_until":      nil,
	}, "failed to reset failed attempts")
}

// UpdatePassword replaces the stored hash.
func (repo *accountRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return repo.update(ctx, id, map[string]any{"password_hash": passwordHash}, "failed to update password")
}

// SetPendingTwoFactorSecret overwrites any previous pending secret.
func (repo *accountRepository) SetPendingTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string) error {
	return repo.update(ctx, id, map[string]any{"pending_two_factor_secret": secret}, "failed to store pending secret")
}

// EnableTwoFactor promotes the pending secret only if it is still the one that was verified.
func (repo *accountRepository) EnableTwoFactor(ctx context.Context, id uuid.UUID, pendingSecret string) error {
	result := repo.db.WithContext(ctx).
		Model(&model.AccountModel{}).
		Where("id = ? AND pending_two_factor_secret = ?", id, pendingSecret).
		Updates(map[string]any{
			"two_factor_enabled":        true,
			"two_factor_secret":         pendingSecret,
			"pending_two_factor_secret": nil,
		})
	if result.Error != nil {
		return wrapStoreError(result.Error, "failed to enable two-factor")
	}
	if result.RowsAffected == 0 {
		return repository.ErrPendingSecretMismatch
	}

	return nil
}

// DisableTwoFactor clears every two-factor column.
func (repo *accountRepository) DisableTwoFactor(ctx context.Context, id uuid.UUID) error {
	return repo.update(ctx, id, map[string]any{
		"two_factor_enabled":        false,
		"two_factor_secret":         nil,
		"pending_two_factor_secret": nil,
	}, "failed to disable two-factor")
}

// ReplaceRecoveryCodes deletes the old set and inserts the new hashes.
func (repo *accountRepository) ReplaceRecoveryCodes(ctx context.Context, id uuid.UUID, codeHashes []string) error {
	db := repo.db.WithContext(ctx)
	if err := db.Where("account_id = ?", id).Delete(&model.RecoveryCodeModel{}).Error; err != nil {
		return wrapStoreError(err, "failed to delete recovery codes")
	}
	if len(codeHashes) == 0 {
		return nil
	}

	codes := make([]model.RecoveryCodeModel, 0, len(codeHashes))
	for _, hash := range codeHashes {
		codes = append(codes, model.RecoveryCodeModel{AccountID: id, CodeHash: hash})
	}
	if err := db.Create(&codes).Error; err != nil {
		return wrapStoreError(err, "failed to store recovery codes")
	}

	return nil
}

// ConsumeRecoveryCode deletes exactly one matching code; the row delete is the atomic step.
func (repo *accountRepository) ConsumeRecoveryCode(ctx context.Context, id uuid.UUID, codeHash string) (bool, error) {
	result := repo.db.WithContext(ctx).
		Where("account_id = ? AND code_hash = ?", id, codeHash).
		Delete(&model.RecoveryCodeModel{})
	if result.Error != nil {
		return false, wrapStoreError(result.Error, "failed to consume recovery code")
	}

	return result.RowsAffected == 1, nil
}

// DeleteRecoveryCodes removes the account's whole set.
func (repo *accountRepository) DeleteRecoveryCodes(ctx context.Context, id uuid.UUID) error {
	if err := repo.db.WithContext(ctx).Where("account_id = ?", id).Delete(&model.RecoveryCodeModel{}).Error; err != nil {
		return wrapStoreError(err, "failed to delete recovery codes")
	}

	return nil
}

func (repo *accountRepository) update(ctx context.Context, id uuid.UUID, values map[string]any, details string) error {
	result := repo.db.WithContext(ctx).
		Model(&model.AccountModel{}).
		Where("id = ?", id).
		Updates(values)
	if result.Error != nil {
		return wrapStoreError(result.Error, details)
	}
	if result.RowsAffected == 0 {
		return repository.ErrAccountNotFound
	}

	return nil
}

// --- Mapper Functions ---

// toAccountDomain converts a GORM AccountModel to a domain Account entity.
func toAccountDomain(data *model.AccountModel) *entity.Account {
	if data == nil {
		return nil
	}

	return &entity.Account{
		ID:                     data.ID,
		Email:                  data.Email,
		Name:                   data.Name,
		PasswordHash:           data.PasswordHash,
		Role:                   entity.Role(data.Role),
		Status:                 entity.AccountStatus(data.Status),
		FailedAttempts:         data.FailedAttempts,
		LockUntil:              data.LockUntil,
		TwoFactorEnabled:       data.TwoFactorEnabled,
		TwoFactorSecret:        derefString(data.TwoFactorSecret),
		PendingTwoFactorSecret: derefString(data.PendingTwoFactorSecret),
		CreatedAt:              data.CreatedAt,
		UpdatedAt:              data.UpdatedAt,
	}
}

// fromAccountDomain converts a domain Account entity to a GORM AccountModel.
func fromAccountDomain(data *entity.Account) *model.AccountModel {
	if data == nil {
		return nil
	}

	status := data.Status
	if status == "" {
		status = entity.AccountStatusActive
	}

	return &model.AccountModel{
		ID:                     data.ID,
		Email:                  entity.NormalizeEmail(data.Email),
		Name:                   data.Name,
		PasswordHash:           data.PasswordHash,
		Role:                   data.Role.String(),
		Status:                 string(status),
		FailedAttempts:         data.FailedAttempts,
		LockUntil:              data.LockUntil,
		TwoFactorEnabled:       data.TwoFactorEnabled,
		TwoFactorSecret:        nullableString(data.TwoFactorSecret),
		PendingTwoFactorSecret: nullableString(data.PendingTwoFactorSecret),
		CreatedAt:              data.CreatedAt,
		UpdatedAt:              data.UpdatedAt,
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
