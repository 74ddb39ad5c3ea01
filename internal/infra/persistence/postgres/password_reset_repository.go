package postgres

import (
	"context"
	"time"

	"portal/internal/domain/entity"
	"portal/internal/domain/repository"
	"portal/internal/infra/persistence/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const consumePasswordResetSQL = `
DELETE FROM password_resets
WHERE token_hash = ? AND expires_at > ?
RETURNING account_id`

// passwordResetRepository implements the domain.PasswordResetRepository interface.
type passwordResetRepository struct {
	db *gorm.DB
}

// NewPasswordResetRepository is the constructor for passwordResetRepository.
func NewPasswordResetRepository(db *gorm.DB) repository.PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

// Upsert stores the grant, replacing any outstanding one for the account.
func (repo *passwordResetRepository) Upsert(ctx context.Context, reset *entity.PasswordReset) error {
	resetM := &model.PasswordResetModel{
		AccountID: reset.AccountID,
		TokenHash: reset.TokenHash,
		ExpiresAt: reset.ExpiresAt,
		CreatedAt: reset.CreatedAt,
	}

	err := repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token_hash", "expires_at", "created_at"}),
		}).
		Create(resetM).Error
	if err != nil {
		return wrapStoreError(err, "failed to store password reset")
	}

	return nil
}

// Consume deletes the live grant matching tokenHash and returns its account.
func (repo *passwordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	var rows []struct {
		AccountID uuid.UUID
	}

	result := repo.db.WithContext(ctx).Raw(consumePasswordResetSQL, tokenHash, now).Scan(&rows)
	if result.Error != nil {
		return uuid.Nil, wrapStoreError(result.Error, "failed to consume password reset")
	}
	if len(rows) == 0 {
		return uuid.Nil, repository.ErrPasswordResetNotFound
	}

	return rows[0].AccountID, nil
}
