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
	"gorm.io/gorm/clause"
)

// sessionRepository implements the domain.SessionRepository interface.
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository is the constructor for sessionRepository.
func NewSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

// UpsertByAccount inserts the record or overwrites the account's existing one.
func (repo *sessionRepository) UpsertByAccount(ctx context.Context, record *entity.SessionRecord) error {
	sessionM := fromSessionDomain(record)

	err := repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token_hash", "expires_at", "updated_at"}),
		}).
		Create(sessionM).Error
	if err != nil {
		return wrapStoreError(err, "failed to upsert session")
	}

	return nil
}

// FindByAccount retrieves the account's session record.
func (repo *sessionRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) (*entity.SessionRecord, error) {
	var sessionM model.SessionModel
	err := repo.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&sessionM).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}

		return nil, wrapStoreError(err, "failed to find session")
	}

	return toSessionDomain(&sessionM), nil
}

// CompareAndSwap rotates the stored hash in a single conditional UPDATE.
func (repo *sessionRepository) CompareAndSwap(
	ctx context.Context,
	accountID uuid.UUID,
	oldHash string,
	next *entity.SessionRecord,
	now time.Time,
) (bool, error) {
	result := repo.db.WithContext(ctx).
		Model(&model.SessionModel{}).
		Where("account_id = ? AND token_hash = ? AND expires_at > ?", accountID, oldHash, now).
		Updates(map[string]any{
			"token_hash": next.TokenHash,
			"expires_at": next.ExpiresAt,
		})
	if result.Error != nil {
		return false, wrapStoreError(result.Error, "failed to rotate session")
	}

	return result.RowsAffected == 1, nil
}

// DeleteByAccount removes the account's session record, if any.
func (repo *sessionRepository) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := repo.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&model.SessionModel{}).Error; err != nil {
		return wrapStoreError(err, "failed to delete session")
	}

	return nil
}

// DeleteExpired removes all records expired at now.
func (repo *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := repo.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.SessionModel{})
	if result.Error != nil {
		return 0, wrapStoreError(result.Error, "failed to delete expired sessions")
	}

	return result.RowsAffected, nil
}

// --- Mapper Functions ---

func toSessionDomain(data *model.SessionModel) *entity.SessionRecord {
	if data == nil {
		return nil
	}

	return &entity.SessionRecord{
		AccountID: data.AccountID,
		TokenHash: data.TokenHash,
		ExpiresAt: data.ExpiresAt,
		CreatedAt: data.CreatedAt,
		UpdatedAt: data.UpdatedAt,
	}
}

func fromSessionDomain(data *entity.SessionRecord) *model.SessionModel {
	if data == nil {
		return nil
	}

	return &model.SessionModel{
		AccountID: data.AccountID,
		TokenHash: data.TokenHash,
		ExpiresAt: data.ExpiresAt,
		CreatedAt: data.CreatedAt,
		UpdatedAt: data.UpdatedAt,
	}
}
