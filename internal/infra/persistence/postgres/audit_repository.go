package postgres

import (
	"context"

	"portal/internal/domain/entity"
	"portal/internal/domain/repository"
	"portal/internal/infra/persistence/model"

	"gorm.io/gorm"
)

// auditRepository appends rows to audit_entries. It has no update or delete path.
type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository is the constructor for auditRepository.
func NewAuditRepository(db *gorm.DB) repository.AuditRepository {
	return &auditRepository{db: db}
}

// Append inserts one entry.
func (repo *auditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	entryM := &model.AuditEntryModel{
		ID:         entry.ID,
		OccurredAt: entry.Timestamp,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole.String(),
		Action:     string(entry.Action),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Outcome:    string(entry.Outcome),
		Metadata: model.AuditMetadataModel{
			Email:     entry.Metadata.Email,
			ClientIP:  entry.Metadata.ClientIP,
			RequestID: entry.Metadata.RequestID,
			Reason:    entry.Metadata.Reason,
			Extra:     entry.Metadata.Extra,
		},
	}

	if err := repo.db.WithContext(ctx).Create(entryM).Error; err != nil {
		// retried by the audit writer; a duplicate id means an earlier attempt already landed
		if isUniqueConstraintViolation(err) {
			return nil
		}

		return wrapStoreError(err, "failed to append audit entry")
	}

	return nil
}
