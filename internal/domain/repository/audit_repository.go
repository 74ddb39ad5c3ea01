package repository

import (
	"context"

	"portal/internal/domain/entity"
)

// AuditRepository is the append-only sink for audit entries.
type AuditRepository interface {
	// Append persists one entry. Entries are never updated or deleted.
	Append(ctx context.Context, entry *entity.AuditEntry) error
}
