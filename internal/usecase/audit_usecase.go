package usecase

import (
	"context"

	"portal/internal/domain/entity"
)

// AuditUsecase appends audit entries without blocking the caller. Persistence failures are
// logged and reported but never returned.
type AuditUsecase interface {
	Record(ctx context.Context, entry *entity.AuditEntry)
}
